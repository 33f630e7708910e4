package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/animus-labs/labkit/internal/domain"
	"github.com/animus-labs/labkit/internal/table"
	"github.com/animus-labs/labkit/internal/trial"
)

// Record is one trial file loaded for analysis.
type Record struct {
	Key  string
	Meta domain.Metadata
	Data *table.Table
}

func (r Record) Clone() Record {
	return Record{Key: r.Key, Meta: r.Meta.Clone(), Data: r.Data.Clone()}
}

// Dataset is an ordered collection of records keyed by Record.Key.
type Dataset struct {
	Records []Record
}

func (d Dataset) Empty() bool {
	return len(d.Records) == 0
}

func (d Dataset) Clone() Dataset {
	out := Dataset{Records: make([]Record, len(d.Records))}
	for i, r := range d.Records {
		out.Records[i] = r.Clone()
	}
	return out
}

func (d Dataset) Get(key string) (Record, bool) {
	for _, r := range d.Records {
		if r.Key == key {
			return r, true
		}
	}
	return Record{}, false
}

func (d Dataset) Keys() []string {
	keys := make([]string, len(d.Records))
	for i, r := range d.Records {
		keys[i] = r.Key
	}
	return keys
}

// LoadDir reads every trial file in dir. Files listed in the run index are
// loaded in index order; without an index all *.csv files are read sorted.
func LoadDir(dir string) (Dataset, error) {
	names, err := indexedFiles(dir)
	if err != nil {
		return Dataset{}, err
	}
	var ds Dataset
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, header, err := table.ReadFileWithMeta(path)
		if err != nil {
			return Dataset{}, err
		}
		meta := domain.Metadata{}
		for k, v := range header {
			meta[k] = v
		}
		ds.Records = append(ds.Records, Record{
			Key:  strings.TrimSuffix(name, filepath.Ext(name)),
			Meta: meta,
			Data: data,
		})
	}
	return ds, nil
}

func indexedFiles(dir string) ([]string, error) {
	index, err := trial.LoadIndex(dir)
	switch {
	case err == nil:
		if col, ok := index.Column(domain.MetaFilename); ok {
			return col, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".csv" || e.Name() == trial.IndexFile {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
