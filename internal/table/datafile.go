package table

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/animus-labs/labkit/internal/domain"
)

// Header sentinels and separator of the data file format. The literals are
// kept so files written by older acquisition scripts still parse.
const (
	HeaderStart   = "ekpy_heading"
	HeaderEnd     = "ekpy_heading_complete"
	MetaSeparator = ":::"
)

var ErrHeaderUnterminated = errors.New("metadata header has no end sentinel")

// Encode writes the metadata header followed by the CSV body. Keys are
// written sorted so files are reproducible.
func Encode(w io.Writer, t *Table, meta domain.Metadata) error {
	var buf bytes.Buffer
	buf.WriteString(HeaderStart + "\n")
	for _, key := range meta.Keys() {
		value := domain.FormatValue(meta[key])
		if strings.ContainsAny(key, "\r\n") || strings.Contains(key, MetaSeparator) {
			return fmt.Errorf("metadata key %q cannot be written to a header", key)
		}
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("metadata value for %q spans lines", key)
		}
		buf.WriteString(key + MetaSeparator + value + "\n")
	}
	buf.WriteString(HeaderEnd + "\n")
	if err := WriteCSV(&buf, t); err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Decode reads a data file. When the first line is not the start sentinel the
// whole input is parsed as plain CSV and the returned metadata is nil.
func Decode(r io.Reader, wantMeta bool) (*Table, map[string]string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	first, next := nextLine(raw, 0)
	if next == 0 || !strings.Contains(first, HeaderStart) {
		t, err := ReadCSV(bytes.NewReader(raw))
		return t, nil, err
	}

	var header []string
	body := -1
	for off := next; off < len(raw); {
		line, n := nextLine(raw, off)
		if strings.Contains(line, HeaderEnd) {
			body = n
			break
		}
		header = append(header, line)
		off = n
	}
	if body < 0 {
		if wantMeta {
			return nil, nil, ErrHeaderUnterminated
		}
		t, err := ReadCSV(bytes.NewReader(raw))
		return t, nil, err
	}

	t, err := ReadCSV(bytes.NewReader(raw[body:]))
	if err != nil {
		return nil, nil, err
	}
	if !wantMeta {
		return t, nil, nil
	}
	meta, err := parseHeader(header)
	if err != nil {
		return nil, nil, err
	}
	return t, meta, nil
}

func parseHeader(lines []string) (map[string]string, error) {
	meta := make(map[string]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := strings.Cut(line, MetaSeparator)
		if !ok {
			return nil, fmt.Errorf("header line %d: missing %q separator", i+2, MetaSeparator)
		}
		meta[key] = value
	}
	return meta, nil
}

// nextLine returns the line starting at off without its terminator, and the
// offset just past it.
func nextLine(raw []byte, off int) (string, int) {
	if off >= len(raw) {
		return "", off
	}
	rest := raw[off:]
	i := bytes.IndexByte(rest, '\n')
	if i < 0 {
		return strings.TrimRight(string(rest), "\r"), len(raw)
	}
	return strings.TrimRight(string(rest[:i]), "\r"), off + i + 1
}

// WriteFile writes t with a metadata header to path.
func WriteFile(path string, t *Table, meta domain.Metadata) error {
	var buf bytes.Buffer
	if err := Encode(&buf, t, meta); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// ReadFile reads a data file, with or without a header.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, _, err := Decode(f, false)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// ReadFileWithMeta reads a data file and its header metadata. Values come
// back as the strings they were written as.
func ReadFileWithMeta(path string) (*Table, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	t, meta, err := Decode(f, true)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if meta == nil {
		meta = map[string]string{}
	}
	return t, meta, nil
}
