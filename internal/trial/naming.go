package trial

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

const dataExt = ".csv"

// NextSaveName returns "<base>_<n>.csv" for the lowest n not already present
// in dir.
func NextSaveName(dir, base string) (string, int, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", 0, errors.New("base name is empty")
	}
	if strings.ContainsAny(base, `/\`) {
		return "", 0, fmt.Errorf("base name %q contains a path separator", base)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, fmt.Errorf("list %s: %w", dir, err)
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `_(\d+)` + regexp.QuoteMeta(dataExt) + `$`)
	used := make(map[int]struct{}, len(entries))
	for _, entry := range entries {
		m := pattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return "", 0, fmt.Errorf("parse suffix of %s: %w", entry.Name(), err)
		}
		used[n] = struct{}{}
	}

	n := 0
	for {
		if _, ok := used[n]; !ok {
			break
		}
		n++
	}
	return fmt.Sprintf("%s_%d%s", base, n, dataExt), n, nil
}
