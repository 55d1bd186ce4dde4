// Package deaths ingests the yearly death-record extracts, keeps the
// tuberculosis rows and aggregates them by (year, sex, bucket).
package deaths

import (
	"cmp"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
)

// Source is one death-record extract on disk.
type Source struct {
	Path string
	Name string
	// Year declared by the file name; zero when HasYear is false.
	Year    int
	HasYear bool
}

var yearInName = regexp.MustCompile(`(19|20)\d{2}`)

// YearFromName extracts the first 19xx/20xx token of a file name.
func YearFromName(name string) (int, bool) {
	m := yearInName.FindString(filepath.Base(name))
	if m == "" {
		return 0, false
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return y, true
}

// NewSource describes the file at path.
func NewSource(path string) Source {
	name := filepath.Base(path)
	y, ok := YearFromName(name)
	return Source{Path: path, Name: name, Year: y, HasYear: ok}
}

// Discover lists Defun*.txt and Defun*.csv under dir ordered by declared
// year, files without a year last, then by name.
func Discover(dir string) ([]Source, error) {
	var paths []string
	for _, pat := range []string{"Defun*.txt", "Defun*.csv"} {
		m, err := filepath.Glob(filepath.Join(dir, pat))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pat, err)
		}
		paths = append(paths, m...)
	}
	out := make([]Source, 0, len(paths))
	for _, p := range paths {
		out = append(out, NewSource(p))
	}
	SortSources(out)
	return out, nil
}

// SortSources orders sources by (no-year last, year, name).
func SortSources(src []Source) {
	slices.SortFunc(src, func(a, b Source) int {
		if a.HasYear != b.HasYear {
			if a.HasYear {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(a.Year, b.Year); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
}
