// Package lexis pivots joined mortality rows into dense age-by-period matrices.
package lexis

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/scuartasr/tfm-tuberc/internal/ageband"
	"github.com/scuartasr/tfm-tuberc/internal/mortality"
	"github.com/scuartasr/tfm-tuberc/internal/table"
)

// ErrDuplicateCell is returned when two rows land on the same matrix cell.
var ErrDuplicateCell = errors.New("duplicate lexis cell")

// Axis selects the column key of a matrix.
type Axis int

const (
	ByYear Axis = iota
	ByTimeIndex
)

func (a Axis) String() string {
	if a == ByTimeIndex {
		return "t"
	}
	return "ano"
}

// Default matrix names.
const (
	NameByYear = "tasa_mortalidad_lexis"
	NameByT    = "tasa_mortalidad_lexis_t"
	NameMale   = "tasa_mortalidad_lexis_sexo1"
	NameFemale = "tasa_mortalidad_lexis_sexo2"
)

// Matrix holds per-100k rates with one row per bucket 1..17 and ascending
// columns. Absent cells are NaN.
type Matrix struct {
	Name    string
	Axis    Axis
	Buckets []int
	Columns []int
	Values  [][]float64
}

// Build pivots rows into a matrix keyed by the given axis.
func Build(name string, rows []mortality.Row, axis Axis) (*Matrix, error) {
	colKey := func(r mortality.Row) int {
		if axis == ByTimeIndex {
			return r.T
		}
		return r.Year
	}
	cols := map[int]struct{}{}
	for _, r := range rows {
		cols[colKey(r)] = struct{}{}
	}
	m := &Matrix{Name: name, Axis: axis, Columns: slices.Sorted(maps.Keys(cols))}
	colPos := make(map[int]int, len(m.Columns))
	for i, c := range m.Columns {
		colPos[c] = i
	}
	m.Buckets = make([]int, ageband.NumBuckets)
	m.Values = make([][]float64, ageband.NumBuckets)
	for b := range m.Buckets {
		m.Buckets[b] = b + 1
		m.Values[b] = make([]float64, len(m.Columns))
		for j := range m.Values[b] {
			m.Values[b][j] = math.NaN()
		}
	}
	filled := make(map[[2]int]bool, len(rows))
	for _, r := range rows {
		if r.Bucket < 1 || r.Bucket > ageband.NumBuckets {
			return nil, fmt.Errorf("%s: bucket %d out of range", name, r.Bucket)
		}
		c := colKey(r)
		cell := [2]int{r.Bucket, c}
		if filled[cell] {
			return nil, fmt.Errorf("%s: bucket %d %s %d: %w", name, r.Bucket, axis, c, ErrDuplicateCell)
		}
		filled[cell] = true
		m.Values[r.Bucket-1][colPos[c]] = r.Per100k
	}
	return m, nil
}

// BuildForSex builds a by-year matrix from the rows of one sex.
func BuildForSex(name string, rows []mortality.Row, sex ageband.Sex) (*Matrix, error) {
	var sub []mortality.Row
	for _, r := range rows {
		if r.Sex == sex {
			sub = append(sub, r)
		}
	}
	return Build(name, sub, ByYear)
}

// Row returns the values of a bucket, or nil when out of range.
func (m *Matrix) Row(bucket int) []float64 {
	if bucket < 1 || bucket > len(m.Values) {
		return nil
	}
	return m.Values[bucket-1]
}

// Table renders the matrix with a gr_et column followed by one column per key.
func (m *Matrix) Table() *table.Table {
	header := make([]string, 0, len(m.Columns)+1)
	header = append(header, table.ColBucket)
	for _, c := range m.Columns {
		header = append(header, strconv.Itoa(c))
	}
	t := table.New(m.Name, header...)
	for i, b := range m.Buckets {
		row := make([]string, 0, len(header))
		row = append(row, strconv.Itoa(b))
		for _, v := range m.Values[i] {
			row = append(row, table.FormatFloat(v))
		}
		t.Append(row...)
	}
	return t
}

// Variants selects which matrices BuildAll produces.
type Variants struct {
	ByYear bool
	ByT    bool
	Male   bool
	Female bool
}

// AllVariants enables every matrix.
func AllVariants() Variants {
	return Variants{ByYear: true, ByT: true, Male: true, Female: true}
}

// BuildAll builds the enabled matrices: by year and by t from the
// sex-collapsed rows, per sex from the joined rows.
func BuildAll(collapsed, joined []mortality.Row, v Variants) ([]*Matrix, error) {
	var out []*Matrix
	add := func(m *Matrix, err error) error {
		if err != nil {
			return err
		}
		out = append(out, m)
		return nil
	}
	if v.ByYear {
		if err := add(Build(NameByYear, collapsed, ByYear)); err != nil {
			return nil, err
		}
	}
	if v.ByT {
		if err := add(Build(NameByT, collapsed, ByTimeIndex)); err != nil {
			return nil, err
		}
	}
	if v.Male {
		if err := add(BuildForSex(NameMale, joined, ageband.Male)); err != nil {
			return nil, err
		}
	}
	if v.Female {
		if err := add(BuildForSex(NameFemale, joined, ageband.Female)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
