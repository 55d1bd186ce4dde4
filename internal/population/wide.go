// Package population turns the wide census table into per-age records and
// aggregates them into the canonical age buckets.
package population

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/scuartasr/tfm-tuberc/internal/ageband"
	"github.com/scuartasr/tfm-tuberc/internal/numeric"
	"github.com/scuartasr/tfm-tuberc/internal/table"
)

// Output table names.
const (
	LongTableName   = "poblacion_colombia_larga"
	BucketTableName = "poblacion_colombia_gr_et"
)

// Record is the population of one (year, sex, age) cell.
type Record struct {
	Year       int
	Sex        ageband.Sex
	Age        int
	Population int64
}

// Options controls wide-table conversion.
type Options struct {
	// MaxRows reads only the first N data rows; 0 reads all.
	MaxRows int
	// ShapeOnly validates columns and types but returns no records.
	ShapeOnly bool
	// Years outside [MinYear, MaxYear] are filtered out; 0 disables a bound.
	MinYear int
	MaxYear int
	// Delimiter of the source file; 0 sniffs it.
	Delimiter rune
	// Sheet of an .xlsx source; empty reads the first sheet.
	Sheet string
}

// DefaultOptions returns the 1979-2023 window with no row cap.
func DefaultOptions() Options {
	return Options{MinYear: 1979, MaxYear: 2023}
}

// Skip records a cell or row that was not converted.
type Skip struct {
	Row    int
	Column string
	Reason string
}

// Result holds the converted records and everything left out along the way.
type Result struct {
	Records []Record
	Skipped []Skip
	// Duplicates lists value columns ignored because an earlier column
	// already covered the same (sex, age).
	Duplicates []string
	// ValueColumns is the number of (sex, age) columns detected.
	ValueColumns int
}

var valueColumn = regexp.MustCompile(`^(hombres?|mujeres?)_(\d{1,3})$`)

type valueCol struct {
	index int
	name  string
	sex   ageband.Sex
	age   int
}

// ReadWide reads the wide population file at path and converts it.
func ReadWide(path string, opt Options) (*Result, error) {
	t, err := table.ReadFile(path, table.ReadOptions{
		Delimiter:       opt.Delimiter,
		MaxRows:         opt.MaxRows,
		NormalizeHeader: true,
		Sheet:           opt.Sheet,
		HeaderLabels:    []string{table.ColYear},
	})
	if err != nil {
		return nil, err
	}
	return FromTable(t, opt)
}

// FromTable converts a wide table into long records. Header names are
// normalized before columns are matched, so callers may pass raw headers.
func FromTable(t *table.Table, opt Options) (*Result, error) {
	header := make([]string, len(t.Header))
	for i, h := range t.Header {
		header[i] = table.NormalizeName(h)
	}
	norm := &table.Table{Name: t.Name, Header: header}
	if err := norm.Require(table.ColYear); err != nil {
		return nil, err
	}

	res := &Result{}
	cols := detectValueColumns(header, res)
	if len(cols) == 0 {
		return nil, &table.SchemaError{Table: t.Name, Missing: []string{"hombres_<edad>", "mujeres_<edad>"}}
	}
	res.ValueColumns = len(cols)

	yearIdx := norm.Index(table.ColYear)
	dpnomIdx := norm.Index("dpnom")
	areaIdx := norm.Index("area_geografica")

	rows := t.Rows
	if opt.MaxRows > 0 && len(rows) > opt.MaxRows {
		rows = rows[:opt.MaxRows]
	}
	for i, row := range rows {
		line := i + 1
		if dpnomIdx >= 0 && !strings.EqualFold(table.Cell(row, dpnomIdx), "nacional") {
			continue
		}
		if areaIdx >= 0 && !strings.EqualFold(table.Cell(row, areaIdx), "total") {
			continue
		}
		year, err := table.ParseInt(table.Cell(row, yearIdx))
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Row: line, Column: table.ColYear, Reason: fmt.Sprintf("invalid year %q", table.Cell(row, yearIdx))})
			continue
		}
		if (opt.MinYear > 0 && year < opt.MinYear) || (opt.MaxYear > 0 && year > opt.MaxYear) {
			continue
		}
		for _, c := range cols {
			raw := table.Cell(row, c.index)
			if raw == "" {
				continue
			}
			n, err := numeric.ParseCount(raw)
			if err != nil {
				res.Skipped = append(res.Skipped, Skip{Row: line, Column: c.name, Reason: err.Error()})
				continue
			}
			if opt.ShapeOnly {
				continue
			}
			res.Records = append(res.Records, Record{Year: year, Sex: c.sex, Age: c.age, Population: n})
		}
	}
	slices.SortStableFunc(res.Records, func(a, b Record) int {
		if a.Year != b.Year {
			return cmp.Compare(a.Year, b.Year)
		}
		if a.Sex != b.Sex {
			return cmp.Compare(a.Sex, b.Sex)
		}
		return cmp.Compare(a.Age, b.Age)
	})
	return res, nil
}

// detectValueColumns returns one column per (sex, age), ordered by sex then
// age. Later columns mapping to an already seen (sex, age) are reported as
// duplicates and not read.
func detectValueColumns(header []string, res *Result) []valueCol {
	seen := map[[2]int]bool{}
	var cols []valueCol
	for i, h := range header {
		m := valueColumn.FindStringSubmatch(h)
		if m == nil {
			continue
		}
		sex, err := ageband.ParseSex(m[1])
		if err != nil {
			continue
		}
		age, err := ageband.ParseAge(m[2])
		if err != nil {
			continue
		}
		key := [2]int{int(sex), age}
		if seen[key] {
			res.Duplicates = append(res.Duplicates, h)
			continue
		}
		seen[key] = true
		cols = append(cols, valueCol{index: i, name: h, sex: sex, age: age})
	}
	slices.SortFunc(cols, func(a, b valueCol) int {
		if a.sex != b.sex {
			return cmp.Compare(a.sex, b.sex)
		}
		return cmp.Compare(a.age, b.age)
	})
	return cols
}

// LongTable renders records as ano,sexo,edad,poblacion with sexo written as
// hombre/mujer.
func LongTable(recs []Record) *table.Table {
	t := table.New(LongTableName, table.ColYear, table.ColSex, table.ColAge, table.ColPopulation)
	for _, r := range recs {
		t.Append(strconv.Itoa(r.Year), r.Sex.Label(), strconv.Itoa(r.Age), strconv.FormatInt(r.Population, 10))
	}
	return t
}
