// Package table reads and writes the delimited tables exchanged between
// pipeline stages.
package table

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Canonical column names shared by every stage.
const (
	ColYear       = "ano"
	ColSex        = "sexo"
	ColAge        = "edad"
	ColBucket     = "gr_et"
	ColPopulation = "poblacion"
	ColDeaths     = "conteo_defunciones"
	ColT          = "t"
	ColRate       = "tasa"
	ColRate100k   = "tasa_x100k"
	ColDepartment = "cod_dpto"
	ColRegion     = "region"
)

// Table is an in-memory delimited table. Rows are padded to the header width
// when read.
type Table struct {
	Name      string
	Header    []string
	Rows      [][]string
	Encoding  string
	Delimiter rune
}

// New returns an empty table with the given header.
func New(name string, header ...string) *Table {
	return &Table{Name: name, Header: header, Delimiter: ','}
}

// Append adds one row.
func (t *Table) Append(values ...string) {
	t.Rows = append(t.Rows, values)
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	return slices.Index(t.Header, name)
}

// Has reports whether all columns are present.
func (t *Table) Has(cols ...string) bool {
	return len(t.Missing(cols...)) == 0
}

// Missing returns the subset of cols absent from the header, in the given order.
func (t *Table) Missing(cols ...string) []string {
	var out []string
	for _, c := range cols {
		if t.Index(c) < 0 {
			out = append(out, c)
		}
	}
	return out
}

// Require returns a *SchemaError when any of cols is absent.
func (t *Table) Require(cols ...string) error {
	if missing := t.Missing(cols...); len(missing) > 0 {
		return &SchemaError{Table: t.Name, Missing: missing}
	}
	return nil
}

// Cell returns row[col], or "" when col is out of range.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// SchemaError reports required columns absent from a table.
type SchemaError struct {
	Table   string
	Missing []string
}

func (e *SchemaError) Error() string {
	name := e.Table
	if name == "" {
		name = "table"
	}
	return fmt.Sprintf("%s: missing required columns %s", name, strings.Join(e.Missing, ","))
}

// FormatFloat renders a float cell; NaN becomes an empty field.
func FormatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseFloat reads a float cell; an empty field is NaN.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "<na>") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// ParseInt reads an integer cell, tolerating a trailing ".0" left by
// float-typed writers.
func ParseInt(s string) (int, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".0")
	return strconv.Atoi(s)
}
