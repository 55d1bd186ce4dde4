package deaths

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/scuartasr/tfm-tuberc/internal/ageband"
	"github.com/scuartasr/tfm-tuberc/internal/numeric"
	"github.com/scuartasr/tfm-tuberc/internal/table"
)

// Raw column names in the extracts after header normalization.
const (
	ColAgeGroup     = "gru_ed1"
	ColCause        = "cau_homol"
	colDepartment   = "cod_dpto"
	colResidenceDpt = "codptore"
)

// thousandsSampleRows bounds the residual thousands-separator scan per file.
const thousandsSampleRows = 500

// Options controls death-record ingestion.
type Options struct {
	// MaxFiles caps the number of sources processed; 0 means all.
	MaxFiles int
	// Workers bounds concurrent file parsing; 0 uses GOMAXPROCS.
	Workers int
	// CauseColumn holds the homologated cause code.
	CauseColumn string
	// Causes lists the cause codes retained.
	Causes []string
	// Delimiter forces a delimiter; 0 sniffs per file.
	Delimiter rune
	// Verbosity 1 logs per-file summaries, 2 adds the final year x sex summary.
	Verbosity int
	Logger    *slog.Logger
}

// DefaultOptions keeps homologated cause 2 (tuberculosis).
func DefaultOptions() Options {
	return Options{CauseColumn: ColCause, Causes: []string{"2"}}
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Record is one raw death row after cause filtering.
type Record struct {
	Year         int
	SexRaw       string
	AgeGroupCode string
	Department   string
	Cause        string
}

// Row is a retained death classified into the canonical scheme.
type Row struct {
	Year       int
	Sex        ageband.Sex
	Bucket     int
	Department string
}

// Drop reasons tallied per file.
const (
	DropYear     = "invalid_year"
	DropAgeGroup = "unmappable_age_group"
	DropSex      = "unmappable_sex"
)

// FileResult is the outcome of parsing one source.
type FileResult struct {
	Source   Source
	Encoding string
	// Read counts data rows in the file; Matched counts rows of a kept cause.
	Read     int
	Matched  int
	Rows     []Row
	Dropped  map[string]int
	Warnings []string
}

// ParseFile reads one extract, filters it by cause and classifies every
// retained row. Unmappable rows are dropped and tallied, never defaulted.
// A missing required column returns a *table.SchemaError.
func ParseFile(src Source, opt Options) (*FileResult, error) {
	t, err := table.ReadFile(src.Path, table.ReadOptions{Delimiter: opt.Delimiter, NormalizeHeader: true})
	if err != nil {
		return nil, err
	}
	return parseTable(src, t, opt)
}

func parseTable(src Source, t *table.Table, opt Options) (*FileResult, error) {
	res := &FileResult{Source: src, Encoding: t.Encoding, Read: t.Len(), Dropped: map[string]int{}}
	causeCol := table.NormalizeName(opt.CauseColumn)
	if causeCol == "" {
		causeCol = ColCause
	}
	if t.Index(table.ColYear) < 0 && src.HasYear {
		n := len(t.Header)
		t.Header = append(t.Header, table.ColYear)
		y := strconv.Itoa(src.Year)
		for i, row := range t.Rows {
			if len(row) > n {
				row = row[:n]
			}
			t.Rows[i] = append(row, y)
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("column %s added from file name: %d", table.ColYear, src.Year))
	}
	if hasThousands(t) {
		res.Warnings = append(res.Warnings, "possible thousands separator in the first rows")
	}
	if err := t.Require(table.ColYear, table.ColSex, ColAgeGroup, causeCol); err != nil {
		return nil, err
	}

	causes := map[string]bool{}
	for _, c := range opt.Causes {
		causes[normalizeCode(c)] = true
	}
	yearIdx, sexIdx, ageIdx, causeIdx := t.Index(table.ColYear), t.Index(table.ColSex), t.Index(ColAgeGroup), t.Index(causeCol)
	deptIdx := t.Index(colDepartment)
	if deptIdx < 0 {
		deptIdx = t.Index(colResidenceDpt)
	}

	for _, row := range t.Rows {
		rec := Record{
			SexRaw:       table.Cell(row, sexIdx),
			AgeGroupCode: table.Cell(row, ageIdx),
			Department:   padCode(table.Cell(row, deptIdx), 2),
			Cause:        table.Cell(row, causeIdx),
		}
		if !causes[normalizeCode(rec.Cause)] {
			continue
		}
		res.Matched++
		y, err := table.ParseInt(table.Cell(row, yearIdx))
		if err != nil {
			if !src.HasYear {
				res.Dropped[DropYear]++
				continue
			}
			y = src.Year
		}
		rec.Year = y
		r, reason := classify(src, rec)
		if reason != "" {
			res.Dropped[reason]++
			continue
		}
		res.Rows = append(res.Rows, r)
	}
	return res, nil
}

// classify maps a raw record through the era of the file's declared year,
// or of the row's year when the name carries none.
func classify(src Source, rec Record) (Row, string) {
	eraYear := rec.Year
	if src.HasYear {
		eraYear = src.Year
	}
	code, err := ageband.ParseAgeGroupCode(rec.AgeGroupCode)
	if err != nil {
		return Row{}, DropAgeGroup
	}
	bucket, err := ageband.MapAgeGroup(eraYear, code)
	if err != nil {
		var ue *ageband.UnmappableCodeError
		if errors.As(err, &ue) && ue.Kind == "year" {
			return Row{}, DropYear
		}
		return Row{}, DropAgeGroup
	}
	sex, err := ageband.ParseSex(rec.SexRaw)
	if err != nil {
		return Row{}, DropSex
	}
	return Row{Year: rec.Year, Sex: sex, Bucket: bucket, Department: rec.Department}, ""
}

func hasThousands(t *table.Table) bool {
	for i, row := range t.Rows {
		if i >= thousandsSampleRows {
			break
		}
		for _, cell := range row {
			if numeric.HasThousandsPattern(cell) {
				return true
			}
		}
	}
	return false
}

// normalizeCode makes "2", "02" and "2.0" compare equal.
func normalizeCode(s string) string {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".0")
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return trimmed
}

// padCode keeps digits only and left-pads to width; empty stays empty.
func padCode(s string, width int) string {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".0")
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if d == "" {
		return ""
	}
	for len(d) < width {
		d = "0" + d
	}
	return d
}
