package deaths

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/scuartasr/tfm-tuberc/internal/ageband"
	"github.com/scuartasr/tfm-tuberc/internal/table"
)

// AggregateTableName names the per-bucket death table.
const AggregateTableName = "defunciones_por_gr_et"

// ErrNoResults is returned by Ingest when no file produced any retained row.
var ErrNoResults = errors.New("no death records produced")

// Aggregate is the death count of one (year, sex, bucket) cell.
type Aggregate struct {
	Year   int
	Sex    ageband.Sex
	Bucket int
	Deaths int64
}

// Key returns the join key of the aggregate.
func (a Aggregate) Key() ageband.Key {
	return ageband.Key{Year: a.Year, Sex: a.Sex, Bucket: a.Bucket}
}

// File statuses reported by Ingest.
const (
	StatusOK     = "ok"
	StatusEmpty  = "empty"
	StatusFailed = "failed"
)

// FileSummary describes how one source fared.
type FileSummary struct {
	Name     string         `yaml:"name"`
	Year     int            `yaml:"year,omitempty"`
	Status   string         `yaml:"status"`
	Encoding string         `yaml:"encoding,omitempty"`
	Read     int            `yaml:"read"`
	Matched  int            `yaml:"matched"`
	Kept     int            `yaml:"kept"`
	Dropped  map[string]int `yaml:"dropped,omitempty"`
	Warnings []string       `yaml:"warnings,omitempty"`
	Error    string         `yaml:"error,omitempty"`
}

// Report is the deterministic union of all per-file results.
type Report struct {
	Files      []FileSummary
	Rows       []Row
	Aggregates []Aggregate
	Dropped    map[string]int
	OK         int
	Failed     int
}

// Ingest parses sources concurrently and aggregates the retained rows. A file
// that cannot be read or lacks required columns is recorded and skipped.
// Output order depends only on the data, never on scheduling.
func Ingest(ctx context.Context, sources []Source, opt Options) (*Report, error) {
	log := opt.logger()
	if opt.MaxFiles > 0 && len(sources) > opt.MaxFiles {
		log.Info("file cap applied", "max_files", opt.MaxFiles, "available", len(sources))
		sources = sources[:opt.MaxFiles]
	}
	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]*FileResult, len(sources))
	errs := make([]error, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], errs[i] = ParseFile(src, opt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingest deaths: %w", err)
	}

	rep := &Report{Dropped: map[string]int{}}
	for i, src := range sources {
		s := FileSummary{Name: src.Name, Year: src.Year}
		res := results[i]
		switch {
		case errs[i] != nil:
			s.Status = StatusFailed
			s.Error = errs[i].Error()
			rep.Failed++
			log.Warn("death file skipped", "file", src.Name, "err", errs[i])
		default:
			s.Encoding = res.Encoding
			s.Read, s.Matched, s.Kept = res.Read, res.Matched, len(res.Rows)
			s.Dropped, s.Warnings = res.Dropped, res.Warnings
			for k, v := range res.Dropped {
				rep.Dropped[k] += v
			}
			rep.Rows = append(rep.Rows, res.Rows...)
			if len(res.Rows) == 0 {
				s.Status = StatusEmpty
				rep.Failed++
			} else {
				s.Status = StatusOK
				rep.OK++
			}
			for _, w := range res.Warnings {
				log.Warn(w, "file", src.Name)
			}
		}
		if opt.Verbosity >= 1 {
			log.Info("death file processed", "file", s.Name, "status", s.Status, "encoding", s.Encoding,
				"read", s.Read, "matched", s.Matched, "kept", s.Kept, "dropped", dropTotal(s.Dropped))
		}
		rep.Files = append(rep.Files, s)
	}
	rep.Aggregates = AggregateRows(rep.Rows)
	if opt.Verbosity >= 2 {
		logYearSexSummary(log, rep.Aggregates)
	}
	log.Info("death ingestion finished", "ok", rep.OK, "failed", rep.Failed, "rows", len(rep.Rows))
	if len(rep.Rows) == 0 {
		return rep, ErrNoResults
	}
	return rep, nil
}

// AggregateRows counts rows per (year, sex, bucket), ordered by key.
func AggregateRows(rows []Row) []Aggregate {
	counts := map[ageband.Key]int64{}
	for _, r := range rows {
		counts[ageband.Key{Year: r.Year, Sex: r.Sex, Bucket: r.Bucket}]++
	}
	return fromCounts(counts)
}

func fromCounts(counts map[ageband.Key]int64) []Aggregate {
	keys := slices.SortedFunc(maps.Keys(counts), ageband.Key.Compare)
	out := make([]Aggregate, 0, len(keys))
	for _, k := range keys {
		out = append(out, Aggregate{Year: k.Year, Sex: k.Sex, Bucket: k.Bucket, Deaths: counts[k]})
	}
	return out
}

func dropTotal(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

func logYearSexSummary(log *slog.Logger, aggs []Aggregate) {
	type ys struct {
		year int
		sex  ageband.Sex
	}
	totals := map[ys]int64{}
	for _, a := range aggs {
		totals[ys{a.Year, a.Sex}] += a.Deaths
	}
	keys := slices.SortedFunc(maps.Keys(totals), func(a, b ys) int {
		return ageband.Key{Year: a.year, Sex: a.sex}.Compare(ageband.Key{Year: b.year, Sex: b.sex})
	})
	for _, k := range keys {
		log.Info("deaths by year and sex", "year", k.year, "sex", int(k.sex), "deaths", totals[k])
	}
}

// AggregateTable renders aggregates as ano,sexo,gr_et,conteo_defunciones.
func AggregateTable(aggs []Aggregate) *table.Table {
	t := table.New(AggregateTableName, table.ColYear, table.ColSex, table.ColBucket, table.ColDeaths)
	for _, a := range aggs {
		t.Append(strconv.Itoa(a.Year), strconv.Itoa(int(a.Sex)), strconv.Itoa(a.Bucket), strconv.FormatInt(a.Deaths, 10))
	}
	return t
}

// AggregatesFromTable reads a table written by AggregateTable. Duplicate keys
// are summed.
func AggregatesFromTable(t *table.Table) ([]Aggregate, error) {
	if err := t.Require(table.ColYear, table.ColSex, table.ColBucket, table.ColDeaths); err != nil {
		return nil, err
	}
	yearIdx, sexIdx, bucketIdx, deathIdx := t.Index(table.ColYear), t.Index(table.ColSex), t.Index(table.ColBucket), t.Index(table.ColDeaths)
	counts := map[ageband.Key]int64{}
	for i, row := range t.Rows {
		year, err := table.ParseInt(table.Cell(row, yearIdx))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid year: %w", t.Name, i+1, err)
		}
		sex, err := ageband.ParseSex(table.Cell(row, sexIdx))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", t.Name, i+1, err)
		}
		bucket, err := table.ParseInt(table.Cell(row, bucketIdx))
		if err != nil || bucket < 1 || bucket > ageband.NumBuckets {
			return nil, fmt.Errorf("%s row %d: %w", t.Name, i+1, &ageband.UnmappableCodeError{Kind: "bucket", Year: year, Raw: table.Cell(row, bucketIdx)})
		}
		n, err := table.ParseInt(table.Cell(row, deathIdx))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid death count: %w", t.Name, i+1, err)
		}
		counts[ageband.Key{Year: year, Sex: sex, Bucket: bucket}] += int64(n)
	}
	return fromCounts(counts), nil
}
