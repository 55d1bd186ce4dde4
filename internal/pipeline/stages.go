package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/scuartasr/tfm-tuberc/internal/deaths"
	"github.com/scuartasr/tfm-tuberc/internal/lexis"
	"github.com/scuartasr/tfm-tuberc/internal/mortality"
	"github.com/scuartasr/tfm-tuberc/internal/population"
	"github.com/scuartasr/tfm-tuberc/internal/table"
	"github.com/scuartasr/tfm-tuberc/internal/validate"
)

// Stage names, also used as metric labels.
const (
	StagePopulation = "population"
	StageDeaths     = "deaths"
	StageJoin       = "join"
	StageLexis      = "lexis"
)

// PopulationOutput is what the population stage produced.
type PopulationOutput struct {
	Result     *population.Result
	Long       *table.Table
	Aggregates []population.Aggregate
	Buckets    *table.Table
}

// Population converts the wide census table to long form, validates it and
// aggregates it into age buckets.
func (r *Runner) Population(ctx context.Context) (*PopulationOutput, error) {
	var out *PopulationOutput
	err := r.stage(StagePopulation, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		popt := population.DefaultOptions()
		popt.MinYear, popt.MaxYear = r.opt.MinYear, r.opt.MaxYear
		popt.MaxRows = r.opt.Rows
		popt.Sheet = r.opt.PopulationSheet
		popt.ShapeOnly = r.opt.ShapeOnly
		if r.opt.DryRun && popt.MaxRows == 0 {
			popt.MaxRows = dryRunRows
		}
		res, err := population.ReadWide(r.opt.PopulationInput, popt)
		if err != nil {
			return err
		}
		for _, d := range res.Duplicates {
			r.log.Warn("duplicate population column ignored", "column", d)
		}
		for _, s := range res.Skipped {
			r.log.Debug("population cell skipped", "row", s.Row, "column", s.Column, "reason", s.Reason)
		}
		if len(res.Skipped) > 0 {
			r.log.Warn("population cells skipped", "count", len(res.Skipped))
		}
		if r.opt.ShapeOnly {
			r.log.Info("population shape checked", "value_columns", res.ValueColumns, "skipped", len(res.Skipped))
			out = &PopulationOutput{Result: res}
			return nil
		}
		r.log.Info("population read", "records", len(res.Records), "value_columns", res.ValueColumns)

		long := population.LongTable(res.Records)
		if err := r.check(validate.EntityPopulation, validate.Population(long)); err != nil {
			return err
		}
		aggs := population.AggregateRecords(res.Records)
		buckets := population.BucketTable(aggs)
		if err := r.emit(DirPopulation, long); err != nil {
			return err
		}
		if err := r.emit(DirPopulation, buckets); err != nil {
			return err
		}
		out = &PopulationOutput{Result: res, Long: long, Aggregates: aggs, Buckets: buckets}
		return nil
	})
	return out, err
}

// Deaths ingests every death file in the deaths dir, validates the
// aggregate and, when a region lookup is configured, adds the regional
// breakdown.
func (r *Runner) Deaths(ctx context.Context) (*deaths.Report, error) {
	var out *deaths.Report
	err := r.stage(StageDeaths, func() error {
		sources, err := deaths.Discover(r.opt.DeathsDir)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			return fmt.Errorf("no Defun*.txt or Defun*.csv files in %s", r.opt.DeathsDir)
		}
		dopt := r.opt.Deaths
		if dopt.Logger == nil {
			dopt.Logger = r.log
		}
		rep, err := deaths.Ingest(ctx, sources, dopt)
		if rep != nil {
			r.recordDeaths(rep)
		}
		if err != nil {
			return err
		}

		agg := deaths.AggregateTable(rep.Aggregates)
		if err := r.check(validate.EntityDeaths, validate.Deaths(agg)); err != nil {
			return err
		}
		if err := r.emit(DirDeaths, agg); err != nil {
			return err
		}
		if r.opt.RegionsInput != "" {
			regions, err := deaths.LoadRegions(r.opt.RegionsInput)
			if err != nil {
				return err
			}
			if err := r.emit(DirDeaths, deaths.RegionTable(deaths.AggregateByRegion(rep.Rows, regions))); err != nil {
				return err
			}
		}
		out = rep
		return nil
	})
	return out, err
}

func (r *Runner) recordDeaths(rep *deaths.Report) {
	r.files = append(r.files, rep.Files...)
	r.filesOK += rep.OK
	r.filesBad += rep.Failed
	for _, f := range rep.Files {
		r.metrics.AddDeathFile(f.Status)
	}
	for reason, n := range rep.Dropped {
		r.dropped[reason] += n
		r.metrics.AddDropped(reason, n)
	}
}

// JoinOutput is what the join and Lexis stages produced.
type JoinOutput struct {
	Joined    []mortality.Row
	Collapsed []mortality.Row
	Matrices  []*lexis.Matrix
}

// Join joins the aggregates, derives rates, collapses sex and pivots the
// enabled Lexis matrices.
func (r *Runner) Join(ctx context.Context, pop []population.Aggregate, dth []deaths.Aggregate) (*JoinOutput, error) {
	out := &JoinOutput{}
	err := r.stage(StageJoin, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out.Joined = mortality.Join(pop, dth, r.opt.Mortality)
		joined := mortality.JoinedTable(out.Joined)
		if err := r.check(validate.EntityJoined, validate.Joined(joined)); err != nil {
			return err
		}
		out.Collapsed = mortality.CollapseSex(out.Joined, r.opt.Mortality)
		if err := r.emit(DirMortality, joined); err != nil {
			return err
		}
		return r.emit(DirMortality, mortality.CollapsedTable(out.Collapsed))
	})
	if err != nil {
		return nil, err
	}
	err = r.stage(StageLexis, func() error {
		mats, err := lexis.BuildAll(out.Collapsed, out.Joined, r.opt.Lexis)
		if err != nil {
			return err
		}
		for _, m := range mats {
			if err := r.emit(DirMortality, m.Table()); err != nil {
				return err
			}
		}
		out.Matrices = mats
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadAggregates reads the bucket tables of a previous run from the output dir.
func (r *Runner) LoadAggregates() ([]population.Aggregate, []deaths.Aggregate, error) {
	popTable, err := table.ReadFile(OutputPath(r.opt.OutputDir, DirPopulation, population.BucketTableName), table.ReadOptions{})
	if err != nil {
		return nil, nil, err
	}
	pop, err := population.AggregatesFromTable(popTable)
	if err != nil {
		return nil, nil, err
	}
	dthTable, err := table.ReadFile(OutputPath(r.opt.OutputDir, DirDeaths, deaths.AggregateTableName), table.ReadOptions{})
	if err != nil {
		return nil, nil, err
	}
	dth, err := deaths.AggregatesFromTable(dthTable)
	if err != nil {
		return nil, nil, err
	}
	r.log.Info("aggregates loaded", "population", len(pop), "deaths", len(dth))
	return pop, dth, nil
}

// OutputPath returns the csv path of a named table under outputDir/dir.
func OutputPath(outputDir, dir, name string) string {
	return filepath.Join(outputDir, dir, name+".csv")
}
