// Package pipeline wires the preprocessing stages together: population,
// deaths, join with rates and Lexis matrices, plus validation and the
// optional sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scuartasr/tfm-tuberc/internal/config"
	"github.com/scuartasr/tfm-tuberc/internal/deaths"
	"github.com/scuartasr/tfm-tuberc/internal/lexis"
	"github.com/scuartasr/tfm-tuberc/internal/logging"
	"github.com/scuartasr/tfm-tuberc/internal/metrics"
	"github.com/scuartasr/tfm-tuberc/internal/mortality"
	"github.com/scuartasr/tfm-tuberc/internal/table"
	"github.com/scuartasr/tfm-tuberc/internal/validate"
)

// Output subdirectories under the output dir.
const (
	DirPopulation = "poblacion"
	DirDeaths     = "defunc"
	DirMortality  = "mortalidad"

	ManifestName = "run_manifest.yaml"

	// dryRunRows caps population rows in dry runs unless Rows is set.
	dryRunRows = 50
)

// Options configures a run.
type Options struct {
	PopulationInput string
	// PopulationSheet names the sheet when the population input is a workbook.
	PopulationSheet string
	DeathsDir       string
	RegionsInput    string
	OutputDir       string

	// Rows caps the population rows read; 0 reads all.
	Rows int
	// DryRun computes every stage but writes nothing.
	DryRun bool
	// ShapeOnly checks the population columns and cell types, then stops.
	ShapeOnly bool
	MinYear   int
	MaxYear   int

	Mortality mortality.Options
	Lexis     lexis.Variants
	Deaths    deaths.Options

	Checks     bool
	ChecksMode validate.Mode

	SQLitePath      string
	MetricsTextfile string

	Logger *slog.Logger
}

// FromConfig maps the global configuration onto run options.
func FromConfig(c *config.Global, log *slog.Logger) (Options, error) {
	mode, err := validate.ParseMode(c.ChecksMode)
	if err != nil {
		return Options{}, err
	}
	dopt := deaths.DefaultOptions()
	dopt.MaxFiles = c.DeathsMaxFiles
	dopt.Workers = c.DeathsWorkers
	dopt.Verbosity = c.Verbose
	dopt.Logger = log
	if c.CauseColumn != "" {
		dopt.CauseColumn = c.CauseColumn
	}
	if len(c.Causes) > 0 {
		dopt.Causes = c.Causes
	}
	return Options{
		PopulationInput: c.PopulationInput,
		PopulationSheet: c.PopulationSheet,
		DeathsDir:       c.DeathsDir,
		RegionsInput:    c.RegionsInput,
		OutputDir:       c.OutputDir,
		Rows:            c.Rows,
		DryRun:          c.DryRun,
		ShapeOnly:       c.ShapeOnly,
		MinYear:         c.MinYear,
		MaxYear:         c.MaxYear,
		Mortality:       mortality.Options{FillZeros: c.FillZeros, MinRate: c.MinRate},
		Lexis: lexis.Variants{
			ByYear: !c.NoLexisYear,
			ByT:    !c.NoLexisT,
			Male:   !c.NoLexisBySex,
			Female: !c.NoLexisBySex,
		},
		Deaths:          dopt,
		Checks:          c.Checks,
		ChecksMode:      mode,
		SQLitePath:      c.SQLitePath,
		MetricsTextfile: c.MetricsTextfile,
		Logger:          log,
	}, nil
}

// Output is one table produced by a run.
type Output struct {
	Table *table.Table `yaml:"-"`
	Name  string       `yaml:"name"`
	Path  string       `yaml:"path"`
	Rows  int          `yaml:"rows"`
}

// Runner executes stages and accumulates what the run produced.
type Runner struct {
	opt     Options
	log     *slog.Logger
	id      string
	started time.Time
	metrics *metrics.Metrics

	stages   []StageTiming
	outputs  []Output
	findings []validate.Finding
	warnings validate.Report
	files    []deaths.FileSummary
	dropped  map[string]int
	filesOK  int
	filesBad int
}

// New creates a runner with a fresh run id.
func New(opt Options) *Runner {
	log := opt.Logger
	if log == nil {
		log = logging.Discard()
	}
	id := uuid.New().String()
	return &Runner{
		opt:      opt,
		log:      log.With("run_id", id),
		id:       id,
		started:  time.Now(),
		metrics:  metrics.New(),
		warnings: validate.Report{},
		dropped:  map[string]int{},
	}
}

// ID returns the run id.
func (r *Runner) ID() string { return r.id }

// Metrics exposes the run collectors.
func (r *Runner) Metrics() *metrics.Metrics { return r.metrics }

// Warnings returns the named warning list gathered so far.
func (r *Runner) Warnings() validate.Report { return r.warnings }

// Outputs returns the tables produced so far, in production order.
func (r *Runner) Outputs() []Output { return r.outputs }

func (r *Runner) stage(name string, fn func() error) error {
	start := time.Now()
	r.log.Info("stage started", "stage", name)
	err := fn()
	r.metrics.ObserveStage(name, start)
	r.stages = append(r.stages, StageTiming{Name: name, Seconds: time.Since(start).Seconds()})
	if err != nil {
		r.log.Error("stage failed", "stage", name, "err", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	r.log.Info("stage finished", "stage", name, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// emit records t and writes it under dir unless this is a dry run.
func (r *Runner) emit(dir string, t *table.Table) error {
	path := OutputPath(r.opt.OutputDir, dir, t.Name)
	r.outputs = append(r.outputs, Output{Table: t, Name: t.Name, Path: path, Rows: t.Len()})
	r.metrics.SetRows(t.Name, t.Len())
	if r.opt.DryRun {
		r.log.Info("dry run, table not written", "table", t.Name, "rows", t.Len())
		return nil
	}
	if err := table.WriteFile(path, t); err != nil {
		return err
	}
	r.log.Info("table written", "table", t.Name, "path", path, "rows", t.Len())
	return nil
}

// check runs the validation findings of one entity through the configured mode.
func (r *Runner) check(entity string, findings []validate.Finding) error {
	if !r.opt.Checks {
		return nil
	}
	for _, f := range findings {
		r.metrics.AddFinding(f.Entity, string(f.Check))
		r.log.Warn(f.Message, "entity", f.Entity, "check", f.Check)
	}
	r.findings = append(r.findings, findings...)
	msgs, err := validate.Apply(findings, r.opt.ChecksMode)
	r.warnings.Add(entity, msgs)
	return err
}

// Run executes the full pipeline and finalizes the run. The manifest is
// returned even when a stage fails.
func Run(ctx context.Context, opt Options) (*Manifest, error) {
	r := New(opt)
	runErr := r.RunAll(ctx)
	m, err := r.Finish(ctx, runErr)
	return m, errors.Join(runErr, err)
}

// RunAll executes every stage in order, stopping at the first failure.
func (r *Runner) RunAll(ctx context.Context) error {
	pop, err := r.Population(ctx)
	if err != nil || r.opt.ShapeOnly {
		return err
	}
	rep, err := r.Deaths(ctx)
	if err != nil {
		return err
	}
	_, err = r.Join(ctx, pop.Aggregates, rep.Aggregates)
	return err
}
