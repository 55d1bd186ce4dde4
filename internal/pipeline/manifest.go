package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/scuartasr/tfm-tuberc/internal/deaths"
	"github.com/scuartasr/tfm-tuberc/internal/store"
	"github.com/scuartasr/tfm-tuberc/internal/utils"
	"github.com/scuartasr/tfm-tuberc/internal/validate"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// StageTiming is the wall time of one stage.
type StageTiming struct {
	Name    string  `yaml:"name"`
	Seconds float64 `yaml:"seconds"`
}

// Manifest summarizes a run and is written next to its outputs.
type Manifest struct {
	RunID       string               `yaml:"run_id"`
	Status      string               `yaml:"status"`
	Error       string               `yaml:"error,omitempty"`
	StartedAt   time.Time            `yaml:"started_at"`
	FinishedAt  time.Time            `yaml:"finished_at"`
	DryRun      bool                 `yaml:"dry_run"`
	OutputDir   string               `yaml:"output_dir"`
	Stages      []StageTiming        `yaml:"stages"`
	Outputs     []Output             `yaml:"outputs"`
	DeathFiles  []deaths.FileSummary `yaml:"death_files,omitempty"`
	FilesOK     int                  `yaml:"files_ok"`
	FilesFailed int                  `yaml:"files_failed"`
	Dropped     map[string]int       `yaml:"dropped,omitempty"`
	Findings    []validate.Finding   `yaml:"findings,omitempty"`
	Warnings    validate.Report      `yaml:"warnings,omitempty"`
}

// Finish builds the manifest and flushes the sinks: manifest file, SQLite
// copy and metrics textfile. Dry runs flush nothing. runErr is the outcome of
// the stages and only sets the status.
func (r *Runner) Finish(ctx context.Context, runErr error) (*Manifest, error) {
	m := &Manifest{
		RunID:       r.id,
		Status:      StatusOK,
		StartedAt:   r.started.UTC(),
		FinishedAt:  time.Now().UTC(),
		DryRun:      r.opt.DryRun,
		OutputDir:   r.opt.OutputDir,
		Stages:      r.stages,
		Outputs:     r.outputs,
		DeathFiles:  r.files,
		FilesOK:     r.filesOK,
		FilesFailed: r.filesBad,
		Findings:    r.findings,
		Warnings:    r.warnings,
	}
	if len(r.dropped) > 0 {
		m.Dropped = r.dropped
	}
	if runErr != nil {
		m.Status = StatusFailed
		m.Error = runErr.Error()
	}
	if r.opt.DryRun {
		r.log.Info("dry run finished", "status", m.Status, "tables", len(m.Outputs))
		return m, nil
	}

	var errs []error
	if err := utils.WriteYAML(filepath.Join(r.opt.OutputDir, ManifestName), m); err != nil {
		errs = append(errs, fmt.Errorf("write manifest: %w", err))
	}
	if r.opt.SQLitePath != "" {
		if err := r.export(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	if r.opt.MetricsTextfile != "" {
		r.metrics.MarkFinished(m.FinishedAt)
		if err := r.metrics.WriteTextfile(r.opt.MetricsTextfile); err != nil {
			errs = append(errs, err)
		}
	}
	r.log.Info("run finished", "status", m.Status, "tables", len(m.Outputs), "warnings", r.warnings.Total())
	return m, errors.Join(errs...)
}

// export copies every produced table into SQLite and records the run.
func (r *Runner) export(ctx context.Context, m *Manifest) error {
	s, err := store.Open(ctx, r.opt.SQLitePath)
	if err != nil {
		return err
	}
	defer s.Close()
	for _, o := range r.outputs {
		if err := s.WriteTable(ctx, r.id, o.Table); err != nil {
			return fmt.Errorf("export %s: %w", o.Name, err)
		}
	}
	err = s.RecordRun(ctx, store.Run{
		ID:          r.id,
		StartedAt:   m.StartedAt,
		FinishedAt:  m.FinishedAt,
		Status:      m.Status,
		FilesOK:     m.FilesOK,
		FilesFailed: m.FilesFailed,
		Warnings:    r.warnings.Total(),
		OutputDir:   m.OutputDir,
	})
	if err != nil {
		return err
	}
	r.log.Info("tables exported", "sqlite", r.opt.SQLitePath, "tables", len(r.outputs))
	return nil
}
