// Package metrics collects per-run counters and writes them in the
// node-exporter textfile format.
package metrics

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/scuartasr/tfm-tuberc/internal/utils"
)

// Metrics provides observability for one pipeline run.
type Metrics struct {
	registry *prometheus.Registry

	DeathFiles       *prometheus.CounterVec
	DroppedRows      *prometheus.CounterVec
	Findings         *prometheus.CounterVec
	RowsWritten      *prometheus.GaugeVec
	StageDuration    *prometheus.HistogramVec
	LastRunTimestamp prometheus.Gauge
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		DeathFiles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tuberc_death_files_total",
			Help: "Death-record files processed, by status",
		}, []string{"status"}),
		DroppedRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tuberc_death_rows_dropped_total",
			Help: "Death rows dropped during classification, by reason",
		}, []string{"reason"}),
		Findings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tuberc_validation_findings_total",
			Help: "Validation findings, by entity and check",
		}, []string{"entity", "check"}),
		RowsWritten: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tuberc_table_rows",
			Help: "Rows in each output table",
		}, []string{"table"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tuberc_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"stage"}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "tuberc_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
}

// Registry exposes the gatherer backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStage records the duration of a stage.
// Call with time.Now() at the start of the stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// AddDeathFile counts one processed death file.
func (m *Metrics) AddDeathFile(status string) {
	m.DeathFiles.WithLabelValues(status).Inc()
}

// AddDropped counts dropped rows for reason.
func (m *Metrics) AddDropped(reason string, n int) {
	m.DroppedRows.WithLabelValues(reason).Add(float64(n))
}

// AddFinding counts one validation finding.
func (m *Metrics) AddFinding(entity, check string) {
	m.Findings.WithLabelValues(entity, check).Inc()
}

// SetRows records the size of an output table.
func (m *Metrics) SetRows(table string, n int) {
	m.RowsWritten.WithLabelValues(table).Set(float64(n))
}

// MarkFinished stamps the run completion time.
func (m *Metrics) MarkFinished(at time.Time) {
	m.LastRunTimestamp.Set(float64(at.Unix()))
}

// WriteTextfile writes all metrics to path for the textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("mkdir metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
