package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.AddDeathFile("ok")
	m.AddDeathFile("ok")
	m.AddDeathFile("failed")
	m.AddDropped("unmappable_age_group", 4)
	m.AddFinding("joined", "deaths_without_population")
	m.SetRows("poblacion_colombia_gr_et", 1530)
	m.ObserveStage("join", time.Now())
	m.MarkFinished(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "textfile", "tuberc.prom")
	require.NoError(t, m.WriteTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)

	assert.Contains(t, out, `tuberc_death_files_total{status="ok"} 2`)
	assert.Contains(t, out, `tuberc_death_files_total{status="failed"} 1`)
	assert.Contains(t, out, `tuberc_death_rows_dropped_total{reason="unmappable_age_group"} 4`)
	assert.Contains(t, out, `tuberc_validation_findings_total{check="deaths_without_population",entity="joined"} 1`)
	assert.Contains(t, out, `tuberc_table_rows{table="poblacion_colombia_gr_et"} 1530`)
	assert.Contains(t, out, `tuberc_stage_duration_seconds_count{stage="join"} 1`)
	assert.Contains(t, out, "tuberc_last_run_timestamp_seconds 1.7e+09")
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.AddDeathFile("ok")
	families, err := b.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		assert.NotEqual(t, "tuberc_death_files_total", f.GetName(), "separate registries must not share samples")
	}
}
