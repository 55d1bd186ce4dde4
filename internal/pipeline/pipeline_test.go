package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/scuartasr/tfm-tuberc/internal/config"
	"github.com/scuartasr/tfm-tuberc/internal/deaths"
	"github.com/scuartasr/tfm-tuberc/internal/lexis"
	"github.com/scuartasr/tfm-tuberc/internal/mortality"
	"github.com/scuartasr/tfm-tuberc/internal/population"
	"github.com/scuartasr/tfm-tuberc/internal/store"
	"github.com/scuartasr/tfm-tuberc/internal/table"
	"github.com/scuartasr/tfm-tuberc/internal/validate"
)

// 1979 male ages 0-4 add up to the census reference total.
const wide = "DPNOM;Año;Área Geográfica;Hombres_0;Hombres_1;Hombres_2;Hombres_3;Hombres_4;Hombres_5;Mujeres_0;Mujeres_5\n" +
	"Nacional;1979;Total;380.350;360.000;355.000;350.591;350.000;340.000;370.000;330.000\n" +
	"Nacional;1979;Cabecera;1;1;1;1;1;1;1;1\n" +
	"Nacional;1980;Total;390.000;370.000;360.000;355.000;350.000;345.000;380.000;335.000\n"

type fixture struct {
	root    string
	opt     Options
	regions string
}

func newFixture(t *testing.T, popCSV string) *fixture {
	t.Helper()
	root := t.TempDir()
	write := func(rel, content string) string {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}
	popPath := write("raw/poblacion.csv", popCSV)
	write("raw/defunc/Defun1979.txt", "ANO\tSEXO\tGRU_ED1\tCAU_HOMOL\tCOD_DPTO\n"+
		"1979\t1\t07\t2\t5\n"+
		"1979\t1\t08\t2\t5\n"+
		"1979\t2\t03\t2\t76\n"+
		"1979\t1\t07\t5\t5\n")
	write("raw/defunc/Defun1980.txt", "ANO\tSEXO\tGRU_ED1\tCAU_HOMOL\tCOD_DPTO\n"+
		"1980\t2\t08\t2\t99\n"+
		"1980\t1\t25\t2\t5\n")
	regions := write("raw/regiones.csv", "cod_dpto,region\n05,Andina\n76,Pacifica\n")

	dopt := deaths.DefaultOptions()
	dopt.Workers = 2
	return &fixture{
		root:    root,
		regions: regions,
		opt: Options{
			PopulationInput: popPath,
			DeathsDir:       filepath.Join(root, "raw", "defunc"),
			OutputDir:       filepath.Join(root, "out"),
			MinYear:         1979,
			MaxYear:         2023,
			Mortality:       mortality.DefaultOptions(),
			Lexis:           lexis.AllVariants(),
			Deaths:          dopt,
			Checks:          true,
			ChecksMode:      validate.Advisory,
		},
	}
}

func (f *fixture) out(parts ...string) string {
	return filepath.Join(append([]string{f.opt.OutputDir}, parts...)...)
}

func readTable(t *testing.T, path string) *table.Table {
	t.Helper()
	tb, err := table.ReadFile(path, table.ReadOptions{})
	require.NoError(t, err)
	return tb
}

func TestRunWritesEveryOutput(t *testing.T) {
	f := newFixture(t, wide)
	f.opt.SQLitePath = filepath.Join(f.root, "db", "tuberc.sqlite")
	f.opt.MetricsTextfile = filepath.Join(f.root, "metrics", "tuberc.prom")

	m, err := Run(context.Background(), f.opt)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, m.Status)
	assert.NotEmpty(t, m.RunID)
	assert.Equal(t, 2, m.FilesOK)
	assert.Equal(t, 0, m.FilesFailed)
	assert.Equal(t, 1, m.Dropped[deaths.DropAgeGroup])
	require.Len(t, m.Stages, 4)
	assert.Equal(t, StageLexis, m.Stages[3].Name)

	var names []string
	for _, o := range m.Outputs {
		names = append(names, o.Name)
		assert.FileExists(t, o.Path)
	}
	assert.Equal(t, []string{
		population.LongTableName, population.BucketTableName,
		deaths.AggregateTableName,
		mortality.JoinedTableName, mortality.CollapsedTableName,
		lexis.NameByYear, lexis.NameByT, lexis.NameMale, lexis.NameFemale,
	}, names)

	buckets := readTable(t, f.out(DirPopulation, population.BucketTableName+".csv"))
	assert.Equal(t, 8, buckets.Len())
	assert.Equal(t, []string{"1979", "1", "1", "1795941"}, buckets.Rows[0])

	joined := readTable(t, f.out(DirMortality, mortality.JoinedTableName+".csv"))
	require.Equal(t, 8, joined.Len())
	deathIdx, yearIdx := joined.Index(table.ColDeaths), joined.Index(table.ColYear)
	missing := 0
	for _, row := range joined.Rows {
		if table.Cell(row, deathIdx) == "" {
			missing++
			assert.Equal(t, "1980", table.Cell(row, yearIdx))
		}
	}
	assert.Equal(t, 3, missing, "population cells without deaths stay blank")

	lexisYear := readTable(t, f.out(DirMortality, lexis.NameByYear+".csv"))
	assert.Equal(t, []string{"gr_et", "1979", "1980"}, lexisYear.Header)
	assert.Equal(t, 17, lexisYear.Len())

	assert.Contains(t, m.Warnings[validate.EntityPopulation][0], "last year 1980 < 2023")
	assert.Empty(t, m.Warnings[validate.EntityJoined])

	raw, err := os.ReadFile(f.out(ManifestName))
	require.NoError(t, err)
	var onDisk Manifest
	require.NoError(t, yaml.Unmarshal(raw, &onDisk))
	assert.Equal(t, m.RunID, onDisk.RunID)
	assert.Len(t, onDisk.Outputs, 9)
	assert.Len(t, onDisk.DeathFiles, 2)

	s, err := store.Open(context.Background(), f.opt.SQLitePath)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.CountRows(context.Background(), lexis.NameByT)
	require.NoError(t, err)
	assert.Equal(t, 17, n)
	runs, err := s.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, m.RunID, runs[0].ID)

	prom, err := os.ReadFile(f.opt.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `tuberc_death_files_total{status="ok"} 2`)
	assert.Contains(t, string(prom), `tuberc_table_rows{table="tasa_mortalidad_lexis"} 17`)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	f := newFixture(t, wide)
	f.opt.DryRun = true
	f.opt.SQLitePath = filepath.Join(f.root, "db", "tuberc.sqlite")

	m, err := Run(context.Background(), f.opt)
	require.NoError(t, err)
	assert.True(t, m.DryRun)
	assert.Len(t, m.Outputs, 9)
	assert.NoDirExists(t, f.opt.OutputDir)
	assert.NoFileExists(t, f.opt.SQLitePath)
}

func TestRunCriticalModeAbortsOnSentinelMismatch(t *testing.T) {
	// Age 0 truncated by a thousands-separator cleaning error.
	truncated := strings.Replace(wide, "Nacional;1979;Total;380.350", "Nacional;1979;Total;38.035", 1)
	f := newFixture(t, truncated)
	f.opt.ChecksMode = validate.Critical

	m, err := Run(context.Background(), f.opt)
	require.Error(t, err)
	var ie *validate.IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, validate.CheckSentinel, ie.Finding.Check)
	assert.Equal(t, "1453626", ie.Finding.Observed)

	assert.Equal(t, StatusFailed, m.Status)
	assert.Empty(t, m.Outputs, "nothing is emitted once a check escalates")
	assert.FileExists(t, f.out(ManifestName))
}

func TestRunAdvisoryModeKeepsGoing(t *testing.T) {
	truncated := strings.Replace(wide, "Nacional;1979;Total;380.350", "Nacional;1979;Total;38.035", 1)
	f := newFixture(t, truncated)

	m, err := Run(context.Background(), f.opt)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, m.Status)
	var sentinel bool
	for _, fd := range m.Findings {
		sentinel = sentinel || fd.Check == validate.CheckSentinel
	}
	assert.True(t, sentinel)
}

func TestRunShapeOnlyStopsAfterPopulation(t *testing.T) {
	f := newFixture(t, wide)
	f.opt.ShapeOnly = true

	m, err := Run(context.Background(), f.opt)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, m.Status)
	assert.Empty(t, m.Outputs)
	require.Len(t, m.Stages, 1)
	assert.Equal(t, StagePopulation, m.Stages[0].Name)
	assert.NoDirExists(t, f.out(DirPopulation))
	assert.FileExists(t, f.out(ManifestName))
}

func TestRunRegionsAndFillZeros(t *testing.T) {
	f := newFixture(t, wide)
	f.opt.RegionsInput = f.regions
	f.opt.Mortality.FillZeros = true
	f.opt.Lexis = lexis.Variants{ByYear: true}

	m, err := Run(context.Background(), f.opt)
	require.NoError(t, err)
	assert.Len(t, m.Outputs, 7)

	regions := readTable(t, f.out(DirDeaths, deaths.RegionTableName+".csv"))
	totals := map[string]int{}
	regionIdx, deathIdx := regions.Index(table.ColRegion), regions.Index(table.ColDeaths)
	for _, row := range regions.Rows {
		n, err := table.ParseInt(table.Cell(row, deathIdx))
		require.NoError(t, err)
		totals[table.Cell(row, regionIdx)] += n
	}
	assert.Equal(t, map[string]int{"Andina": 2, "Pacifica": 1, deaths.UnknownRegion: 1}, totals)

	joined := readTable(t, f.out(DirMortality, mortality.JoinedTableName+".csv"))
	deathIdx = joined.Index(table.ColDeaths)
	for _, row := range joined.Rows {
		assert.NotEmpty(t, table.Cell(row, deathIdx))
	}
}

func TestRunFailsWithoutDeathFiles(t *testing.T) {
	f := newFixture(t, wide)
	f.opt.DeathsDir = filepath.Join(f.root, "empty")

	m, err := Run(context.Background(), f.opt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deaths: no Defun")
	assert.Equal(t, StatusFailed, m.Status)
	assert.Len(t, m.Outputs, 2)
}

func TestJoinFromPreviousOutputs(t *testing.T) {
	f := newFixture(t, wide)
	first, err := Run(context.Background(), f.opt)
	require.NoError(t, err)

	r := New(f.opt)
	pop, dth, err := r.LoadAggregates()
	require.NoError(t, err)
	assert.Len(t, pop, 8)
	assert.Len(t, dth, 4)

	out, err := r.Join(context.Background(), pop, dth)
	require.NoError(t, err)
	require.Len(t, out.Joined, 8)
	require.Len(t, out.Collapsed, 4)
	assert.Len(t, out.Matrices, 4)
	assert.NotEqual(t, first.RunID, r.ID())

	// 1980 bucket 1 has no deaths for either sex.
	for _, row := range out.Collapsed {
		if row.Year == 1980 && row.Bucket == 1 {
			assert.True(t, math.IsNaN(row.Deaths))
			assert.Equal(t, 2, row.T)
		}
	}
}

func TestValidateDir(t *testing.T) {
	f := newFixture(t, wide)
	_, err := Run(context.Background(), f.opt)
	require.NoError(t, err)

	rep, findings, err := ValidateDir(f.opt.OutputDir, validate.Critical)
	require.NoError(t, err)
	assert.Len(t, rep, 3)
	assert.NotEmpty(t, findings)
	assert.Empty(t, rep[validate.EntityDeaths])

	_, _, err = ValidateDir(filepath.Join(f.root, "nothing-here"), validate.Advisory)
	require.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	c := &config.Global{
		OutputDir:    "out",
		NoLexisBySex: true,
		FillZeros:    true,
		MinRate:      1e-6,
		CauseColumn:  "cau_homol",
		Causes:       []string{"2", "3"},
		ChecksMode:   "critical",
		Checks:       true,
		Verbose:      2,
	}
	opt, err := FromConfig(c, nil)
	require.NoError(t, err)
	assert.Equal(t, lexis.Variants{ByYear: true, ByT: true}, opt.Lexis)
	assert.Equal(t, validate.Critical, opt.ChecksMode)
	assert.True(t, opt.Mortality.FillZeros)
	assert.Equal(t, []string{"2", "3"}, opt.Deaths.Causes)
	assert.Equal(t, 2, opt.Deaths.Verbosity)

	c.ChecksMode = "loud"
	_, err = FromConfig(c, nil)
	require.Error(t, err)
}
