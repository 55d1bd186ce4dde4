package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/scuartasr/tfm-tuberc/internal/config"
)

// Flag groups shared by the stage commands. Every flag overrides the config
// key of the same name (dashes become underscores) when set.

func addOutputFlags(c *cobra.Command) {
	c.Flags().String("output-dir", "", "root directory for outputs (poblacion/, defunc/, mortalidad/)")
	c.Flags().Bool("dry-run", false, "compute every stage but write nothing")
	c.Flags().String("sqlite-path", "", "also export every output table to this SQLite database")
	c.Flags().String("metrics-textfile", "", "write run metrics in Prometheus textfile format")
}

func addPopulationFlags(c *cobra.Command) {
	c.Flags().String("population-input", "", "wide population table (.csv, .txt or .xlsx)")
	c.Flags().String("population-sheet", "", "sheet to read when the population input is .xlsx")
	c.Flags().Int("rows", 0, "read only the first N population rows")
	c.Flags().Bool("shape-only", false, "check population columns and cell types without producing tables")
	c.Flags().Int("min-year", 0, "first census year kept")
	c.Flags().Int("max-year", 0, "last census year kept")
}

func addDeathsFlags(c *cobra.Command) {
	c.Flags().String("deaths-dir", "", "directory with Defun*.txt and Defun*.csv files")
	c.Flags().String("regions-input", "", "department-to-region lookup (cod_dpto, region)")
	c.Flags().Int("deaths-max-files", 0, "process at most N death files (0 = all)")
	c.Flags().Int("deaths-workers", 0, "parallel death-file parsers (0 = GOMAXPROCS)")
	c.Flags().String("cause-column", "", "column holding the homologated cause code")
	c.Flags().String("causes", "", "comma-separated cause codes to keep")
}

func addJoinFlags(c *cobra.Command) {
	c.Flags().Bool("fill-zeros", false, "treat missing death counts as 0 instead of empty")
	c.Flags().Float64("min-rate", 0, "floor applied to rates before scaling to 100k")
	c.Flags().Bool("no-lexis-year", false, "skip the Lexis matrix by year")
	c.Flags().Bool("no-lexis-t", false, "skip the Lexis matrix by time index")
	c.Flags().Bool("no-lexis-by-sex", false, "skip the per-sex Lexis matrices")
}

func addCheckFlags(c *cobra.Command) {
	c.Flags().Bool("no-checks", false, "disable integrity validation")
	c.Flags().String("checks-mode", "", "advisory or critical")
}

// applyOverrides copies explicitly set flags of cmd onto c.
func applyOverrides(cmd *cobra.Command, c *cfgpkg.Global) {
	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	flag := func(name string, dst *bool) {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}

	str("output-dir", &c.OutputDir)
	flag("dry-run", &c.DryRun)
	str("sqlite-path", &c.SQLitePath)
	str("metrics-textfile", &c.MetricsTextfile)

	str("population-input", &c.PopulationInput)
	str("population-sheet", &c.PopulationSheet)
	num("rows", &c.Rows)
	flag("shape-only", &c.ShapeOnly)
	num("min-year", &c.MinYear)
	num("max-year", &c.MaxYear)

	str("deaths-dir", &c.DeathsDir)
	str("regions-input", &c.RegionsInput)
	num("deaths-max-files", &c.DeathsMaxFiles)
	num("deaths-workers", &c.DeathsWorkers)
	str("cause-column", &c.CauseColumn)
	if f.Changed("causes") {
		v, _ := f.GetString("causes")
		c.Causes = splitList(v)
	}

	flag("fill-zeros", &c.FillZeros)
	if f.Changed("min-rate") {
		c.MinRate, _ = f.GetFloat64("min-rate")
	}
	flag("no-lexis-year", &c.NoLexisYear)
	flag("no-lexis-t", &c.NoLexisT)
	flag("no-lexis-by-sex", &c.NoLexisBySex)

	if f.Changed("no-checks") {
		off, _ := f.GetBool("no-checks")
		c.Checks = !off
	}
	str("checks-mode", &c.ChecksMode)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
