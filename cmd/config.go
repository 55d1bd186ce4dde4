package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "github.com/scuartasr/tfm-tuberc/internal/config"
	"github.com/scuartasr/tfm-tuberc/internal/table"
	"github.com/scuartasr/tfm-tuberc/internal/validate"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set tuberc configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No config loaded")
			return nil
		}
		b, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := setKey(c, args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func setKey(c *cfgpkg.Global, key, val string) error {
	atoi := func(dst *int) error {
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
		*dst = i
		return nil
	}
	parseBool := func(dst *bool) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for %s: %v", key, val)
		}
		*dst = b
		return nil
	}
	switch key {
	case "population_input":
		c.PopulationInput = val
	case "population_sheet":
		c.PopulationSheet = val
	case "deaths_dir":
		c.DeathsDir = val
	case "regions_input":
		c.RegionsInput = val
	case "output_dir":
		c.OutputDir = val
	case "rows":
		return atoi(&c.Rows)
	case "dry_run":
		return parseBool(&c.DryRun)
	case "shape_only":
		return parseBool(&c.ShapeOnly)
	case "min_year":
		return atoi(&c.MinYear)
	case "max_year":
		return atoi(&c.MaxYear)
	case "fill_zeros":
		return parseBool(&c.FillZeros)
	case "min_rate":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid float for min_rate: %v", val)
		}
		c.MinRate = f
	case "no_lexis_year":
		return parseBool(&c.NoLexisYear)
	case "no_lexis_t":
		return parseBool(&c.NoLexisT)
	case "no_lexis_by_sex":
		return parseBool(&c.NoLexisBySex)
	case "deaths_max_files":
		return atoi(&c.DeathsMaxFiles)
	case "deaths_workers":
		return atoi(&c.DeathsWorkers)
	case "verbose":
		return atoi(&c.Verbose)
	case "cause_column":
		c.CauseColumn = table.NormalizeName(val)
	case "causes":
		causes := splitList(val)
		if len(causes) == 0 {
			return fmt.Errorf("causes must list at least one code")
		}
		c.Causes = causes
	case "checks":
		return parseBool(&c.Checks)
	case "checks_mode":
		m, err := validate.ParseMode(val)
		if err != nil {
			return err
		}
		c.ChecksMode = m.String()
	case "sqlite_path":
		c.SQLitePath = val
	case "metrics_textfile":
		c.MetricsTextfile = val
	default:
		return fmt.Errorf("unknown key: %s (known: %s)", key, strings.Join(cfgpkg.Keys, ", "))
	}
	return nil
}
