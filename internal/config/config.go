package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/scuartasr/tfm-tuberc/internal/utils"
)

// Global configuration structure.
type Global struct {
	// Inputs and outputs
	PopulationInput string `mapstructure:"population_input" yaml:"population_input"`
	PopulationSheet string `mapstructure:"population_sheet" yaml:"population_sheet"`
	DeathsDir       string `mapstructure:"deaths_dir" yaml:"deaths_dir"`
	RegionsInput    string `mapstructure:"regions_input" yaml:"regions_input"`
	OutputDir       string `mapstructure:"output_dir" yaml:"output_dir"`

	// Population reading
	Rows      int  `mapstructure:"rows" yaml:"rows"`
	DryRun    bool `mapstructure:"dry_run" yaml:"dry_run"`
	ShapeOnly bool `mapstructure:"shape_only" yaml:"shape_only"`
	MinYear   int  `mapstructure:"min_year" yaml:"min_year"`
	MaxYear   int  `mapstructure:"max_year" yaml:"max_year"`

	// Join and rates
	FillZeros bool    `mapstructure:"fill_zeros" yaml:"fill_zeros"`
	MinRate   float64 `mapstructure:"min_rate" yaml:"min_rate"`

	// Lexis matrices
	NoLexisYear  bool `mapstructure:"no_lexis_year" yaml:"no_lexis_year"`
	NoLexisT     bool `mapstructure:"no_lexis_t" yaml:"no_lexis_t"`
	NoLexisBySex bool `mapstructure:"no_lexis_by_sex" yaml:"no_lexis_by_sex"`

	// Death ingestion
	DeathsMaxFiles int      `mapstructure:"deaths_max_files" yaml:"deaths_max_files"`
	DeathsWorkers  int      `mapstructure:"deaths_workers" yaml:"deaths_workers"`
	Verbose        int      `mapstructure:"verbose" yaml:"verbose"`
	CauseColumn    string   `mapstructure:"cause_column" yaml:"cause_column"`
	Causes         []string `mapstructure:"causes" yaml:"causes"`

	// Validation
	Checks     bool   `mapstructure:"checks" yaml:"checks"`
	ChecksMode string `mapstructure:"checks_mode" yaml:"checks_mode"`

	// Optional sinks
	SQLitePath      string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MetricsTextfile string `mapstructure:"metrics_textfile" yaml:"metrics_textfile"`
}

// Keys lists the configuration keys in declaration order.
var Keys = []string{
	"population_input", "population_sheet", "deaths_dir", "regions_input", "output_dir",
	"rows", "dry_run", "shape_only", "min_year", "max_year",
	"fill_zeros", "min_rate",
	"no_lexis_year", "no_lexis_t", "no_lexis_by_sex",
	"deaths_max_files", "deaths_workers", "verbose", "cause_column", "causes",
	"checks", "checks_mode",
	"sqlite_path", "metrics_textfile",
}

// DefaultPath returns ~/.tuberc/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".tuberc", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.tuberc/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("population_input", "data/raw/poblacion/poblacion_colombia.csv")
	v.SetDefault("population_sheet", "")
	v.SetDefault("deaths_dir", "data/raw/defunc")
	v.SetDefault("regions_input", "")
	v.SetDefault("output_dir", "data/processed")
	v.SetDefault("rows", 0)
	v.SetDefault("dry_run", false)
	v.SetDefault("shape_only", false)
	v.SetDefault("min_year", 1979)
	v.SetDefault("max_year", 2023)
	v.SetDefault("fill_zeros", false)
	v.SetDefault("min_rate", 1e-8)
	v.SetDefault("no_lexis_year", false)
	v.SetDefault("no_lexis_t", false)
	v.SetDefault("no_lexis_by_sex", false)
	v.SetDefault("deaths_max_files", 0)
	v.SetDefault("deaths_workers", 0)
	v.SetDefault("verbose", 1)
	v.SetDefault("cause_column", "cau_homol")
	v.SetDefault("causes", []string{"2"})
	v.SetDefault("checks", true)
	v.SetDefault("checks_mode", "advisory")
	v.SetDefault("sqlite_path", "")
	v.SetDefault("metrics_textfile", "")
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults; command flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("TUBERC")
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".tuberc"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read; a named file that exists must parse
	if err := v.ReadInConfig(); err != nil && cfgFile != "" && utils.FileExists(cfgFile) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// TUBERC_CAUSES arrives as one string; allow "2,3".
	if len(c.Causes) == 1 && strings.Contains(c.Causes[0], ",") {
		c.Causes = splitList(c.Causes[0])
	}
	return &c, nil
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
