package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	cfgpkg "github.com/scuartasr/tfm-tuberc/internal/config"
	"github.com/scuartasr/tfm-tuberc/internal/logging"
)

var (
	// Global flags
	cfgFile string
	verbose int

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "tuberc",
	Short: "Tuberculosis mortality preprocessing pipeline",
	Long: `tuberc turns the raw Colombian census and death-record extracts into a clean,
joined and rate-annotated time series: population by age bucket, tuberculosis
deaths by age bucket, mortality rates per 100k and the Lexis matrices consumed
by the age-period-cohort model.`,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.tuberc/config.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verbose, "verbose", "v", 1, "log verbosity: 0 warnings, 1 info, 2 debug (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands that need config report it themselves
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		cfg = nil
		return
	}
	cfg = c
	if rootCmd.PersistentFlags().Changed("verbose") {
		cfg.Verbose = verbose
	}
}

// requireConfig returns the loaded configuration or the load error.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}

func newLogger(cmd *cobra.Command, c *cfgpkg.Global) *slog.Logger {
	return logging.New(cmd.ErrOrStderr(), c.Verbose)
}
