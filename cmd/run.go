package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/scuartasr/tfm-tuberc/internal/pipeline"
)

var runPipelineCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full preprocessing pipeline",
	Long: `Run population, deaths, join and Lexis stages in order, validating each
entity on the way. Outputs land under output_dir; a run manifest is written
next to them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(cmd)
		if err != nil {
			return err
		}
		return finish(cmd, r, r.RunAll(cmd.Context()))
	},
}

func init() {
	rootCmd.AddCommand(runPipelineCmd)
	addOutputFlags(runPipelineCmd)
	addPopulationFlags(runPipelineCmd)
	addDeathsFlags(runPipelineCmd)
	addJoinFlags(runPipelineCmd)
	addCheckFlags(runPipelineCmd)
}

// newRunner resolves the effective configuration of cmd into a runner.
func newRunner(cmd *cobra.Command) (*pipeline.Runner, error) {
	c, err := requireConfig()
	if err != nil {
		return nil, err
	}
	applyOverrides(cmd, c)
	opt, err := pipeline.FromConfig(c, newLogger(cmd, c))
	if err != nil {
		return nil, err
	}
	return pipeline.New(opt), nil
}

// finish flushes the run sinks and prints what was produced.
func finish(cmd *cobra.Command, r *pipeline.Runner, runErr error) error {
	m, err := r.Finish(cmd.Context(), runErr)
	out := cmd.OutOrStdout()
	if m != nil {
		printManifest(out, m)
	}
	return errors.Join(runErr, err)
}

func printManifest(out io.Writer, m *pipeline.Manifest) {
	for _, o := range m.Outputs {
		if m.DryRun {
			fmt.Fprintf(out, "✓ %s: %d rows (dry run, not written)\n", o.Name, o.Rows)
			continue
		}
		fmt.Fprintf(out, "✓ %s: %d rows → %s\n", o.Name, o.Rows, o.Path)
	}
	if len(m.Warnings) > 0 {
		m.Warnings.WriteSummary(out)
	}
	if m.Status != pipeline.StatusOK {
		fmt.Fprintf(out, "✗ Run %s failed\n", m.RunID)
		return
	}
	fmt.Fprintf(out, "✓ Run %s finished: %d table(s)\n", m.RunID, len(m.Outputs))
}
