package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scuartasr/tfm-tuberc/internal/pipeline"
	"github.com/scuartasr/tfm-tuberc/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Re-run integrity checks over the outputs of a previous run",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		applyOverrides(cmd, c)
		mode, err := validate.ParseMode(c.ChecksMode)
		if err != nil {
			return err
		}
		rep, findings, err := pipeline.ValidateDir(c.OutputDir, mode)
		rep.WriteSummary(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %d finding(s) across %d table(s) (%s mode)\n", len(findings), len(rep), mode)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("output-dir", "", "root directory of the outputs to check")
	validateCmd.Flags().String("checks-mode", "", "advisory or critical")
}
