package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/scuartasr/tfm-tuberc/internal/deaths"
)

var deathsCmd = &cobra.Command{
	Use:   "deaths",
	Short: "Ingest death-record files and count tuberculosis deaths by age bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(cmd)
		if err != nil {
			return err
		}
		rep, err := r.Deaths(cmd.Context())
		if rep != nil {
			printDeathFiles(cmd.OutOrStdout(), rep.Files)
		}
		return finish(cmd, r, err)
	},
}

func init() {
	rootCmd.AddCommand(deathsCmd)
	addOutputFlags(deathsCmd)
	addDeathsFlags(deathsCmd)
	addCheckFlags(deathsCmd)
}

func printDeathFiles(out io.Writer, files []deaths.FileSummary) {
	for _, f := range files {
		switch f.Status {
		case deaths.StatusOK:
			fmt.Fprintf(out, "✓ %s: %d/%d rows kept\n", f.Name, f.Kept, f.Matched)
		case deaths.StatusEmpty:
			fmt.Fprintf(out, "⚠ %s: no rows kept (%d read)\n", f.Name, f.Read)
		default:
			fmt.Fprintf(out, "⚠ %s: skipped: %s\n", f.Name, f.Error)
		}
	}
}
