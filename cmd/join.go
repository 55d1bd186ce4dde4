package cmd

import (
	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join population and death buckets, derive rates and build Lexis matrices",
	Long: `Reads poblacion/poblacion_colombia_gr_et.csv and defunc/defunciones_por_gr_et.csv
from output_dir (as left by the population and deaths commands) and writes the
joined, sex-collapsed and Lexis tables under mortalidad/.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(cmd)
		if err != nil {
			return err
		}
		pop, dth, err := r.LoadAggregates()
		if err == nil {
			_, err = r.Join(cmd.Context(), pop, dth)
		}
		return finish(cmd, r, err)
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
	addOutputFlags(joinCmd)
	addJoinFlags(joinCmd)
	addCheckFlags(joinCmd)
}
