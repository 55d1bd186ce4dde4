package cmd

import (
	"github.com/spf13/cobra"
)

var populationCmd = &cobra.Command{
	Use:   "population",
	Short: "Convert the wide census table into long and age-bucket tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(cmd)
		if err != nil {
			return err
		}
		_, err = r.Population(cmd.Context())
		return finish(cmd, r, err)
	},
}

func init() {
	rootCmd.AddCommand(populationCmd)
	addOutputFlags(populationCmd)
	addPopulationFlags(populationCmd)
	addCheckFlags(populationCmd)
}
