package commands

import (
	"github.com/spf13/cobra"

	"fieldplan/internal/emit"
	"fieldplan/internal/pipeline"
	"fieldplan/internal/travel"
)

var frequenciesCmd = &cobra.Command{
	Use:   "frequencies",
	Short: "Derive weekly visit frequencies per asset from consumption",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot()
		if err != nil {
			return err
		}
		plan, err := pipeline.Run(cmd.Context(), snap, travel.Set{}, cfg.Params, pipelineFlags(cmd, pipeline.StageFrequencies))
		if err != nil {
			return err
		}
		if err := emit.WriteFrequencies(cfg.OutputDir, plan); err != nil {
			return err
		}
		return reportDiags(plan)
	},
}

func init() {
	addFrequencyFlags(frequenciesCmd)
	rootCmd.AddCommand(frequenciesCmd)
}
