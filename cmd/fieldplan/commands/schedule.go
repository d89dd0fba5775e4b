package commands

import (
	"github.com/spf13/cobra"

	"fieldplan/internal/emit"
	"fieldplan/internal/pipeline"
	"fieldplan/internal/travel"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Assign every asset to weekdays, minimizing the peak daily load",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot()
		if err != nil {
			return err
		}
		plan, err := pipeline.Run(cmd.Context(), snap, travel.Set{}, cfg.Params, pipelineFlags(cmd, pipeline.StageSchedule))
		if err != nil {
			return err
		}
		if err := emit.WriteFrequencies(cfg.OutputDir, plan); err != nil {
			return err
		}
		if err := emit.WriteSchedule(cfg.OutputDir, plan, cfg.Params.WeeklyDays); err != nil {
			return err
		}
		return reportDiags(plan)
	},
}

func init() {
	addFrequencyFlags(scheduleCmd)
	rootCmd.AddCommand(scheduleCmd)
}
