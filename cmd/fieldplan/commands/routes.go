package commands

import (
	"github.com/spf13/cobra"

	"fieldplan/internal/emit"
	"fieldplan/internal/pipeline"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Solve the daily routes for the scheduled week",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot()
		if err != nil {
			return err
		}
		matrices, err := loadMatrices()
		if err != nil {
			return err
		}
		plan, err := pipeline.Run(cmd.Context(), snap, matrices, cfg.Params, pipelineFlags(cmd, pipeline.StageRoutes))
		if err != nil {
			return err
		}
		if err := emit.WriteFrequencies(cfg.OutputDir, plan); err != nil {
			return err
		}
		if err := emit.WriteSchedule(cfg.OutputDir, plan, cfg.Params.WeeklyDays); err != nil {
			return err
		}
		if err := emit.WriteRoutes(cfg.OutputDir, plan); err != nil {
			return err
		}
		if len(plan.Agents) > 0 {
			if err := emit.WriteAgents(cfg.OutputDir, plan, cfg.Params.WeeklyDays); err != nil {
				return err
			}
		}
		return reportDiags(plan)
	},
}

func init() {
	addFrequencyFlags(routesCmd)
	addRoutingFlags(routesCmd)
	rootCmd.AddCommand(routesCmd)
}
