package commands

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"fieldplan/internal/emit"
	"fieldplan/internal/pipeline"
	"fieldplan/internal/store"
)

var (
	runLabel string
	runSave  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full planning pipeline and emit every output table",
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		snap, err := loadSnapshot()
		if err != nil {
			return err
		}
		matrices, err := loadMatrices()
		if err != nil {
			return err
		}
		plan, err := pipeline.Run(cmd.Context(), snap, matrices, cfg.Params, pipelineFlags(cmd, pipeline.StageAll))
		if err != nil {
			return err
		}
		if err := emit.WriteAll(cfg.OutputDir, plan, cfg.Params.WeeklyDays); err != nil {
			return err
		}
		if err := emit.WriteSummary(os.Stdout, plan); err != nil {
			return err
		}

		if runSave {
			s, err := store.Open(filepath.Join(cfg.DataPath, "fieldplan.db"))
			if err != nil {
				return err
			}
			defer s.Close()
			if _, err := s.SaveRun(cmd.Context(), runLabel, started, plan); err != nil {
				return err
			}
		}
		log.Info().Dur("elapsed", time.Since(started)).Msg("Run finished")
		return reportDiags(plan)
	},
}

func init() {
	addFrequencyFlags(runCmd)
	addRoutingFlags(runCmd)
	runCmd.Flags().BoolVar(&runSave, "save", false, "record the run in the history database")
	runCmd.Flags().StringVar(&runLabel, "label", "", "label stored with the run")
	rootCmd.AddCommand(runCmd)
}
