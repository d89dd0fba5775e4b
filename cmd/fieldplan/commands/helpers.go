package commands

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"fieldplan/internal/emit"
	"fieldplan/internal/ingest"
	"fieldplan/internal/model"
	"fieldplan/internal/pipeline"
	"fieldplan/internal/travel"
)

var (
	oneToOne        bool
	standardize     bool
	split           bool
	visitAll        bool
	serviceTimeMin  int
	repositionLevel float64
	flex            int
)

func addFrequencyFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&repositionLevel, "reposition-level", 0, "global reposition level override in [0,1)")
	cmd.Flags().IntVar(&flex, "flex", 0, "allow dropping below current frequency by this many visits")
	cmd.Flags().BoolVar(&standardize, "standardize-partner", false, "lift every asset to the partner's max frequency")
	cmd.Flags().BoolVar(&split, "split", false, "split overloaded assets into A/B halves")
}

func addRoutingFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&oneToOne, "one-to-one", false, "weekly consolidation mode, one agent per route")
	cmd.Flags().BoolVar(&visitAll, "visit-all", false, "force at least one weekly visit per asset")
	cmd.Flags().IntVar(&serviceTimeMin, "service-time-min", 0, "override every asset service time, minutes")
}

// pipelineFlags folds the command-line switches into pipeline flags, wiring
// the optional overrides only when their flag was actually set.
func pipelineFlags(cmd *cobra.Command, stage pipeline.Stage) pipeline.Flags {
	if cmd.Flags().Changed("reposition-level") {
		cfg.Params.RepositionLevel = &repositionLevel
	}
	if cmd.Flags().Changed("flex") {
		cfg.Params.Flex = &flex
	}
	return pipeline.Flags{
		Stage:              stage,
		OneToOne:           oneToOne,
		StandardizePartner: standardize,
		Split:              split,
		VisitAll:           visitAll,
		ServiceTimeMin:     serviceTimeMin,
		Workers:            workers,
	}
}

func branchSet() map[string]model.Branch {
	out := make(map[string]model.Branch, len(cfg.Params.Branches))
	for name := range cfg.Params.Branches {
		b, _ := cfg.Params.Branch(name)
		out[name] = b
	}
	return out
}

func loadSnapshot() (*model.Snapshot, error) {
	snap, err := ingest.LoadSnapshot(cfg.InputDir, branchSet())
	if err != nil {
		return nil, err
	}
	if err := ingest.Check(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// loadMatrices returns both modality matrices; branch traffic factors apply
// to the driving durations only.
func loadMatrices() (travel.Set, error) {
	set, err := ingest.LoadTravelSet(cfg.InputDir, branchSet())
	if err != nil {
		return travel.Set{}, err
	}
	for name, m := range set.Driving {
		m.ApplyTrafficFactor(cfg.Params.Branches[name].TrafficFactor)
	}
	return set, nil
}

// reportDiags prints the diagnostic table and fails the command when any
// error-level diagnostic survived the run.
func reportDiags(plan *pipeline.Plan) error {
	if len(plan.Diags) > 0 {
		if err := emit.WriteDiagnostics(os.Stderr, plan.Diags); err != nil {
			return err
		}
	}
	if model.HasErrors(plan.Diags) {
		return errors.New("pipeline finished with errors")
	}
	return nil
}
