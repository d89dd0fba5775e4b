package commands

import (
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"fieldplan/internal/config"
	"fieldplan/internal/logging"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose    bool
	inputDir   string
	outputDir  string
	configPath string
	workers    int

	cfg *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "fieldplan",
	Short: "fieldplan builds weekly field-service plans",
	Long: `fieldplan chains the four planning stages over one input snapshot:
per-asset visit frequencies from consumption, a peak-minimizing weekly
schedule, daily routes under time-window and travel caps, and weekly agent
bundles.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(verbose)

		var err error
		cfg, err = config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
		if inputDir != "" {
			cfg.InputDir = inputDir
		}
		if outputDir != "" {
			cfg.OutputDir = outputDir
		}
		path := configPath
		if path == "" {
			path = filepath.Join(cfg.InputDir, "params.json")
		}
		if err := cfg.LoadParams(path); err != nil {
			log.Fatal().Err(err).Msg("Failed to load planner parameters")
		}

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("fieldplan starting")
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&inputDir, "input", "i", "", "input directory (default $INPUT_DIR)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory (default $OUTPUT_DIR)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "planner parameter file (default <input>/params.json)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "solver worker pool size (default: CPU count)")
}
