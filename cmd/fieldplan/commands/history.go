package commands

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"fieldplan/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(filepath.Join(cfg.DataPath, "fieldplan.db"))
		if err != nil {
			return err
		}
		defer s.Close()
		runs, err := s.ListRuns(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithRenderer(renderer.NewMarkdown()),
			tablewriter.WithHeaderAutoFormat(tw.Off),
		)
		table.Header([]string{"id", "label", "started", "assets", "routes", "agents", "warnings"})
		for _, r := range runs {
			table.Append([]string{
				strconv.FormatInt(r.ID, 10), r.Label, r.StartedAt,
				strconv.Itoa(r.Assets), strconv.Itoa(r.Routes),
				strconv.Itoa(r.Agents), strconv.Itoa(r.Warnings),
			})
		}
		return table.Render()
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(historyCmd)
}
