package cmd

import (
	"github.com/signalnine/triage/internal/report"
	"github.com/spf13/cobra"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [output-dir]",
		Short: "Summarize stored classification results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := cfg.ResultsDir
			if len(args) > 0 {
				dir = args[0]
			}
			tax, err := cfg.Taxonomy()
			if err != nil {
				return err
			}
			return report.Generate(dir, flagFormat, cmd.OutOrStdout(), tax, cfg.Sampling.Seed)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}
