package cmd

import (
	"fmt"
	"os"

	"github.com/signalnine/triage/internal/crash"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagCrashModelSize string
	flagCrashFormat    string
	flagCrashOutput    string
)

func newCrashesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crashes",
		Short: "Analyze infrastructure crashes across all trajectory files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rep, err := crash.Analyze(cfg.TrajectoriesDir, flagCrashModelSize)
			if err != nil {
				return err
			}
			if flagCrashOutput == "" {
				return rep.Write(cmd.OutOrStdout(), flagCrashFormat)
			}

			f, err := os.Create(flagCrashOutput)
			if err != nil {
				return fmt.Errorf("creating %s: %w", flagCrashOutput, err)
			}
			if err := rep.Write(f, flagCrashFormat); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			logger.Info("wrote crash report", zap.String("path", flagCrashOutput), zap.Int("crashes", rep.Totals.Crashes))
			fmt.Fprintf(cmd.OutOrStdout(), "Crash report written to %s (%d crashes in %d entries)\n",
				flagCrashOutput, rep.Totals.Crashes, rep.Totals.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagCrashModelSize, "model-size", "", "only this agent model size")
	cmd.Flags().StringVar(&flagCrashFormat, "format", "table", fmt.Sprintf("output format %v", crash.Formats))
	cmd.Flags().StringVarP(&flagCrashOutput, "output", "o", "", "write the report to a file instead of stdout")
	return cmd
}
