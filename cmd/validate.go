package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/signalnine/triage/internal/result"
	"github.com/signalnine/triage/internal/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var flagValidateJSON bool

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [output-dir]",
		Short: "Audit stored labels against the current taxonomy",
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
			docs, err := result.ReadDocuments(dir)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return fmt.Errorf("no result documents in %s", dir)
			}

			audit := validation.Check(docs, tax)
			for _, issue := range audit.Issues() {
				logger.Debug("label issue", zap.String("config", issue.Config), zap.Int("task_id", issue.TaskID),
					zap.String("kind", string(issue.Kind)), zap.String("detail", issue.Detail))
			}
			if flagValidateJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(audit); err != nil {
					return err
				}
			} else if err := audit.Write(cmd.OutOrStdout()); err != nil {
				return err
			}
			if n := len(audit.Issues()); n > 0 {
				return fmt.Errorf("%d label issue(s) in %s", n, dir)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagValidateJSON, "json", false, "print the audit as JSON")
	return cmd
}
