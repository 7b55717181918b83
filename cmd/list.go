package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/signalnine/triage/internal/result"
	"github.com/signalnine/triage/internal/trajectory"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List trajectory configurations and their stored results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			root, err := trajectory.ResolveRoot(cfg.TrajectoriesDir)
			if err != nil {
				return err
			}
			files, err := trajectory.Discover(root)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no trajectory files under %s", root)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CONFIGURATION\tFILE\tRESULTS")
			for _, f := range files {
				rel, err := filepath.Rel(root, f.Path)
				if err != nil {
					rel = f.Path
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Key.Name(), filepath.ToSlash(rel), resultStatus(cfg.ResultsDir, f.Key))
			}
			return tw.Flush()
		},
	}
}

// resultStatus summarizes the stored document for key, if any.
func resultStatus(dir string, key trajectory.Key) string {
	path := result.DocumentPath(dir, key)
	if _, err := os.Stat(path); err != nil {
		return "-"
	}
	doc, err := result.ReadDocument(path)
	if err != nil {
		return "unreadable"
	}
	return fmt.Sprintf("%d/%d classified", len(doc.Classifications), len(doc.Sampling.TaskIDs))
}
