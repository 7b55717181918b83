package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/signalnine/triage/internal/config"
	"github.com/signalnine/triage/internal/secrets"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigFile = "triage.yaml"

var (
	cfgFile     string
	flagVerbose bool

	logger = zap.NewNop()
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "triage",
		Short:             "Classify failed agent trajectories into a failure taxonomy",
		SilenceUsage:      true,
		PersistentPreRunE: setupLogger,
		PersistentPostRun: func(*cobra.Command, []string) { _ = logger.Sync() },
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigFile, "config file path")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	root.AddCommand(newClassifyCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newCrashesCmd())
	root.AddCommand(newValidateCmd())
	return root
}

func setupLogger(*cobra.Command, []string) error {
	zcfg := zap.NewProductionConfig()
	if flagVerbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	logger = l
	return nil
}

// loadConfig reads --config when it was given or the default file exists,
// and falls back to built-in defaults otherwise. The secrets env file is
// loaded into the environment before any provider reads its key.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	_, statErr := os.Stat(cfgFile)
	if cmd.Flags().Changed("config") || !errors.Is(statErr, fs.ErrNotExist) {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg.Secrets.EnvFile != "" {
		keys, err := secrets.Load(cfg.Secrets.EnvFile)
		if err != nil {
			return nil, err
		}
		logger.Debug("loaded secrets", zap.String("file", cfg.Secrets.EnvFile), zap.Strings("keys", keys))
	}
	return cfg, nil
}
