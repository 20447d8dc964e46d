package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/me/jobq/internal/config"
	"github.com/me/jobq/internal/logging"
	"github.com/me/jobq/internal/store"
)

var (
	flagConfig    string
	flagDataDir   string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.Config
	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the jobq CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jobq",
		Short: "jobq is a single-node shell-script job scheduler",
		Long: "jobq admits submitted shell scripts into a durable queue, runs them\n" +
			"one at a time, captures their output, and records terminal status.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(flagConfig)
			if err != nil {
				return err
			}
			if flagDataDir != "" {
				cfg.DataDir = flagDataDir
			}
			if flagLogLevel != "" {
				cfg.LogLevel = flagLogLevel
			}
			if flagLogFormat != "" {
				cfg.LogFormat = flagLogFormat
			}
			if flagDebug {
				cfg.LogLevel = "debug"
			}
			logger = logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config file")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory root (or JOBQ_DATA_DIR env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Shorthand for --log-level=debug")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newSubmitCmd(),
		newStatusCmd(),
		newSweepCmd(),
	)

	return root
}

// openStore creates the data directory tree, opens the job store, and runs
// migrations. The caller owns Close.
func openStore(ctx context.Context) (*store.SQLiteStore, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(cfg.DBPath(), logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
