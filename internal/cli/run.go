package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/jobq/internal/executor"
	"github.com/me/jobq/internal/intake"
	"github.com/me/jobq/internal/lock"
	"github.com/me/jobq/internal/scheduler"
	"github.com/me/jobq/internal/server"
)

func newRunCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler",
		Long: "Acquire the instance lock, then run the intake loop and the queue\n" +
			"processor until interrupted. Only one scheduler may run per data directory.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				cfg.Listen = listen
			}
			if err := cfg.EnsureDirs(); err != nil {
				return err
			}

			// Fail-closed exclusivity: a marker left by a crash must be
			// removed by the operator, never broken automatically.
			handle, err := lock.Acquire(cfg.DataDir)
			if err != nil {
				return err
			}
			defer handle.Release()

			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			logger.Info("job store ready", "path", cfg.DBPath())

			// One cancellation signal covers both loops.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			in := intake.New(st, intake.Config{
				InboxDir:     cfg.InboxDir(),
				QueueDir:     cfg.QueueDir(),
				PollInterval: cfg.PollInterval,
				MaxQueueSize: cfg.MaxQueueSize,
			}, logger)

			loop := scheduler.NewLoop(st, executor.New(cfg.LogsDir(), logger), scheduler.Config{
				PollInterval: cfg.PollInterval,
				Retention:    cfg.Retention,
			}, logger)

			var httpServer *http.Server
			if cfg.Listen != "" {
				httpServer = &http.Server{
					Addr:    cfg.Listen,
					Handler: server.New(st, logger).Handler(),
				}
				go func() {
					logger.Info("status API listening", "addr", cfg.Listen)
					if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("status API failed", "error", err)
					}
				}()
			}

			errCh := make(chan error, 2)
			go func() { errCh <- in.Run(ctx) }()
			go func() { errCh <- loop.Run(ctx) }()

			// A defect in either loop cancels the other; a signal cancels
			// both. Either way, wait for both to drain before releasing
			// the lock.
			var firstErr error
			for i := 0; i < 2; i++ {
				if err := <-errCh; err != nil && firstErr == nil {
					firstErr = err
					stop()
				}
			}

			if httpServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("status API shutdown", "error", err)
				}
			}

			logger.Info("scheduler stopped")
			return firstErr
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Serve the read-only status API on this address (e.g. :8080)")
	return cmd
}
