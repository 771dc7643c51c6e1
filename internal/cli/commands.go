package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/prload/internal/logging"
	"github.com/wesleyorama2/prload/internal/mocktarget"
	"github.com/wesleyorama2/prload/internal/workflow"
)

func newValidateCmd() *cobra.Command {
	var (
		configFile string
		scenarios  []string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, "", scenarios)
			if err != nil {
				return withCode(ExitError, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration valid: %d scenario(s), %d threshold(s)\n",
				len(cfg.Scenarios), len(cfg.ThresholdDefinitions()))
			for _, name := range cfg.ScenarioNames() {
				sc := cfg.Scenarios[name]
				ec, err := sc.ExecutorConfig(name, cfg.Options)
				if err != nil {
					return withCode(ExitError, err)
				}
				fmt.Fprintf(out, "  %s: %s, exec %s, max %d VUs, %s after %s\n",
					name, ec.Type, sc.Workflow(name), ec.MaxVUs(), ec.TotalDuration(), sc.StartTime)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "configuration file (default: built-in)")
	cmd.Flags().StringSliceVarP(&scenarios, "scenario", "s", nil, "validate only these scenarios")
	return cmd
}

func newWorkflowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workflows",
		Short: "List the available workflows",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, name := range workflow.Names() {
				fmt.Fprintf(out, "%-10s %s\n", name, workflow.Describe(name))
			}
		},
	}
}

func newMockCmd() *cobra.Command {
	var (
		addr      string
		latency   time.Duration
		failEvery int
		seed      int64
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Serve an in-memory reviewer service",
		Long: `Serve an in-memory implementation of the reviewer service API, for local
runs and CI without a real deployment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logLevel, logging.FormatConsole)
			if err != nil {
				return withCode(ExitError, err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			handler := mocktarget.New(mocktarget.Options{
				Latency:   latency,
				FailEvery: failEvery,
				Seed:      seed,
				Logger:    logger,
			})
			return withCode(ExitError, serveMock(ctx, addr, handler, logger))
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", ":8080", "listen address")
	f.DurationVar(&latency, "latency", 0, "latency added to every request")
	f.IntVar(&failEvery, "fail-every", 0, "fail every Nth request with 500 (0 disables)")
	f.Int64Var(&seed, "seed", 0, "seed for reviewer selection (0 = time based)")
	f.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	return cmd
}

// serveMock serves handler on addr until ctx is done.
func serveMock(ctx context.Context, addr string, handler *mocktarget.Server, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mock reviewer service listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("mock reviewer service stopped", zap.Int64("requests", handler.Requests()))
	return nil
}
