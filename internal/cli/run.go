package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/prload/internal/logging"
	"github.com/wesleyorama2/prload/internal/performance/config"
	"github.com/wesleyorama2/prload/internal/performance/engine"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
	"github.com/wesleyorama2/prload/internal/performance/output"
	"github.com/wesleyorama2/prload/internal/performance/report"
)

type runOptions struct {
	configFile  string
	baseURL     string
	scenarios   []string
	out         string
	quiet       bool
	noColor     bool
	logLevel    string
	logFormat   string
	metricsAddr string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test",
		Long: `Run the configured scenarios against the reviewer service.

Without --config the built-in smoke, baseline and stress scenarios are used.

Examples:
  prload run
  prload run --config load.yaml --scenario baseline,stress
  prload run --base-url http://staging:8080 --out report.json

Exit codes: 0 all thresholds passed, 1 a threshold failed, 2 configuration
or engine error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadTest(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "configuration file (YAML or JSON)")
	f.StringVar(&opts.baseURL, "base-url", "", "override settings.baseUrl (also $"+config.EnvBaseURL+")")
	f.StringSliceVarP(&opts.scenarios, "scenario", "s", nil, "run only these scenarios")
	f.StringVarP(&opts.out, "out", "o", "", "write the report to this file: HTML for .html, JSON otherwise (- for stdout)")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "print only PASSED or FAILED")
	f.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", logging.FormatConsole, "log format: console or json")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	return cmd
}

// loadConfig reads the file, or the built-in default, and applies the
// base URL override and scenario selection.
func loadConfig(file, baseURL string, scenarios []string) (*config.TestConfig, error) {
	var (
		cfg *config.TestConfig
		err error
	)
	if file != "" {
		cfg, err = config.LoadConfig(file)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	config.OverrideBaseURL(cfg, baseURL)
	if err := cfg.Select(scenarios); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runLoadTest(cmd *cobra.Command, opts *runOptions) error {
	logger, err := logging.New(opts.logLevel, opts.logFormat)
	if err != nil {
		return withCode(ExitError, err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig(opts.configFile, opts.baseURL, opts.scenarios)
	if err != nil {
		return withCode(ExitError, fmt.Errorf("loading config: %w", err))
	}

	eng, err := engine.NewEngine(cfg, engine.Options{Logger: logger})
	if err != nil {
		return withCode(ExitError, fmt.Errorf("creating engine: %w", err))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.metricsAddr != "" {
		shutdown, err := serveMetrics(opts.metricsAddr, eng.Metrics(), logger)
		if err != nil {
			return withCode(ExitError, err)
		}
		defer shutdown()
	}

	console := output.NewConsole(output.ConsoleConfig{
		Writer:  cmd.OutOrStdout(),
		Quiet:   opts.quiet,
		NoColor: opts.noColor,
	})
	console.PrintHeader(eng.RunID(), cfg)

	liveCtx, stopLive := context.WithCancel(ctx)
	liveDone := make(chan struct{})
	go func() {
		defer close(liveDone)
		console.Live(liveCtx, eng)
	}()

	rep, runErr := eng.Run(ctx)
	stopLive()
	<-liveDone

	if rep == nil {
		return withCode(ExitError, fmt.Errorf("running test: %w", runErr))
	}

	console.PrintSummary(rep)

	if err := writeReport(opts.out, rep); err != nil {
		return withCode(ExitError, err)
	}

	if runErr != nil {
		return withCode(ExitError, fmt.Errorf("running test: %w", runErr))
	}
	if !rep.Passed {
		return withCode(ExitThresholdFailed, thresholdError(rep))
	}
	return nil
}

// writeReport writes an HTML report for .html paths and JSON otherwise.
func writeReport(path string, r *engine.Report) error {
	switch {
	case path == "":
		return nil
	case report.IsHTMLPath(path):
		return report.GenerateHTML(r, path)
	default:
		return output.WriteJSONFile(path, r)
	}
}

func thresholdError(rep *engine.Report) error {
	if rep.Aborted {
		return errors.New(rep.AbortReason)
	}
	failed := rep.FailedThresholds()
	parts := make([]string, 0, len(failed))
	for _, t := range failed {
		parts = append(parts, t.Metric+" "+t.Expression)
	}
	return fmt.Errorf("thresholds failed: %s", strings.Join(parts, ", "))
}

// serveMetrics exposes the run's metrics on addr/metrics until the
// returned function is called.
func serveMetrics(addr string, m *metrics.Engine, logger *zap.Logger) (func(), error) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(m))

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return nil, fmt.Errorf("metrics server: %w", err)
	case <-time.After(50 * time.Millisecond):
	}
	logger.Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
