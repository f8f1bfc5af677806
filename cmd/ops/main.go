package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"docuflow/internal/config"
	"docuflow/internal/console"
	"docuflow/internal/execx"
	"docuflow/internal/logging"
	"docuflow/internal/metrics"
	"docuflow/internal/otel"
	"docuflow/internal/preflight"
)

// app carries what every subcommand needs after the root pre-run.
type app struct {
	// flags
	configPath string
	envFiles   []string
	verbose    bool
	timeout    time.Duration

	cfg      *config.AppConfig
	logger   *zap.Logger
	recorder *metrics.Recorder
	tracing  func(context.Context) error
	runID    string

	stdin  io.Reader
	runner execx.Runner
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdin: os.Stdin}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		reportError(console.New(os.Stderr), err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "docuflow-ops",
		Short: "Operator tooling for the Docuflow platform project",
		Long: `docuflow-ops deploys Edge Functions, applies SQL migrations, configures the
git remote and smoke-tests deployed functions.

Configuration comes from docuflow.yaml (optional), .env.local / .env and the
process environment, in increasing order of precedence.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "project file (default docuflow.yaml if present)")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", []string{".env.local", ".env"}, "dotenv files that fill unset or empty variables")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 0, "overall timeout (0 = none)")

	root.AddCommand(
		newDeployCmd(a),
		newMigrateCmd(a),
		newRemoteCmd(a),
		newSmokeCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if _, err := config.LoadEnvFiles(a.envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Options{
		Level:    cfg.LogLevel,
		Verbose:  a.verbose,
		Location: logging.Location(cfg.TimeZone),
		Output:   cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.runID = uuid.NewString()
	a.logger = logger.With(zap.String("run_id", a.runID))

	a.tracing, err = otel.Init(cmd.Context(), a.logger)
	if err != nil {
		a.logger.Warn("tracing_init_failed", zap.Error(err))
		a.tracing = func(context.Context) error { return nil }
	}

	a.recorder, err = metrics.NewRecorder()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if a.runner == nil {
		a.runner = execx.NewExecRunner()
	}
	return nil
}

// instrument wraps a command body with a timeout, a trace span and run metrics.
func (a *app) instrument(name string, fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		if a.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.timeout)
			defer cancel()
		}

		ctx, span := otel.Tracer().Start(ctx, "docuflow-ops "+name)
		span.SetAttributes(attribute.String("docuflow.run_id", a.runID))
		start := time.Now()
		a.logger.Debug("command_start", zap.String("command", name))

		defer func() {
			a.recorder.Observe(name, time.Since(start), err)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				a.logger.Debug("command_failed", zap.String("command", name), zap.Error(err), logging.Since(start))
			} else {
				a.logger.Debug("command_done", zap.String("command", name), logging.Since(start))
			}
			span.End()

			// Flush with a fresh context; the command's may already be cancelled.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if perr := a.recorder.Push(flushCtx, a.cfg.PushgatewayURL, hostname()); perr != nil {
				a.logger.Warn("metrics_push_failed", zap.Error(perr))
			}
			if terr := a.tracing(flushCtx); terr != nil {
				a.logger.Warn("tracing_shutdown_failed", zap.Error(terr))
			}
			_ = a.logger.Sync()
		}()

		return fn(ctx, cmd, args)
	}
}

func (a *app) printer(cmd *cobra.Command) *console.Printer {
	return console.New(cmd.OutOrStdout())
}

func reportError(p *console.Printer, err error) {
	p.Fail("Error: %v", err)
	var pe *preflight.PreconditionError
	if errors.As(err, &pe) {
		if pe.Hint != "" {
			p.Line("%s", pe.Hint)
		}
		if pe.Kind == preflight.KindEnv {
			p.Line("Set %s in the environment or in .env.local and re-run.", pe.Name)
		}
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}
