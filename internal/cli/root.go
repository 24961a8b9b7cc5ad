// Package cli is the promptchain command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"

	"github.com/Gurpartap/promptchain/adapters/anthropic"
	"github.com/Gurpartap/promptchain/chain"
	"github.com/Gurpartap/promptchain/internal/config"
	"github.com/Gurpartap/promptchain/pipeline"
	"github.com/Gurpartap/promptchain/policy/costroute"
	"github.com/Gurpartap/promptchain/policy/retry"
	"github.com/Gurpartap/promptchain/telemetry"
)

// GeneratorFactory builds the backing generator from the loaded config.
type GeneratorFactory func(cfg config.Config) (chain.Generator, error)

// App holds the process-level collaborators of the command tree.
type App struct {
	Stdout io.Writer
	Stderr io.Writer
	// NewGenerator defaults to the Anthropic Messages API adapter.
	NewGenerator GeneratorFactory
	// Meter defaults to the global OpenTelemetry meter provider.
	Meter metric.Meter
}

type globalFlags struct {
	configPath string
	logLevel   string
	output     string
}

// Execute runs the command tree with the default App.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	return NewRootCommand(App{Stdout: stdout, Stderr: stderr}).ExecuteContext(ctxOrBackground(ctx), args)
}

// ExecuteContext runs root with args.
func (c *Command) ExecuteContext(ctx context.Context, args []string) error {
	c.root.SetArgs(args)
	return c.root.ExecuteContext(ctx)
}

// Command wraps the cobra root so callers never touch global state.
type Command struct {
	root *cobra.Command
}

func NewRootCommand(app App) *Command {
	if app.Stdout == nil {
		app.Stdout = io.Discard
	}
	if app.Stderr == nil {
		app.Stderr = io.Discard
	}
	if app.NewGenerator == nil {
		app.NewGenerator = anthropicGenerator
	}

	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "promptchain",
		Short:         "Run multi-step LLM content and research pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(app.Stdout)
	root.SetErr(app.Stderr)
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a promptchain yaml config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", "", "write the document to this file instead of stdout")

	root.AddCommand(
		newResearchCommand(&app, flags),
		newBlogCommand(&app, flags),
		newPRDCommand(&app, flags),
	)
	return &Command{root: root}
}

// session is the wiring for one workflow invocation.
type session struct {
	cfg       config.Config
	logger    *slog.Logger
	collector *telemetry.Collector
	deps      pipeline.Dependencies
	output    string
	stdout    io.Writer
}

func (a *App) newSession(flags *globalFlags, workflow string) (*session, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(flags.logLevel) != "" {
		if _, err := config.ParseLogLevel(flags.logLevel); err != nil {
			return nil, err
		}
		cfg.LogLevel = flags.logLevel
	}
	logger := newLogger(a.Stderr, cfg.Level())

	generator, err := a.NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	policy := cfg.RetryPolicy()
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying generation",
			slog.String("workflow", workflow),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
	}

	router, err := costroute.New(costroute.Config{Premium: cfg.Tiers.Premium, Standard: cfg.Tiers.Standard})
	if err != nil {
		return nil, err
	}
	collector, err := telemetry.New(telemetry.Options{Workflow: workflow, Logger: logger, Meter: a.Meter})
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		deps: pipeline.Dependencies{
			Generator:   generator,
			Retry:       retry.Func(policy),
			Router:      router,
			Telemetry:   collector,
			Logger:      logger,
			CallTimeout: cfg.RequestTimeout,
		},
		output: flags.output,
		stdout: a.Stdout,
	}, nil
}

func anthropicGenerator(cfg config.Config) (chain.Generator, error) {
	return anthropic.New(anthropic.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout + 5*time.Second},
		Limiter:    anthropic.NewLimiter(cfg.RequestsPerSecond),
	})
}

// finish writes the document and logs the run summary.
func (s *session) finish(ctx context.Context, document string) error {
	if strings.TrimSpace(document) == "" {
		return errors.New("workflow produced an empty document")
	}
	if err := s.write(document); err != nil {
		return err
	}

	summary := s.collector.Summary()
	s.logger.InfoContext(ctx, "run summary",
		slog.String("run_id", summary.RunID),
		slog.Int("total_calls", summary.TotalCalls),
		slog.Int("total_tokens", summary.TotalTokens),
		slog.Float64("total_cost_usd", summary.TotalCost),
		slog.Float64("avg_latency_ms", summary.AvgLatencyMS),
		slog.Int("failures", summary.FailureCount),
		slog.Any("agents", summary.AgentBreakdown),
	)
	return nil
}

func (s *session) write(document string) error {
	if !strings.HasSuffix(document, "\n") {
		document += "\n"
	}
	if s.output == "" {
		_, err := io.WriteString(s.stdout, document)
		return err
	}
	if err := os.WriteFile(s.output, []byte(document), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	s.logger.Info("document written", slog.String("path", s.output))
	return nil
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
