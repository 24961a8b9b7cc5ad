// Package telemetry aggregates per-call usage and cost for a workflow run and
// exports it through slog and OpenTelemetry metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Gurpartap/promptchain/chain"
)

const (
	instrumentationName = "github.com/Gurpartap/promptchain/telemetry"
	// MaxTaskLength bounds the task text attached to each call log line.
	MaxTaskLength = 120
)

// Options configures a Collector. Zero values are usable.
type Options struct {
	Workflow string
	// RunID identifies the run in logs and summaries; a random UUID when empty.
	RunID  string
	Logger *slog.Logger
	// Meter defaults to the global OpenTelemetry meter provider.
	Meter metric.Meter
}

// Collector implements chain.Telemetry. It is safe for concurrent use.
type Collector struct {
	workflow    string
	runID       string
	logger      *slog.Logger
	instruments instruments

	mu      sync.Mutex
	records []chain.CallRecord
}

var _ chain.Telemetry = (*Collector)(nil)

type instruments struct {
	calls    metric.Int64Counter
	tokens   metric.Int64Counter
	failures metric.Int64Counter
	cost     metric.Float64Counter
	latency  metric.Float64Histogram
}

func New(opts Options) (*Collector, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	inst, err := newInstruments(meter)
	if err != nil {
		return nil, fmt.Errorf("new telemetry collector: %w", err)
	}
	return &Collector{
		workflow:    opts.Workflow,
		runID:       runID,
		logger:      logger.With(slog.String("workflow", opts.Workflow), slog.String("run_id", runID)),
		instruments: inst,
	}, nil
}

func newInstruments(meter metric.Meter) (instruments, error) {
	var inst instruments
	var errs []error
	var err error

	inst.calls, err = meter.Int64Counter("promptchain.calls",
		metric.WithDescription("Generation calls attempted"))
	errs = append(errs, err)
	inst.tokens, err = meter.Int64Counter("promptchain.tokens",
		metric.WithDescription("Input and output tokens consumed"))
	errs = append(errs, err)
	inst.failures, err = meter.Int64Counter("promptchain.failures",
		metric.WithDescription("Generation calls that returned an error"))
	errs = append(errs, err)
	inst.cost, err = meter.Float64Counter("promptchain.cost_usd",
		metric.WithDescription("Estimated spend"), metric.WithUnit("USD"))
	errs = append(errs, err)
	inst.latency, err = meter.Float64Histogram("promptchain.latency_ms",
		metric.WithDescription("Generation call latency"), metric.WithUnit("ms"))
	errs = append(errs, err)

	return inst, errors.Join(errs...)
}

// RunID returns the identifier attached to every log line and the summary.
func (c *Collector) RunID() string {
	return c.runID
}

func (c *Collector) LogCall(ctx context.Context, record chain.CallRecord) {
	c.mu.Lock()
	c.records = append(c.records, record)
	c.mu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("workflow", c.workflow),
		attribute.String("agent_id", record.AgentID),
		attribute.String("tier", record.Tier),
		attribute.Bool("success", record.Success),
	)
	c.instruments.calls.Add(ctx, 1, attrs)
	c.instruments.tokens.Add(ctx, int64(record.InputTokens+record.OutputTokens), attrs)
	c.instruments.cost.Add(ctx, record.Cost, attrs)
	c.instruments.latency.Record(ctx, latencyMS(record.Latency), attrs)
	if !record.Success {
		c.instruments.failures.Add(ctx, 1, attrs)
	}

	logAttrs := []slog.Attr{
		slog.String("agent_id", record.AgentID),
		slog.String("task", Truncate(record.Task, MaxTaskLength)),
		slog.String("tier", record.Tier),
		slog.Int("input_tokens", record.InputTokens),
		slog.Int("output_tokens", record.OutputTokens),
		slog.Float64("latency_ms", latencyMS(record.Latency)),
		slog.Float64("cost_usd", record.Cost),
		slog.Bool("success", record.Success),
	}
	level := slog.LevelInfo
	if !record.Success {
		level = slog.LevelWarn
		logAttrs = append(logAttrs, slog.String("error", record.Error))
	}
	c.logger.LogAttrs(ctx, level, "llm_call", logAttrs...)
}

func (c *Collector) LogWorkflowStep(ctx context.Context, name string, kind chain.StepEventKind, metadata map[string]any) {
	level := slog.LevelInfo
	if kind == chain.StepEventQualityWarning {
		level = slog.LevelWarn
	}
	c.logger.LogAttrs(ctx, level, "workflow_step",
		slog.String("step", name),
		slog.String("kind", string(kind)),
		slog.Any("metadata", metadata),
	)
}

func (c *Collector) Summary() chain.Summary {
	c.mu.Lock()
	records := make([]chain.CallRecord, len(c.records))
	copy(records, c.records)
	c.mu.Unlock()
	return Summarize(c.workflow, c.runID, records)
}

// Summarize aggregates call records into a run summary. Averages are zero
// when there are no records.
func Summarize(workflow, runID string, records []chain.CallRecord) chain.Summary {
	summary := chain.Summary{
		Workflow:       workflow,
		RunID:          runID,
		TotalCalls:     len(records),
		AgentBreakdown: make(map[string]int),
	}
	var latencyTotal float64
	for _, record := range records {
		summary.TotalTokens += record.InputTokens + record.OutputTokens
		summary.TotalCost += record.Cost
		latencyTotal += latencyMS(record.Latency)
		if !record.Success {
			summary.FailureCount++
		}
		summary.AgentBreakdown[record.AgentID]++
	}
	if n := len(records); n > 0 {
		summary.AvgLatencyMS = latencyTotal / float64(n)
		summary.CostPerCall = summary.TotalCost / float64(n)
	}
	return summary
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func latencyMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
