package chain

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Dependencies wires collaborators into a Runner. Store and Window must be
// fresh for each run; Generator, Router, and Telemetry may be shared.
type Dependencies struct {
	Generator Generator
	Router    Router
	Store     StateStore
	Window    ContextWindow
	Telemetry Telemetry
	// CallTimeout is forwarded to the generator on every call when positive.
	CallTimeout time.Duration
	// Retry re-runs failed generation attempts when set. Every attempt is
	// logged to Telemetry.
	Retry RetryFunc
	// Tracer defaults to the global OpenTelemetry tracer provider.
	Tracer trace.Tracer
}

// RetryFunc runs attempt until the policy it implements gives up.
type RetryFunc func(ctx context.Context, attempt func(context.Context) error) error

// Runner executes chains of steps sequentially against one run's state.
type Runner struct {
	generator   Generator
	router      Router
	store       StateStore
	window      ContextWindow
	telemetry   Telemetry
	tracer      trace.Tracer
	retry       RetryFunc
	callTimeout time.Duration
}

// NewRunner validates deps and returns a Runner bound to one run's store and window.
func NewRunner(deps Dependencies) (*Runner, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("new runner: %w", ErrMissingGenerator)
	}
	if deps.Router == nil {
		return nil, fmt.Errorf("new runner: %w", ErrMissingRouter)
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("new runner: %w", ErrMissingStateStore)
	}
	if deps.Window == nil {
		return nil, fmt.Errorf("new runner: %w", ErrMissingContextWindow)
	}
	if deps.Telemetry == nil {
		deps.Telemetry = noopTelemetry{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	return &Runner{
		generator:   deps.Generator,
		router:      deps.Router,
		store:       deps.Store,
		window:      deps.Window,
		telemetry:   deps.Telemetry,
		tracer:      deps.Tracer,
		retry:       deps.Retry,
		callTimeout: deps.CallTimeout,
	}, nil
}

// Invocation is one routed generation call outside of step bookkeeping.
type Invocation struct {
	AgentID     string
	Prompt      string
	Task        TaskKind
	MaxTokens   int
	Temperature float64
}

// InvokeResult carries the generation together with routing and pricing.
type InvokeResult struct {
	Generation Generation
	Tier       ModelTier
	Cost       float64
}

// Seed writes the run's initial inputs to the state store.
func (r *Runner) Seed(inputs map[string]string) int64 {
	return r.store.Update("seed", inputs, UpdateKindSeed)
}

// Store returns the run's shared state store.
func (r *Runner) Store() StateStore {
	return r.store
}

// Telemetry returns the collector every call is logged to.
func (r *Runner) Telemetry() Telemetry {
	return r.telemetry
}

// RelevantContext renders the budgeted context window for a follow-up prompt.
func (r *Runner) RelevantContext(filter ContextFilter) string {
	return r.window.RelevantContext(filter)
}

// Invoke routes the prompt to a tier, calls the generator, prices the usage,
// and logs every attempt whether or not it succeeded. It is safe for concurrent use.
func (r *Runner) Invoke(ctx context.Context, in Invocation) (InvokeResult, error) {
	if ctx == nil {
		return InvokeResult{}, ErrContextNil
	}
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	task := in.Task
	if task == "" {
		task = TaskAnalysis
	}

	tier := r.router.SelectTier(in.Prompt, task)
	ctx, span := r.tracer.Start(ctx, "promptchain.invoke",
		trace.WithAttributes(
			attribute.String("promptchain.agent_id", in.AgentID),
			attribute.String("promptchain.task", string(task)),
			attribute.String("promptchain.tier", tier.Name),
			attribute.String("promptchain.model", tier.Model),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	request := GenerateRequest{
		Tier:        tier,
		Prompt:      in.Prompt,
		MaxTokens:   maxTokens,
		Temperature: in.Temperature,
		Timeout:     r.callTimeout,
	}
	var (
		generation Generation
		cost       float64
		attempts   int
	)
	attempt := func(ctx context.Context) error {
		attempts++
		var err error
		generation, err = r.generator.Generate(ctx, request)
		cost = r.router.EstimateCost(tier, generation.InputTokens, generation.OutputTokens)

		record := CallRecord{
			AgentID:      in.AgentID,
			Task:         in.Prompt,
			Tier:         tier.Name,
			InputTokens:  generation.InputTokens,
			OutputTokens: generation.OutputTokens,
			Latency:      generation.Latency,
			Success:      err == nil,
			Cost:         cost,
		}
		if err != nil {
			record.Error = err.Error()
		}
		r.telemetry.LogCall(ctx, record)
		return err
	}

	var err error
	if r.retry != nil {
		err = r.retry(ctx, attempt)
	} else {
		err = attempt(ctx)
	}
	recordOutcome(span, err,
		attribute.Int("promptchain.attempts", attempts),
		attribute.Int("promptchain.input_tokens", generation.InputTokens),
		attribute.Int("promptchain.output_tokens", generation.OutputTokens),
		attribute.Float64("promptchain.cost_usd", cost),
	)

	if err != nil {
		return InvokeResult{Tier: tier}, err
	}
	return InvokeResult{
		Generation: generation,
		Tier:       tier,
		Cost:       cost,
	}, nil
}

// Run executes steps strictly in order and returns the final state map.
// A generator or template error aborts the remaining steps; state written by
// earlier steps stays in the store.
func (r *Runner) Run(ctx context.Context, steps []StepSpec) (map[string]string, error) {
	if ctx == nil {
		return nil, ErrContextNil
	}
	for i := range steps {
		if err := r.runStep(ctx, steps[i]); err != nil {
			return nil, fmt.Errorf("step %d/%d %q: %w", i+1, len(steps), steps[i].Name, err)
		}
	}
	return r.store.Read(), nil
}

func (r *Runner) runStep(ctx context.Context, step StepSpec) (err error) {
	ctx, span := r.tracer.Start(ctx, "promptchain.step",
		trace.WithAttributes(
			attribute.String("promptchain.step", step.Name),
			attribute.String("promptchain.output_key", step.OutputKey),
		),
	)
	defer func() {
		recordOutcome(span, err)
		span.End()
	}()

	resolved := r.store.Read(step.Inputs...)
	values := make(map[string]string, len(step.Inputs))
	for _, key := range step.Inputs {
		values[key] = resolved[key]
	}
	prompt, err := Render(step.Prompt, values)
	if err != nil {
		return err
	}

	result, err := r.Invoke(ctx, Invocation{
		AgentID:     "chain_step:" + step.Name,
		Prompt:      prompt,
		Task:        step.task(),
		MaxTokens:   step.maxTokens(),
		Temperature: step.Temperature,
	})
	if err != nil {
		return err
	}
	text := result.Generation.Text

	if step.Validator != nil && !step.Validator.Validate(text) {
		span.AddEvent(string(StepEventQualityWarning))
		r.telemetry.LogWorkflowStep(ctx, step.Name, StepEventQualityWarning, map[string]any{
			"message":    "quality_validator_failed",
			"output_key": step.OutputKey,
		})
	}

	r.store.Update("chain_step:"+step.Name, map[string]string{step.OutputKey: text}, UpdateKindStepOutput)
	r.window.Add(step.Name, text, step.importance(), step.Tags)
	return nil
}
