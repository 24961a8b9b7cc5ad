package chain

import (
	"context"
	"time"
)

// GenerateRequest is the minimal input contract for one generation call.
type GenerateRequest struct {
	Tier        ModelTier
	Prompt      string
	MaxTokens   int
	Temperature float64
	// Timeout bounds a single call when positive. Enforcement belongs to the adapter.
	Timeout time.Duration
}

// Generator produces text for a prompt on a given model tier.
// Implementations must be safe for concurrent use and should return errors
// wrapping ErrRateLimited, ErrTimeout, ErrOverloaded, or ErrUpstreamAPI so
// callers can classify failures.
type Generator interface {
	Generate(ctx context.Context, request GenerateRequest) (Generation, error)
}

// Router maps a prompt and task classification to a model tier and prices usage.
type Router interface {
	SelectTier(prompt string, task TaskKind) ModelTier
	EstimateCost(tier ModelTier, inputTokens, outputTokens int) float64
}

// StateStore is the shared key/value state of one run.
// All methods must be linearizable with respect to each other.
type StateStore interface {
	Read(keys ...string) map[string]string
	Update(originator string, delta map[string]string, kind UpdateKind) int64
	Checkpoint(name string) int64
	Restore(version int64) bool
	History(filter HistoryFilter) []StateUpdate
}

// ContextWindow accumulates step outputs under a token budget.
type ContextWindow interface {
	Add(step, text string, importance Importance, tags []string)
	RelevantContext(filter ContextFilter) string
}

// Telemetry receives one record per generation attempt and workflow-level events.
type Telemetry interface {
	LogCall(ctx context.Context, record CallRecord)
	LogWorkflowStep(ctx context.Context, name string, kind StepEventKind, metadata map[string]any)
	Summary() Summary
}

// Validator judges whether generated text is plausible for a step.
type Validator interface {
	Validate(text string) bool
}

// ValidatorFunc adapts a plain function to Validator.
type ValidatorFunc func(text string) bool

func (f ValidatorFunc) Validate(text string) bool {
	return f(text)
}
