package chain

import (
	"context"
	"time"
)

// ModelTier is a named model configuration with per-1k-token pricing.
type ModelTier struct {
	Name             string  `json:"name" mapstructure:"name"`
	Model            string  `json:"model" mapstructure:"model"`
	InputPricePer1K  float64 `json:"input_price_per_1k" mapstructure:"input_price_per_1k"`
	OutputPricePer1K float64 `json:"output_price_per_1k" mapstructure:"output_price_per_1k"`
}

// Generation is the normalized result of one generator call.
type Generation struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// StepEventKind labels workflow-level telemetry events.
type StepEventKind string

const (
	StepEventQualityWarning StepEventKind = "quality_warning"
	StepEventWorkflowStart  StepEventKind = "workflow_start"
	StepEventWorkflowEnd    StepEventKind = "workflow_end"
	StepEventCheckpoint     StepEventKind = "checkpoint"
)

// CallRecord describes one generation attempt.
type CallRecord struct {
	AgentID      string
	Task         string
	Tier         string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
	Success      bool
	Cost         float64
	Error        string
}

// Summary aggregates telemetry over a run.
type Summary struct {
	Workflow       string         `json:"workflow"`
	RunID          string         `json:"run_id,omitempty"`
	TotalCalls     int            `json:"total_calls"`
	TotalTokens    int            `json:"total_tokens"`
	TotalCost      float64        `json:"total_cost_usd"`
	AvgLatencyMS   float64        `json:"avg_latency_ms"`
	FailureCount   int            `json:"failure_count"`
	AgentBreakdown map[string]int `json:"agent_breakdown"`
	CostPerCall    float64        `json:"cost_per_call"`
}

type noopTelemetry struct{}

func (noopTelemetry) LogCall(context.Context, CallRecord) {}

func (noopTelemetry) LogWorkflowStep(context.Context, string, StepEventKind, map[string]any) {}

func (noopTelemetry) Summary() Summary {
	return Summary{AgentBreakdown: map[string]int{}}
}
