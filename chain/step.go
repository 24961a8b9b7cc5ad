package chain

import (
	"fmt"
	"slices"
)

// TaskKind classifies the nature of a step for tier routing.
type TaskKind string

const (
	TaskExtraction       TaskKind = "extraction"
	TaskClassification   TaskKind = "classification"
	TaskSimple           TaskKind = "simple_tasks"
	TaskAnalysis         TaskKind = "analysis"
	TaskWriting          TaskKind = "writing"
	TaskComplexReasoning TaskKind = "complex_reasoning"
)

// Importance governs how long a step output survives context pruning.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// Rank orders importance levels; unknown levels rank as low.
func (i Importance) Rank() int {
	switch i {
	case ImportanceHigh:
		return 3
	case ImportanceMedium:
		return 2
	default:
		return 1
	}
}

const (
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.7
)

// StepSpec defines one unit of a chain. It is built once per pipeline
// definition and never mutated by the runner.
type StepSpec struct {
	Name        string
	Prompt      string
	Inputs      []string
	OutputKey   string
	Task        TaskKind
	MaxTokens   int
	Temperature float64
	Importance  Importance
	Tags        []string
	Validator   Validator
}

func (s StepSpec) maxTokens() int {
	if s.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return s.MaxTokens
}

func (s StepSpec) importance() Importance {
	if s.Importance == "" {
		return ImportanceMedium
	}
	return s.Importance
}

func (s StepSpec) task() TaskKind {
	if s.Task == "" {
		return TaskAnalysis
	}
	return s.Task
}

// ValidateSteps checks catalog-level invariants: unique non-empty names, an
// output key per step, and prompts that only reference declared inputs.
func ValidateSteps(steps []StepSpec) error {
	seen := make(map[string]struct{}, len(steps))
	for i, step := range steps {
		if step.Name == "" {
			return fmt.Errorf("%w: index=%d field=name reason=empty", ErrStepInvalid, i)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("%w: step=%q field=name reason=duplicate", ErrStepInvalid, step.Name)
		}
		seen[step.Name] = struct{}{}
		if step.OutputKey == "" {
			return fmt.Errorf("%w: step=%q field=output_key reason=empty", ErrStepInvalid, step.Name)
		}
		switch step.Importance {
		case "", ImportanceHigh, ImportanceMedium, ImportanceLow:
		default:
			return fmt.Errorf("%w: step=%q field=importance value=%q", ErrStepInvalid, step.Name, step.Importance)
		}
		placeholders, err := Placeholders(step.Prompt)
		if err != nil {
			return fmt.Errorf("step=%q: %w", step.Name, err)
		}
		for _, key := range placeholders {
			if !slices.Contains(step.Inputs, key) {
				return fmt.Errorf("%w: step=%q key=%q", ErrTemplateUnknownKey, step.Name, key)
			}
		}
	}
	return nil
}
