package costroute

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Gurpartap/promptchain/chain"
)

var (
	// ErrMissingTier is returned by New when a tier has no name.
	ErrMissingTier = errors.New("model tier is missing")
	// ErrNegativePrice is returned by New when a tier has a negative unit price.
	ErrNegativePrice = errors.New("model tier price is negative")
)

// DefaultSignals are prompt words that route unclassified tasks to the premium tier.
var DefaultSignals = []string{"analyze", "synthesize", "evaluate", "compare", "design"}

var (
	heavyTasks = map[chain.TaskKind]struct{}{
		chain.TaskAnalysis:         {},
		chain.TaskWriting:          {},
		chain.TaskComplexReasoning: {},
	}
	lightTasks = map[chain.TaskKind]struct{}{
		chain.TaskExtraction:     {},
		chain.TaskClassification: {},
		chain.TaskSimple:         {},
	}
)

// Config names the two tiers and the heuristic signal words.
type Config struct {
	Premium  chain.ModelTier
	Standard chain.ModelTier
	// Signals overrides DefaultSignals when non-empty. Matching is case-insensitive.
	Signals []string
}

// Router picks a tier per task and prices token usage. It is immutable after New.
type Router struct {
	premium  chain.ModelTier
	standard chain.ModelTier
	signals  []string
}

var _ chain.Router = (*Router)(nil)

func New(cfg Config) (*Router, error) {
	if err := validateTier("premium", cfg.Premium); err != nil {
		return nil, fmt.Errorf("new router: %w", err)
	}
	if err := validateTier("standard", cfg.Standard); err != nil {
		return nil, fmt.Errorf("new router: %w", err)
	}

	source := cfg.Signals
	if len(source) == 0 {
		source = DefaultSignals
	}
	signals := make([]string, 0, len(source))
	for _, signal := range source {
		if signal = strings.ToLower(strings.TrimSpace(signal)); signal != "" {
			signals = append(signals, signal)
		}
	}

	return &Router{
		premium:  cfg.Premium,
		standard: cfg.Standard,
		signals:  signals,
	}, nil
}

func validateTier(label string, tier chain.ModelTier) error {
	if tier.Name == "" {
		return fmt.Errorf("%w: tier=%s", ErrMissingTier, label)
	}
	if tier.InputPricePer1K < 0 || tier.OutputPricePer1K < 0 {
		return fmt.Errorf("%w: tier=%s", ErrNegativePrice, label)
	}
	return nil
}

// SelectTier routes heavy task kinds to premium and light ones to standard.
// Other kinds fall back to scanning the prompt for analytical signal words.
func (r *Router) SelectTier(prompt string, task chain.TaskKind) chain.ModelTier {
	if _, ok := heavyTasks[task]; ok {
		return r.premium
	}
	if _, ok := lightTasks[task]; ok {
		return r.standard
	}
	lower := strings.ToLower(prompt)
	for _, signal := range r.signals {
		if strings.Contains(lower, signal) {
			return r.premium
		}
	}
	return r.standard
}

// EstimateCost prices usage linearly per thousand tokens. Negative counts are
// treated as zero.
func (r *Router) EstimateCost(tier chain.ModelTier, inputTokens, outputTokens int) float64 {
	in := float64(max(inputTokens, 0))
	out := float64(max(outputTokens, 0))
	return in/1000*tier.InputPricePer1K + out/1000*tier.OutputPricePer1K
}

func (r *Router) Premium() chain.ModelTier {
	return r.premium
}

func (r *Router) Standard() chain.ModelTier {
	return r.standard
}
