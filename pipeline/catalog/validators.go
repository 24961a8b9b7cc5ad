package catalog

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Gurpartap/promptchain/chain"
)

var (
	ErrValidatorUnregistered = errors.New("validator is not registered")
	ErrNilFactory            = errors.New("validator factory is nil")
	ErrValidatorNameEmpty    = errors.New("validator name is empty")
	ErrValidatorParam        = errors.New("validator parameter is invalid")
)

// Factory builds a validator from its catalog parameters.
type Factory func(params Params) (chain.Validator, error)

// Validators stores validator factories by name.
type Validators struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewValidators(initial map[string]Factory) *Validators {
	factories := make(map[string]Factory, len(initial))
	maps.Copy(factories, initial)
	return &Validators{factories: factories}
}

// DefaultValidators returns a registry holding the built-in heuristics.
func DefaultValidators() *Validators {
	return NewValidators(map[string]Factory{
		"min_length":        minLength,
		"bullets":           bullets,
		"markdown_sections": markdownSections,
		"no_headings":       noHeadings,
		"gherkin":           gherkin,
		"keywords":          keywords,
	})
}

func (v *Validators) Register(name string, factory Factory) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.factories[name] = factory
}

func (v *Validators) Lookup(name string) (Factory, error) {
	if name == "" {
		return nil, ErrValidatorNameEmpty
	}

	v.mu.RLock()
	factory, ok := v.factories[name]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrValidatorUnregistered, name)
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: %q", ErrNilFactory, name)
	}
	return factory, nil
}

// Build resolves specs into one validator that passes only when all pass.
// It returns nil for an empty list.
func (v *Validators) Build(specs []ValidatorSpec) (chain.Validator, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	all := make(allOf, 0, len(specs))
	for _, spec := range specs {
		factory, err := v.Lookup(spec.Name)
		if err != nil {
			return nil, err
		}
		validator, err := factory(Params(spec.Params))
		if err != nil {
			return nil, fmt.Errorf("validator %q: %w", spec.Name, err)
		}
		all = append(all, validator)
	}
	if len(all) == 1 {
		return all[0], nil
	}
	return all, nil
}

type allOf []chain.Validator

func (a allOf) Validate(text string) bool {
	for _, validator := range a {
		if !validator.Validate(text) {
			return false
		}
	}
	return true
}

// Params are the inline parameters of one validator spec.
type Params map[string]any

// Int returns the integer at key, or def when absent.
func (p Params) Int(key string, def int) (int, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	value, ok := raw.(int)
	if !ok || value < 0 {
		return 0, fmt.Errorf("%w: %s=%v must be a non-negative integer", ErrValidatorParam, key, raw)
	}
	return value, nil
}

func (p Params) String(key, def string) (string, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s=%v must be a string", ErrValidatorParam, key, raw)
	}
	return value, nil
}

func (p Params) Strings(key string, def []string) ([]string, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list", ErrValidatorParam, key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		value, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s item %v must be a string", ErrValidatorParam, key, item)
		}
		out = append(out, value)
	}
	return out, nil
}

// minLength: {min: N} requires at least N characters.
func minLength(p Params) (chain.Validator, error) {
	n, err := p.Int("min", 0)
	if err != nil {
		return nil, err
	}
	return chain.ValidatorFunc(func(text string) bool {
		return utf8.RuneCountInString(text) >= n
	}), nil
}

// bullets: {min: N, markers: [...]} requires N list markers in total.
func bullets(p Params) (chain.Validator, error) {
	n, err := p.Int("min", 1)
	if err != nil {
		return nil, err
	}
	markers, err := p.Strings("markers", []string{"- "})
	if err != nil {
		return nil, err
	}
	return chain.ValidatorFunc(func(text string) bool {
		count := 0
		for _, marker := range markers {
			count += strings.Count(text, marker)
		}
		return count >= n
	}), nil
}

// markdownSections: {min: N, heading: "## ", title: "# "} requires N
// headings and, when set, the title text.
func markdownSections(p Params) (chain.Validator, error) {
	n, err := p.Int("min", 1)
	if err != nil {
		return nil, err
	}
	heading, err := p.String("heading", "## ")
	if err != nil {
		return nil, err
	}
	if heading == "" {
		return nil, fmt.Errorf("%w: heading must not be empty", ErrValidatorParam)
	}
	title, err := p.String("title", "")
	if err != nil {
		return nil, err
	}
	return chain.ValidatorFunc(func(text string) bool {
		if title != "" && !strings.Contains(text, title) {
			return false
		}
		return strings.Count(text, heading) >= n
	}), nil
}

func noHeadings(Params) (chain.Validator, error) {
	return chain.ValidatorFunc(func(text string) bool {
		return !strings.Contains(text, "#")
	}), nil
}

// gherkin requires Given/When/Then steps and an "As a" user story.
func gherkin(Params) (chain.Validator, error) {
	return chain.ValidatorFunc(func(text string) bool {
		lower := strings.ToLower(text)
		for _, keyword := range []string{"given", "when", "then", "as a"} {
			if !strings.Contains(lower, keyword) {
				return false
			}
		}
		return true
	}), nil
}

// keywords: {all: [...], any: [...]} matches case-insensitively.
func keywords(p Params) (chain.Validator, error) {
	all, err := p.Strings("all", nil)
	if err != nil {
		return nil, err
	}
	anyOf, err := p.Strings("any", nil)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 && len(anyOf) == 0 {
		return nil, fmt.Errorf("%w: keywords needs all or any", ErrValidatorParam)
	}
	return chain.ValidatorFunc(func(text string) bool {
		lower := strings.ToLower(text)
		for _, keyword := range all {
			if !strings.Contains(lower, strings.ToLower(keyword)) {
				return false
			}
		}
		if len(anyOf) == 0 {
			return true
		}
		for _, keyword := range anyOf {
			if strings.Contains(lower, strings.ToLower(keyword)) {
				return true
			}
		}
		return false
	}), nil
}
