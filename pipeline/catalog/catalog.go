// Package catalog decodes YAML step catalogs into chain step definitions.
package catalog

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Gurpartap/promptchain/chain"
)

var ErrEmptyCatalog = errors.New("catalog has no steps")

// Catalog is a named, budgeted sequence of steps ready for chain.Runner.Run.
type Catalog struct {
	Name   string
	Budget int
	Steps  []chain.StepSpec
}

// Step returns the step with the given name.
func (c Catalog) Step(name string) (chain.StepSpec, bool) {
	for _, step := range c.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return chain.StepSpec{}, false
}

type document struct {
	Name   string `yaml:"name"`
	Budget int    `yaml:"budget"`
	Steps  []step `yaml:"steps"`
}

type step struct {
	Name        string          `yaml:"name"`
	Prompt      string          `yaml:"prompt"`
	Inputs      []string        `yaml:"inputs"`
	Output      string          `yaml:"output"`
	Task        string          `yaml:"task"`
	MaxTokens   int             `yaml:"max_tokens"`
	Temperature *float64        `yaml:"temperature"`
	Importance  string          `yaml:"importance"`
	Tags        []string        `yaml:"tags"`
	Validators  []ValidatorSpec `yaml:"validators"`
}

// ValidatorSpec names a registered validator and carries its parameters
// inline, e.g. `{name: min_length, min: 800}`.
type ValidatorSpec struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

// Parse decodes a catalog and resolves validator names through validators.
// Unknown fields, unknown validators, and invalid steps are errors.
func Parse(data []byte, validators *Validators) (Catalog, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var doc document
	if err := decoder.Decode(&doc); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if len(doc.Steps) == 0 {
		return Catalog{}, fmt.Errorf("%w: name=%q", ErrEmptyCatalog, doc.Name)
	}
	if validators == nil {
		validators = DefaultValidators()
	}

	steps := make([]chain.StepSpec, 0, len(doc.Steps))
	for _, s := range doc.Steps {
		validator, err := validators.Build(s.Validators)
		if err != nil {
			return Catalog{}, fmt.Errorf("catalog %q step %q: %w", doc.Name, s.Name, err)
		}
		temperature := chain.DefaultTemperature
		if s.Temperature != nil {
			temperature = *s.Temperature
		}
		steps = append(steps, chain.StepSpec{
			Name:        s.Name,
			Prompt:      s.Prompt,
			Inputs:      s.Inputs,
			OutputKey:   s.Output,
			Task:        chain.TaskKind(s.Task),
			MaxTokens:   s.MaxTokens,
			Temperature: temperature,
			Importance:  chain.Importance(s.Importance),
			Tags:        s.Tags,
			Validator:   validator,
		})
	}
	if err := chain.ValidateSteps(steps); err != nil {
		return Catalog{}, fmt.Errorf("catalog %q: %w", doc.Name, err)
	}

	return Catalog{
		Name:   doc.Name,
		Budget: doc.Budget,
		Steps:  steps,
	}, nil
}

// MustParse is Parse for embedded catalogs that are fixed at build time.
func MustParse(data []byte, validators *Validators) Catalog {
	c, err := Parse(data, validators)
	if err != nil {
		panic(err)
	}
	return c
}
