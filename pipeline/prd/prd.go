// Package prd generates a Product Requirements Document through a
// fourteen-step chain: thirteen sections and a final assembly.
package prd

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/Gurpartap/promptchain/pipeline"
	"github.com/Gurpartap/promptchain/pipeline/catalog"
)

const (
	Workflow           = "prd_generator"
	DefaultProductName = "Unnamed Product"
	documentKey        = "full_document"
)

//go:embed steps.yaml
var stepsYAML []byte

// Steps is the embedded PRD chain.
var Steps = catalog.MustParse(stepsYAML, catalog.DefaultValidators())

// SectionKeys lists the section state keys in document order.
var SectionKeys = []string{
	"executive_summary",
	"problem_statement",
	"target_audience",
	"functional_requirements",
	"non_functional_requirements",
	"user_stories",
	"technical_architecture",
	"api_design",
	"ui_ux_considerations",
	"security_compliance",
	"testing_strategy",
	"deployment_devops",
	"assumptions_risks",
}

type Input struct {
	FeatureIdea     string
	ProductName     string
	TargetUsers     string
	BusinessContext string
}

type Output struct {
	FeatureIdea string
	// Sections maps each of SectionKeys to its generated markdown.
	Sections     map[string]string
	FullDocument string
	State        map[string]string
}

// Section returns the generated text for key, or "" when absent.
func (o Output) Section(key string) string {
	return o.Sections[key]
}

type Pipeline struct {
	deps pipeline.Dependencies
}

func New(deps pipeline.Dependencies) *Pipeline {
	return &Pipeline{deps: deps}
}

func (p *Pipeline) Run(ctx context.Context, in Input) (Output, error) {
	if strings.TrimSpace(in.FeatureIdea) == "" {
		return Output{}, fmt.Errorf("%w: feature idea", pipeline.ErrMissingInput)
	}
	if strings.TrimSpace(in.ProductName) == "" {
		in.ProductName = DefaultProductName
	}

	run, err := pipeline.Start(ctx, p.deps, Workflow, Steps.Budget, map[string]string{
		"feature_idea":     in.FeatureIdea,
		"product_name":     in.ProductName,
		"target_users":     in.TargetUsers,
		"business_context": in.BusinessContext,
	})
	if err != nil {
		return Output{}, fmt.Errorf("prd: %w", err)
	}
	state, err := run.Exec(ctx, Steps.Steps)
	if err != nil {
		return Output{}, fmt.Errorf("prd: %w", err)
	}

	sections := make(map[string]string, len(SectionKeys))
	for _, key := range SectionKeys {
		sections[key] = state[key]
	}
	return Output{
		FeatureIdea:  in.FeatureIdea,
		Sections:     sections,
		FullDocument: state[documentKey],
		State:        state,
	}, nil
}
