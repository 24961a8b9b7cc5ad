// Package blog generates an SEO blog article through a seven-step chain.
package blog

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/Gurpartap/promptchain/pipeline"
	"github.com/Gurpartap/promptchain/pipeline/catalog"
)

const (
	Workflow             = "content_blog"
	DefaultLengthWords   = 2000
	DefaultTone          = "conversational, authoritative"
	sectionHeadingPrefix = "## "
)

//go:embed steps.yaml
var stepsYAML []byte

// Steps is the embedded blog chain.
var Steps = catalog.MustParse(stepsYAML, catalog.DefaultValidators())

type Input struct {
	Keyword           string
	Audience          string
	TargetLengthWords int
	Tone              string
	BrandVoice        string
}

// Section is one "## " block of the drafted body.
type Section struct {
	Title string
	Body  string
}

type Output struct {
	Keyword      string
	Research     string
	Outline      string
	Introduction string
	Sections     []Section
	Conclusion   string
	SEOReview    string
	FinalArticle string
	State        map[string]string
}

type Pipeline struct {
	deps pipeline.Dependencies
}

func New(deps pipeline.Dependencies) *Pipeline {
	return &Pipeline{deps: deps}
}

func (p *Pipeline) Run(ctx context.Context, in Input) (Output, error) {
	if strings.TrimSpace(in.Keyword) == "" {
		return Output{}, fmt.Errorf("%w: keyword", pipeline.ErrMissingInput)
	}
	if strings.TrimSpace(in.Audience) == "" {
		return Output{}, fmt.Errorf("%w: audience", pipeline.ErrMissingInput)
	}
	if in.TargetLengthWords <= 0 {
		in.TargetLengthWords = DefaultLengthWords
	}
	if strings.TrimSpace(in.Tone) == "" {
		in.Tone = DefaultTone
	}

	run, err := pipeline.Start(ctx, p.deps, Workflow, Steps.Budget, map[string]string{
		"keyword":             in.Keyword,
		"primary_audience":    in.Audience,
		"target_length_words": strconv.Itoa(in.TargetLengthWords),
		"tone":                in.Tone,
		"brand_voice":         in.BrandVoice,
	})
	if err != nil {
		return Output{}, fmt.Errorf("blog: %w", err)
	}
	state, err := run.Exec(ctx, Steps.Steps)
	if err != nil {
		return Output{}, fmt.Errorf("blog: %w", err)
	}

	return Output{
		Keyword:      in.Keyword,
		Research:     state["blog_research"],
		Outline:      state["blog_outline"],
		Introduction: state["blog_intro"],
		Sections:     SplitSections(state["blog_sections"]),
		Conclusion:   state["blog_conclusion"],
		SEOReview:    state["blog_seo_review"],
		FinalArticle: state["blog_final_article"],
		State:        state,
	}, nil
}

// SplitSections splits markdown on lines starting with "## ". Text before
// the first such heading is dropped.
func SplitSections(markdown string) []Section {
	var sections []Section
	var current *Section
	var body []string
	flush := func() {
		if current != nil {
			current.Body = strings.TrimSpace(strings.Join(body, "\n"))
			sections = append(sections, *current)
		}
		body = body[:0]
	}
	for line := range strings.Lines(markdown) {
		line = strings.TrimRight(line, "\r\n")
		if title, ok := strings.CutPrefix(line, sectionHeadingPrefix); ok {
			flush()
			current = &Section{Title: strings.TrimSpace(title)}
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}
