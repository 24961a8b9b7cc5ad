// Package research answers a SaaS opportunity question by decomposing it,
// researching the parts in parallel, then analysing and reporting.
package research

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Gurpartap/promptchain/chain"
	"github.com/Gurpartap/promptchain/pipeline"
	"github.com/Gurpartap/promptchain/pipeline/catalog"
)

const (
	Workflow          = "saas_research"
	DefaultMaxQueries = 6

	managerAgent  = "manager"
	researchAgent = "research_agent"

	kindDecomposition chain.UpdateKind = "decomposition"
	kindResearch      chain.UpdateKind = "research"

	CheckpointDecomposed = "decomposed"
	CheckpointResearched = "researched"
)

var (
	ErrNoSubQueries    = errors.New("no sub-queries in decomposition")
	ErrSubQueriesParse = errors.New("failed to parse sub-queries")
)

//go:embed steps.yaml
var stepsYAML []byte

// Steps holds the analysis and report steps that follow the fan-out.
var Steps = catalog.MustParse(stepsYAML, catalog.DefaultValidators())

const decomposePrompt = `You are a SaaS opportunity lead researcher.

Break the following question into 3-6 specific research sub-queries
that can be investigated in parallel.

Focus on:
- customer segments and pain points
- existing solutions and their gaps
- pricing / monetization patterns
- distribution / acquisition channels
- defensibility (moats, ecosystem, data, integrations)

Original question:
{query}

Return ONLY a JSON array of strings, e.g.:
["sub-question 1", "sub-question 2", ...]
`

const subQueryPrompt = `You are a SaaS market research agent.

Research this specific question in depth:

Question #{index}:
{question}

Focus on:
- concrete examples and products
- evidence of user demand (search, communities, reviews, churn stories)
- pricing bands and monetization patterns
- notable shutdowns or "orphaned demand" signals
- risks and constraints

Respond with a structured summary using headings and bullet points.
`

var jsonArray = regexp.MustCompile(`\[[\s\S]*\]`)

// Finding is the research output for one sub-query.
type Finding struct {
	Question string
	Text     string
}

type Result struct {
	Query      string
	SubQueries []string
	Findings   []Finding
	Analysis   string
	Report     string
	State      map[string]string
}

type Options struct {
	// MaxQueries caps how many sub-queries are researched.
	MaxQueries int
	// Concurrency bounds parallel research calls; zero means one per sub-query.
	Concurrency int
}

type Pipeline struct {
	deps pipeline.Dependencies
	opts Options
}

func New(deps pipeline.Dependencies, opts Options) *Pipeline {
	if opts.MaxQueries <= 0 {
		opts.MaxQueries = DefaultMaxQueries
	}
	return &Pipeline{deps: deps, opts: opts}
}

func (p *Pipeline) Run(ctx context.Context, query string) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{}, fmt.Errorf("%w: query", pipeline.ErrMissingInput)
	}

	run, err := pipeline.Start(ctx, p.deps, Workflow, Steps.Budget, map[string]string{"query": query})
	if err != nil {
		return Result{}, fmt.Errorf("research: %w", err)
	}
	result, err := p.run(ctx, run, query)
	run.Finish(ctx, err)
	if err != nil {
		return Result{}, fmt.Errorf("research: %w", err)
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, run *pipeline.Run, query string) (Result, error) {
	subQueries, err := p.decompose(ctx, run, query)
	if err != nil {
		return Result{}, err
	}
	run.Checkpoint(ctx, CheckpointDecomposed)

	findings, err := p.research(ctx, run, subQueries)
	if err != nil {
		return Result{}, err
	}
	run.Checkpoint(ctx, CheckpointResearched)

	state, err := run.Runner.Run(ctx, Steps.Steps)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Query:      query,
		SubQueries: subQueries,
		Findings:   findings,
		Analysis:   state["research_analysis"],
		Report:     state["final_report"],
		State:      state,
	}, nil
}

func (p *Pipeline) decompose(ctx context.Context, run *pipeline.Run, query string) ([]string, error) {
	prompt, err := chain.Render(decomposePrompt, map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	result, err := run.Runner.Invoke(ctx, chain.Invocation{
		AgentID:   managerAgent,
		Prompt:    prompt,
		Task:      chain.TaskAnalysis,
		MaxTokens: 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}
	subQueries, err := ParseSubQueries(result.Generation.Text)
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}
	if len(subQueries) > p.opts.MaxQueries {
		subQueries = subQueries[:p.opts.MaxQueries]
	}

	encoded, err := json.Marshal(subQueries)
	if err != nil {
		return nil, fmt.Errorf("decompose: encode sub-queries: %w", err)
	}
	run.Runner.Store().Update(managerAgent, map[string]string{"sub_queries": string(encoded)}, kindDecomposition)
	return subQueries, nil
}

// ParseSubQueries extracts the first-to-last bracketed JSON array of strings
// from text, dropping blank entries.
func ParseSubQueries(text string) ([]string, error) {
	match := jsonArray.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("%w: no JSON array in response", ErrSubQueriesParse)
	}
	var raw []string
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubQueriesParse, err)
	}
	out := make([]string, 0, len(raw))
	for _, q := range raw {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoSubQueries
	}
	return out, nil
}

func (p *Pipeline) research(ctx context.Context, run *pipeline.Run, subQueries []string) ([]Finding, error) {
	findings := make([]Finding, len(subQueries))
	group, groupCtx := errgroup.WithContext(ctx)
	if p.opts.Concurrency > 0 {
		group.SetLimit(p.opts.Concurrency)
	}
	for i, question := range subQueries {
		group.Go(func() error {
			prompt, err := chain.Render(subQueryPrompt, map[string]string{
				"index":    strconv.Itoa(i + 1),
				"question": question,
			})
			if err != nil {
				return err
			}
			result, err := run.Runner.Invoke(groupCtx, chain.Invocation{
				AgentID:   researchAgent,
				Prompt:    prompt,
				Task:      chain.TaskAnalysis,
				MaxTokens: 2048,
			})
			if err != nil {
				return fmt.Errorf("research sub-query %d: %w", i+1, err)
			}
			findings[i] = Finding{Question: question, Text: result.Generation.Text}
			run.Runner.Store().Update(researchAgent, map[string]string{
				findingKey(i): result.Generation.Text,
			}, kindResearch)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	// The window is single-writer, so findings are added after the fan-in.
	for i, finding := range findings {
		run.Window.Add(findingKey(i), finding.Text, chain.ImportanceMedium, []string{"research"})
	}
	run.Runner.Store().Update(researchAgent, map[string]string{"findings": FormatFindings(findings)}, kindResearch)
	return findings, nil
}

func findingKey(i int) string {
	return "finding_" + strconv.Itoa(i+1)
}

// FormatFindings renders findings in sub-query order for downstream prompts.
func FormatFindings(findings []Finding) string {
	blocks := make([]string, len(findings))
	for i, finding := range findings {
		blocks[i] = "Sub-query: " + finding.Question + "\n\n" + finding.Text
	}
	return strings.Join(blocks, "\n\n")
}
