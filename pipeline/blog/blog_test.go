package blog_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gurpartap/promptchain/adapters/modeltest"
	"github.com/Gurpartap/promptchain/chain"
	"github.com/Gurpartap/promptchain/pipeline"
	"github.com/Gurpartap/promptchain/pipeline/blog"
	"github.com/Gurpartap/promptchain/policy/costroute"
	telemetryinmem "github.com/Gurpartap/promptchain/telemetry/inmem"
)

func newDeps(t *testing.T, generator chain.Generator, recorder *telemetryinmem.Recorder) pipeline.Dependencies {
	t.Helper()
	router, err := costroute.New(costroute.Config{
		Premium:  chain.ModelTier{Name: "premium", Model: "p", InputPricePer1K: 0.003, OutputPricePer1K: 0.015},
		Standard: chain.ModelTier{Name: "standard", Model: "s", InputPricePer1K: 0.00025, OutputPricePer1K: 0.00125},
	})
	require.NoError(t, err)
	return pipeline.Dependencies{Generator: generator, Router: router, Telemetry: recorder}
}

func TestSteps_Catalog(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2500, blog.Steps.Budget)
	names := make([]string, len(blog.Steps.Steps))
	for i, step := range blog.Steps.Steps {
		names[i] = step.Name
		assert.NotNil(t, step.Validator, step.Name)
	}
	assert.Equal(t, []string{
		"keyword_research", "outline", "introduction", "sections",
		"conclusion", "seo_review", "final_polish",
	}, names)
}

func TestRun_ProducesArticle(t *testing.T) {
	t.Parallel()

	body := "## First\nalpha\n\n## Second\nbeta\n### Sub\ngamma\n"
	generator := modeltest.NewScriptedGenerator(
		modeltest.Text("research notes"),
		modeltest.Text("# Title\n## A"),
		modeltest.Text("intro text"),
		modeltest.Text(body),
		modeltest.Text("wrap up"),
		modeltest.Text("meta title and description for keyword"),
		modeltest.Text("# Final"),
	)
	recorder := telemetryinmem.New()

	out, err := blog.New(newDeps(t, generator, recorder)).Run(context.Background(), blog.Input{
		Keyword:  "go concurrency",
		Audience: "backend engineers",
	})
	require.NoError(t, err)

	assert.Equal(t, "go concurrency", out.Keyword)
	assert.Equal(t, "# Title\n## A", out.Outline)
	assert.Equal(t, "intro text", out.Introduction)
	assert.Equal(t, []blog.Section{
		{Title: "First", Body: "alpha"},
		{Title: "Second", Body: "beta\n### Sub\ngamma"},
	}, out.Sections)
	assert.Equal(t, "wrap up", out.Conclusion)
	assert.Equal(t, "# Final", out.FinalArticle)
	assert.Equal(t, "2000", out.State["target_length_words"])
	assert.Equal(t, blog.DefaultTone, out.State["tone"])

	prompts := generator.Prompts()
	require.Len(t, prompts, 7)
	assert.Contains(t, prompts[0], `Keyword: "go concurrency"`)
	assert.Contains(t, prompts[0], "Primary audience: backend engineers")
	assert.Contains(t, prompts[1], "research notes")
	assert.Contains(t, prompts[3], "around 2000 words")
	assert.Contains(t, prompts[6], "meta title and description for keyword")

	assert.Len(t, recorder.EventsOfKind(chain.StepEventWorkflowStart), 1)
	end := recorder.EventsOfKind(chain.StepEventWorkflowEnd)
	require.Len(t, end, 1)
	assert.Equal(t, true, end[0].Metadata["success"])

	warned := map[string]bool{}
	for _, event := range recorder.EventsOfKind(chain.StepEventQualityWarning) {
		warned[event.Name] = true
	}
	assert.False(t, warned["seo_review"], "seo review text satisfies its validator")
	assert.True(t, warned["keyword_research"])
	assert.True(t, warned["final_polish"])
	assert.Len(t, recorder.Calls(), 7)
}

func TestRun_RequiresKeywordAndAudience(t *testing.T) {
	t.Parallel()

	p := blog.New(newDeps(t, modeltest.NewScriptedGenerator(), telemetryinmem.New()))
	_, err := p.Run(context.Background(), blog.Input{Audience: "x"})
	require.ErrorIs(t, err, pipeline.ErrMissingInput)
	_, err = p.Run(context.Background(), blog.Input{Keyword: "x", Audience: " "})
	require.ErrorIs(t, err, pipeline.ErrMissingInput)
}

func TestRun_GeneratorFailureEndsWorkflow(t *testing.T) {
	t.Parallel()

	generator := modeltest.NewScriptedGenerator(modeltest.Text("r"), modeltest.Fail(chain.ErrRateLimited))
	recorder := telemetryinmem.New()

	_, err := blog.New(newDeps(t, generator, recorder)).Run(context.Background(), blog.Input{Keyword: "k", Audience: "a"})
	require.ErrorIs(t, err, chain.ErrRateLimited)
	assert.Contains(t, err.Error(), `"outline"`)

	end := recorder.EventsOfKind(chain.StepEventWorkflowEnd)
	require.Len(t, end, 1)
	assert.Equal(t, false, end[0].Metadata["success"])
}

func TestSplitSections(t *testing.T) {
	t.Parallel()

	assert.Empty(t, blog.SplitSections("no headings here"))
	assert.Empty(t, blog.SplitSections(""))

	got := blog.SplitSections("preamble\n## One\r\n text \n## Two\n")
	assert.Equal(t, []blog.Section{{Title: "One", Body: "text"}, {Title: "Two", Body: ""}}, got)

	long := strings.Repeat("## H\nx\n", 5)
	assert.Len(t, blog.SplitSections(long), 5)
}
