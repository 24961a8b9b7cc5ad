package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Gurpartap/promptchain/pipeline/blog"
	"github.com/Gurpartap/promptchain/pipeline/prd"
	"github.com/Gurpartap/promptchain/pipeline/research"
)

func newResearchCommand(app *App, flags *globalFlags) *cobra.Command {
	var opts research.Options
	cmd := &cobra.Command{
		Use:   "research <query>",
		Short: "Decompose a SaaS question, research it in parallel, and write a report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.newSession(flags, research.Workflow)
			if err != nil {
				return err
			}
			s.deps.Budget = s.cfg.Budgets.Research

			result, err := research.New(s.deps, opts).Run(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return s.finish(cmd.Context(), result.Report)
		},
	}
	cmd.Flags().IntVar(&opts.MaxQueries, "max-queries", research.DefaultMaxQueries, "maximum sub-queries to research")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "parallel research calls; 0 runs every sub-query at once")
	return cmd
}

func newBlogCommand(app *App, flags *globalFlags) *cobra.Command {
	var in blog.Input
	cmd := &cobra.Command{
		Use:   "blog",
		Short: "Write an SEO blog article for a keyword",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.newSession(flags, blog.Workflow)
			if err != nil {
				return err
			}
			s.deps.Budget = s.cfg.Budgets.Blog

			out, err := blog.New(s.deps).Run(cmd.Context(), in)
			if err != nil {
				return err
			}
			return s.finish(cmd.Context(), out.FinalArticle)
		},
	}
	cmd.Flags().StringVar(&in.Keyword, "keyword", "", "primary SEO keyword")
	cmd.Flags().StringVar(&in.Audience, "audience", "", "primary audience")
	cmd.Flags().IntVar(&in.TargetLengthWords, "length", blog.DefaultLengthWords, "target article length in words")
	cmd.Flags().StringVar(&in.Tone, "tone", blog.DefaultTone, "article tone")
	cmd.Flags().StringVar(&in.BrandVoice, "brand-voice", "", "brand voice notes")
	_ = cmd.MarkFlagRequired("keyword")
	_ = cmd.MarkFlagRequired("audience")
	return cmd
}

func newPRDCommand(app *App, flags *globalFlags) *cobra.Command {
	var in prd.Input
	cmd := &cobra.Command{
		Use:   "prd",
		Short: "Generate a product requirements document from a feature idea",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.newSession(flags, prd.Workflow)
			if err != nil {
				return err
			}
			s.deps.Budget = s.cfg.Budgets.PRD

			out, err := prd.New(s.deps).Run(cmd.Context(), in)
			if err != nil {
				return err
			}
			return s.finish(cmd.Context(), out.FullDocument)
		},
	}
	cmd.Flags().StringVar(&in.FeatureIdea, "feature-idea", "", "feature idea to specify")
	cmd.Flags().StringVar(&in.ProductName, "product-name", prd.DefaultProductName, "product name")
	cmd.Flags().StringVar(&in.TargetUsers, "target-users", "", "target users")
	cmd.Flags().StringVar(&in.BusinessContext, "business-context", "", "business context")
	_ = cmd.MarkFlagRequired("feature-idea")
	return cmd
}
