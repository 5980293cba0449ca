package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/surveyloom-cli/internal/ai"
	"github.com/KaramelBytes/surveyloom-cli/internal/classify"
	"github.com/KaramelBytes/surveyloom-cli/internal/metrics"
	"github.com/KaramelBytes/surveyloom-cli/internal/pipeline"
)

var (
	anaFlags      runFlags
	anaOutputPath string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Chart closed-form columns and summarize open-ended responses of a survey export",
	Example: `  surveyloom analyze survey.csv
  surveyloom analyze survey.xlsx --sheet-name Responses -o results/survey.csv
  surveyloom analyze survey.csv --dry-run
  surveyloom analyze survey.csv --provider ollama --model llama3.1:8b --workers 4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		opts, eff, err := pipelineOptions(cmd, c, &anaFlags)
		if err != nil {
			return err
		}
		opts.InputPath = args[0]
		opts.ResultPath = anaOutputPath
		if opts.ResultPath == "" {
			opts.ResultPath = defaultResultPath(eff.ResultsDir, opts.InputPath)
		}

		var rt ai.Runtime
		if !opts.DryRun {
			if rt, err = newRuntime(eff); err != nil {
				return err
			}
			if needsAPIKey(eff.Provider) && eff.APIKey == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "⚠ No API key configured (set OPENAI_API_KEY or SURVEYLOOM_API_KEY); open-ended analysis calls will fail")
			}
		}

		rec := metrics.New()
		if err := checkBudget(cmd.Context(), opts, anaFlags.budgetLimit); err != nil {
			return err
		}
		res, err := pipeline.New(rt, logger, rec).Run(cmd.Context(), opts)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if opts.DryRun {
			printEstimate(out, res)
		} else {
			printRunSummary(out, res, opts)
		}
		if anaFlags.metricsFile != "" {
			if err := rec.WriteTextfile(anaFlags.metricsFile); err != nil {
				return fmt.Errorf("write metrics: %w", err)
			}
		}
		return nil
	},
}

func printClassification(out io.Writer, res *pipeline.Result) {
	cr := res.Classification
	fmt.Fprintf(out, "✓ Loaded %d rows; columns: %d closed-form, %d open-ended, %d skipped\n",
		res.Rows, cr.Count(classify.ClosedForm), cr.Count(classify.OpenEnded), cr.Count(classify.Skipped))
}

func printRunSummary(out io.Writer, res *pipeline.Result, opts pipeline.Options) {
	printClassification(out, res)
	fmt.Fprintf(out, "✓ Wrote %d chart(s) to %s\n", len(res.Charts), opts.ChartsDir)
	for _, f := range res.Charts {
		fmt.Fprintf(out, "   - %s\n", f)
	}
	for _, f := range res.ChartFailures {
		fmt.Fprintf(out, "⚠ Chart for %q failed: %v\n", f.Column, f.Err)
	}
	for _, r := range res.Reports {
		fmt.Fprintf(out, "✓ Analyzed %s -> %s (%d ok", r.Column, r.Output, r.Analyzed)
		if r.Failed > 0 {
			fmt.Fprintf(out, ", %d failed", r.Failed)
		}
		if r.NotAnalyzed > 0 {
			fmt.Fprintf(out, ", %d beyond sample limit", r.NotAnalyzed)
		}
		fmt.Fprintln(out, ")")
		if r.Failed > 0 {
			fmt.Fprintf(out, "⚠ %d response(s) in %s were marked with an analysis error\n", r.Failed, r.Column)
		}
	}
	fmt.Fprintf(out, "✓ Wrote results to %s\n", res.ResultPath)
	if res.ManifestPath != "" {
		fmt.Fprintf(out, "✓ Wrote manifest to %s\n", filepath.Base(res.ManifestPath))
	}
}

func printEstimate(out io.Writer, res *pipeline.Result) {
	printClassification(out, res)
	est := res.Estimate
	fmt.Fprintf(out, "Dry run: %d call(s) across %d open-ended column(s)\n", est.Calls, len(est.Columns))
	for _, p := range est.Columns {
		fmt.Fprintf(out, "   - %s: %d call(s), ~%d prompt tokens", p.Column, len(p.Rows), p.PromptTokens)
		if p.NotAnalyzed > 0 {
			fmt.Fprintf(out, ", %d beyond sample limit", p.NotAnalyzed)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "Estimated tokens: prompt ~%d, completion ~%d\n", est.PromptTokens, est.CompletionTokens)
	if est.CostKnown {
		fmt.Fprintf(out, "Estimated cost: $%.4f (%s)\n", est.CostUSD, est.Model)
	} else {
		fmt.Fprintf(out, "⚠ No pricing for model %s; cost unknown\n", est.Model)
	}
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	anaFlags.register(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "result file path (default <results-dir>/analyzed_<name>.csv)")
}
