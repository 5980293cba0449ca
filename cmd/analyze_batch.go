package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/surveyloom-cli/internal/ai"
	"github.com/KaramelBytes/surveyloom-cli/internal/metrics"
	"github.com/KaramelBytes/surveyloom-cli/internal/pipeline"
)

var (
	abFlags     runFlags
	abQuiet     bool
	abKeepGoing bool
)

var analyzeBatchCmd = &cobra.Command{
	Use:   "analyze-batch <files...>",
	Short: "Analyze multiple survey exports, each with its own result file and chart folder",
	Example: `  surveyloom analyze-batch exports/*.csv
  surveyloom analyze-batch q1.xlsx q2.xlsx --keep-going --metrics-file batch.prom`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := expandInputs(args)
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}

		c, err := requireConfig()
		if err != nil {
			return err
		}
		base, eff, err := pipelineOptions(cmd, c, &abFlags)
		if err != nil {
			return err
		}
		var rt ai.Runtime
		if !base.DryRun {
			if rt, err = newRuntime(eff); err != nil {
				return err
			}
		}
		rec := metrics.New()
		p := pipeline.New(rt, logger, rec)
		out := cmd.OutOrStdout()

		var failed []string
		usedStems := map[string]int{}
		total := len(files)
		for i, path := range files {
			if !abQuiet {
				fmt.Fprintf(out, "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			stem := uniqueStem(usedStems, path)
			opts := base
			opts.InputPath = path
			opts.ResultPath = filepath.Join(eff.ResultsDir, "analyzed_"+stem+".csv")
			opts.ChartsDir = filepath.Join(base.ChartsDir, stem)

			err := checkBudget(cmd.Context(), opts, abFlags.budgetLimit)
			var res *pipeline.Result
			if err == nil {
				res, err = p.Run(cmd.Context(), opts)
			}
			if err != nil {
				if !abKeepGoing || cmd.Context().Err() != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(out, "⚠ %s: %v\n", filepath.Base(path), err)
				failed = append(failed, path)
				continue
			}
			if abQuiet {
				continue
			}
			if opts.DryRun {
				printEstimate(out, res)
			} else {
				printRunSummary(out, res, opts)
			}
		}
		if abFlags.metricsFile != "" {
			if err := rec.WriteTextfile(abFlags.metricsFile); err != nil {
				return fmt.Errorf("write metrics: %w", err)
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d file(s) failed: %s", len(failed), total, strings.Join(failed, ", "))
		}
		return nil
	},
}

// expandInputs resolves globs, keeps literal paths that exist, drops
// duplicates and sorts the result.
func expandInputs(args []string) []string {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files
}

// uniqueStem returns the input's base name without extension, suffixed
// with __2, __3, ... when an earlier file in the batch had the same stem.
func uniqueStem(used map[string]int, path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	used[stem]++
	if n := used[stem]; n > 1 {
		return fmt.Sprintf("%s__%d", stem, n)
	}
	return stem
}

func init() {
	rootCmd.AddCommand(analyzeBatchCmd)
	abFlags.register(analyzeBatchCmd)
	analyzeBatchCmd.Flags().BoolVar(&abQuiet, "quiet", false, "suppress progress and non-essential output")
	analyzeBatchCmd.Flags().BoolVar(&abKeepGoing, "keep-going", false, "continue with the next file when one fails")
}
