package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/surveyloom-cli/internal/classify"
	"github.com/KaramelBytes/surveyloom-cli/internal/table"
	"github.com/KaramelBytes/surveyloom-cli/internal/utils"
)

var (
	clsDelimiter  string
	clsSheetName  string
	clsSheetIndex int
	clsMaxRows    int
	clsJSON       bool
	clsKind       string
)

var classifyCmd = &cobra.Command{
	Use:   "classify <file>",
	Short: "Show how each survey column would be treated, without charts or model calls",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		opt := table.DefaultOptions()
		if opt.Delimiter, err = parseDelimiter(clsDelimiter); err != nil {
			return err
		}
		opt.SheetName = clsSheetName
		opt.SheetIndex = clsSheetIndex
		opt.MaxRows = clsMaxRows

		t, err := table.LoadFile(args[0], opt)
		if err != nil {
			return err
		}
		th := classify.Thresholds{
			OpenEndedMeanLength: c.OpenEndedMeanLength,
			ClosedFormMaxUnique: c.ClosedFormMaxUnique,
			ClosedFormMaxLength: c.ClosedFormMaxLength,
		}
		res, err := classify.Classify(t, th)
		if err != nil {
			return err
		}

		cols := res.Columns
		if clsKind != "" {
			cols = nil
			for _, col := range res.Columns {
				if string(col.Kind) == clsKind {
					cols = append(cols, col)
				}
			}
		}
		out := cmd.OutOrStdout()
		if clsJSON {
			b, err := utils.PrettyJSON(cols)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		}
		if len(cols) == 0 {
			fmt.Fprintln(out, "(no columns)")
			return nil
		}
		fmt.Fprintf(out, "%d rows, %d columns\n", t.Rows(), len(t.Columns()))
		for _, col := range cols {
			s := col.Stats
			fmt.Fprintf(out, "- %s: %s (non-missing=%d, mean_len=%.1f, unique=%d, max_len=%d)\n",
				col.Name, col.Kind, s.NonMissing, s.MeanLength, s.Unique, s.MaxLength)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringVar(&clsDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab'")
	classifyCmd.Flags().StringVar(&clsSheetName, "sheet-name", "", "Excel: sheet name to read")
	classifyCmd.Flags().IntVar(&clsSheetIndex, "sheet-index", 1, "Excel: 1-based sheet index (used if --sheet-name not provided)")
	classifyCmd.Flags().IntVar(&clsMaxRows, "max-rows", 0, "maximum rows to read (0 = unlimited)")
	classifyCmd.Flags().BoolVar(&clsJSON, "json", false, "print the classification as JSON")
	classifyCmd.Flags().StringVar(&clsKind, "kind", "", "only list columns of this kind: closed-form|open-ended|skipped")
}
