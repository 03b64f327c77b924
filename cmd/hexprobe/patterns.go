package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/hexprobe/internal/knowledge"
)

var (
	patternsMin int
	patternsAll bool
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List recurrent patterns",
	Long: `List local patterns triggered at least --min times (default:
learning.recurrent_min), ordered by id. --all lists every pattern,
oldest first.`,
	Args: cobra.NoArgs,
	RunE: runPatterns,
}

func init() {
	patternsCmd.Flags().IntVar(&patternsMin, "min", -1, "Minimum trigger count")
	patternsCmd.Flags().BoolVar(&patternsAll, "all", false, "List every pattern")
	rootCmd.AddCommand(patternsCmd)
}

func runPatterns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, cleanup, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var patterns []knowledge.Pattern
	if patternsAll {
		patterns, err = d.Local.ListPatterns(ctx)
	} else {
		minTriggers := patternsMin
		if minTriggers < 0 {
			minTriggers = d.Config.Learning.RecurrentMin
		}
		patterns, err = d.Local.QueryRecurrent(ctx, minTriggers)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput() {
		if patterns == nil {
			patterns = []knowledge.Pattern{}
		}
		return printJSON(out, patterns)
	}
	if len(patterns) == 0 {
		fmt.Fprintln(out, "No patterns.")
		return nil
	}
	printPatterns(out, patterns)
	return nil
}
