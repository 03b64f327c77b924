package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show local store totals",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, cleanup, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := d.Local.Stats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(out, st)
	}
	fmt.Fprintf(out, "Patterns:   %d (%d deprecated)\n", st.Patterns, st.Deprecated)
	fmt.Fprintf(out, "Lineage:    %d\n", st.Lineage)
	fmt.Fprintf(out, "Runs:       %d\n", st.Runs)
	return nil
}
