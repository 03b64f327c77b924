package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/hexprobe/internal/maintenance"
	"github.com/HendryAvila/hexprobe/internal/tools"
)

var pruneMaxAge int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete patterns and lineage past the configured age",
	Long: `Run the aging cycle over the local and global stores: every pattern
and lineage row created more than --max-age-days ago (default:
aging.max_age_days) is deleted, whatever its counters.`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().IntVar(&pruneMaxAge, "max-age-days", -1, "Age limit in days")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, cleanup, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	days := pruneMaxAge
	if days < 0 {
		days = d.Config.Aging.MaxAgeDays
	}
	report, err := maintenance.Cycle(ctx, time.Now(), days, d.PruneTargets()...)
	tools.ObservePrune(d.Metrics, report)
	if err != nil {
		return err
	}
	d.Log.Info().Int64("deleted", report.Total()).Time("cutoff", report.Cutoff).Msg("aging cycle complete")

	out := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(out, report)
	}
	fmt.Fprintf(out, "Cutoff %s\n", report.Cutoff.UTC().Format(time.RFC3339))
	for _, c := range report.Targets {
		fmt.Fprintf(out, "  %-7s %d patterns, %d lineage rows\n", c.Target, c.Patterns, c.Lineage)
	}
	return nil
}
