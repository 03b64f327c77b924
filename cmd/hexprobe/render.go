package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/HendryAvila/hexprobe/internal/knowledge"
	"github.com/HendryAvila/hexprobe/internal/orchestrator"
	"github.com/HendryAvila/hexprobe/internal/probe"
)

func printResult(w io.Writer, probeID, repo string, res probe.Result) {
	fmt.Fprintf(w, "Probe %s on %s: %s (%d findings)\n", probeID, repo, strings.ToUpper(string(res.Severity)), len(res.Findings))
	for _, f := range res.Findings {
		loc := ""
		if f.Location != "" {
			loc = " (" + f.Location + ")"
		}
		fmt.Fprintf(w, "  [%s] %s: %s%s\n", f.Severity, f.Category, f.Message, loc)
	}
	for _, r := range res.Repro {
		fmt.Fprintf(w, "  repro: %s\n", r)
	}
	if res.Rationale != "" {
		fmt.Fprintf(w, "  rationale: %s\n", res.Rationale)
	}
}

func printCycle(w io.Writer, c *orchestrator.Cycle) {
	printResult(w, c.Probe, c.Repo, c.Result)

	fmt.Fprintln(w, "\nAgents:")
	for _, a := range c.Approvals {
		verdict := "approved"
		if !a.Approved {
			verdict = "rejected"
		}
		if a.Err != "" {
			verdict += " (" + a.Err + ")"
		}
		fmt.Fprintf(w, "  %-8s %s\n", a.Agent, verdict)
	}

	if len(c.Patches) > 0 {
		fmt.Fprintln(w, "\nPatches:")
		for _, p := range c.Patches {
			fmt.Fprintf(w, "  %s %s: %s\n", p.ID, p.Category, p.Rationale)
			for _, line := range strings.Split(p.CodeSnippet, "\n") {
				fmt.Fprintf(w, "      %s\n", line)
			}
		}
	}

	fmt.Fprintf(w, "\nLearned %d patterns", len(c.PatternIDs))
	if len(c.Skipped) > 0 {
		fmt.Fprintf(w, ", skipped %d deprecated", len(c.Skipped))
	}
	fmt.Fprintln(w)
}

func printPatterns(w io.Writer, patterns []knowledge.Pattern) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tSEVERITY\tTRIGGERS\tFALSE POS\tCREATED\tDESCRIPTION")
	for _, p := range patterns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			p.ID, p.Category, p.Severity, p.TriggerCount, p.FalsePositiveCount,
			p.CreatedAt.Format(time.DateOnly), p.Description)
	}
	_ = tw.Flush()
}

func printLineage(w io.Writer, scope string, l *knowledge.Lineage) {
	fix := "-"
	if l.FixCommit != nil {
		fix = *l.FixCommit
	}
	fmt.Fprintf(w, "%s lineage of %s\n", scope, l.ProbeID)
	fmt.Fprintf(w, "  pattern:  %s\n", l.PatternID)
	fmt.Fprintf(w, "  bug:      %s\n", l.BugID)
	fmt.Fprintf(w, "  fix:      %s\n", fix)
	fmt.Fprintf(w, "  repo:     %s\n", l.OriginatingRepo)
	fmt.Fprintf(w, "  created:  %s\n", l.CreatedAt.Format(time.RFC3339))
}
