package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/hexprobe/internal/knowledge"
)

var lineageGlobal bool

var lineageCmd = &cobra.Command{
	Use:   "lineage <probe-id>",
	Short: "Show the lineage of a generated probe",
	Args:  cobra.ExactArgs(1),
	RunE:  runLineage,
}

var (
	generateBug     string
	generateFix     string
	generateRepo    string
	generatePromote bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <pattern-id>",
	Short: "Generate a regression probe from a pattern",
	Long: `Generate a probe from a local pattern and record its lineage: the bug
it guards against, the commit that fixed it and the originating repo.

Example:
  hexprobe generate pat_3f2a9c0d81e4b7aa --bug ISSUE-42 --fix 9b1e0c7 --promote`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	lineageCmd.Flags().BoolVar(&lineageGlobal, "global", false, "Read from the global store")
	rootCmd.AddCommand(lineageCmd)

	generateCmd.Flags().StringVar(&generateBug, "bug", "", "Bug id (default: a fresh UUID)")
	generateCmd.Flags().StringVar(&generateFix, "fix", "", "Fix commit")
	generateCmd.Flags().StringVar(&generateRepo, "repo", "", "Originating repo (default: current directory)")
	generateCmd.Flags().BoolVar(&generatePromote, "promote", false, "Promote the lineage to the global store")
	rootCmd.AddCommand(generateCmd)
}

func runLineage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, cleanup, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	scope := "local"
	var l *knowledge.Lineage
	if lineageGlobal {
		scope = "global"
		l, err = d.Global.GetLineage(ctx, args[0])
	} else {
		l, err = d.Local.GetProbeLineage(ctx, args[0])
	}
	if err != nil {
		return err
	}
	if l == nil {
		return fmt.Errorf("no %s lineage for probe %s", scope, args[0])
	}

	if jsonOutput() {
		return printJSON(cmd.OutOrStdout(), l)
	}
	printLineage(cmd.OutOrStdout(), scope, l)
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, cleanup, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := d.Local.GetPattern(ctx, args[0])
	if err != nil {
		return err
	}

	bug := generateBug
	if bug == "" {
		bug = uuid.NewString()
	}
	repo := generateRepo
	if repo == "" {
		if repo, err = os.Getwd(); err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
	}
	var fix *string
	if generateFix != "" {
		fix = &generateFix
	}

	probeID, res, err := d.Local.GenerateProbe(ctx, *p, bug, fix, repo)
	if err != nil {
		return err
	}
	if generatePromote {
		l, err := d.Local.GetProbeLineage(ctx, probeID)
		if err != nil {
			return err
		}
		if err := d.Global.PromoteLineage(ctx, *l); err != nil {
			return err
		}
		d.Metrics.Promoted("lineage")
	}

	out := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(out, map[string]any{"probe_id": probeID, "result": res})
	}
	fmt.Fprintf(out, "Generated probe %s\n", probeID)
	printResult(out, probeID, repo, res)
	return nil
}
