package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/hexprobe/internal/orchestrator"
	"github.com/HendryAvila/hexprobe/internal/probe"
)

var runCmd = &cobra.Command{
	Use:   "run <probe> [repo]",
	Short: "Run one probe through the full cycle",
	Long: `Run a probe against a repository (default: current directory),
have the agents evaluate it, propose patches and learn the findings.

A probe whose external tool is missing or fails is shown as a single
critical finding and the command exits non-zero.

Example:
  hexprobe run quick_scan .
  hexprobe run surface_sweep ~/src/api -o json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, cleanup, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	desc, ok := d.Registry.Get(args[0])
	if !ok {
		return fmt.Errorf("unknown probe %q", args[0])
	}
	repo := "."
	if len(args) == 2 {
		repo = args[1]
	}
	if repo == "." {
		if repo, err = os.Getwd(); err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
	}

	var artifacts *probe.Artifacts
	if desc.SupportsArtifacts {
		artifacts = probe.NewArtifacts()
	}

	out := cmd.OutOrStdout()
	cycle, err := d.Orchestrator.RunFullCycle(ctx, desc, repo, artifacts)
	if err != nil {
		if !orchestrator.IsProbeFailure(err) {
			return err
		}
		res := probe.FailureResult(err)
		if jsonOutput() {
			_ = printJSON(out, res)
		} else {
			printResult(out, desc.ID, repo, res)
		}
		return fmt.Errorf("probe %s failed", desc.ID)
	}

	if jsonOutput() {
		return printJSON(out, cycle)
	}
	printCycle(out, cycle)
	return nil
}
