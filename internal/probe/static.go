package probe

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultLintCommand and DefaultTypeCheckCommand are used when SurfaceSweep
// leaves the corresponding field empty.
var (
	DefaultLintCommand      = []string{"golangci-lint", "run", "./..."}
	DefaultTypeCheckCommand = []string{"go", "vet", "./..."}
)

// boundaryMarkers flag code that reads raw process input.
var boundaryMarkers = []string{"fmt.Scan", "bufio.NewReader(os.Stdin)", "bufio.NewScanner(os.Stdin)"}

// SurfaceSweep runs a linter and a type checker and looks for unvalidated
// stdin reads in Go sources.
type SurfaceSweep struct {
	LintCommand      []string
	TypeCheckCommand []string
	Runner           Runner
	Timeout          time.Duration
}

// Run executes both commands in repo. A non-zero exit becomes a finding
// carrying the tool's stdout; failing to start a tool is an ExecutionError.
func (s *SurfaceSweep) Run(ctx context.Context, repo string, _ *Artifacts) (any, error) {
	lint := s.LintCommand
	if len(lint) == 0 {
		lint = DefaultLintCommand
	}
	vet := s.TypeCheckCommand
	if len(vet) == 0 {
		vet = DefaultTypeCheckCommand
	}

	var findings []Finding

	out, code, err := run(ctx, s.Runner, "surface_sweep", repo, s.Timeout, lint)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		findings = append(findings, Finding{Category: "lint", Severity: Medium, Message: string(out)})
	}

	out, code, err = run(ctx, s.Runner, "surface_sweep", repo, s.Timeout, vet)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		findings = append(findings, Finding{Category: "type", Severity: High, Message: string(out)})
	}

	_ = filepath.WalkDir(repo, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		content := string(data)
		for _, marker := range boundaryMarkers {
			if strings.Contains(content, marker) {
				findings = append(findings, Finding{Category: "boundary", Severity: High, Message: "Unvalidated input", Location: path})
				break
			}
		}
		return nil
	})

	return NewResult(findings...), nil
}
