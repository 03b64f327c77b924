package probe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const quickScanFileLimit = 500

// textExtensions are scanned for TODO/FIXME markers.
var textExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true,
	".md": true, ".yaml": true, ".yml": true,
}

// QuickScan is a lightweight repository audit: README presence, file type
// inventory and TODO/FIXME density. It needs no external tools.
type QuickScan struct{}

// Run scans at most 500 files under repo, skipping .git.
func (QuickScan) Run(ctx context.Context, repo string, _ *Artifacts) (any, error) {
	info, err := os.Stat(repo)
	if err != nil || !info.IsDir() {
		return NewResult(Finding{Category: "repo", Severity: Critical, Message: "Repository path does not exist", Location: repo}), nil
	}

	var findings []Finding
	if _, err := os.Stat(filepath.Join(repo, "README.md")); err != nil {
		findings = append(findings, Finding{Category: "structure", Severity: Low, Message: "Missing README.md", Location: repo})
	}

	counts := make(map[string]int)
	todoHits := 0
	scanned := 0
	errLimit := errors.New("limit reached")

	walkErr := filepath.WalkDir(repo, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		scanned++
		if scanned > quickScanFileLimit {
			return errLimit
		}
		ext := filepath.Ext(path)
		if ext == "" {
			ext = "(no ext)"
		}
		counts[ext]++
		if textExtensions[ext] {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			content := string(data)
			todoHits += strings.Count(content, "TODO") + strings.Count(content, "FIXME")
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errLimit) {
		return nil, walkErr
	}

	switch {
	case todoHits >= 10:
		findings = append(findings, Finding{Category: "hygiene", Severity: Medium, Message: fmt.Sprintf("High TODO/FIXME volume detected (%d)", todoHits)})
	case todoHits >= 1:
		findings = append(findings, Finding{Category: "hygiene", Severity: Low, Message: fmt.Sprintf("Open TODO/FIXME markers detected (%d)", todoHits)})
	}

	if len(counts) == 0 {
		findings = append(findings, Finding{Category: "structure", Severity: High, Message: "Repository appears empty", Location: repo})
	} else {
		findings = append(findings, Finding{Category: "inventory", Severity: Info, Message: "Top file types: " + topExtensions(counts, 5)})
	}

	return NewResult(findings...), nil
}

// topExtensions renders the n most common extensions, ties broken by name.
func topExtensions(counts map[string]int, n int) string {
	exts := make([]string, 0, len(counts))
	for ext := range counts {
		exts = append(exts, ext)
	}
	sort.Slice(exts, func(i, j int) bool {
		if counts[exts[i]] != counts[exts[j]] {
			return counts[exts[i]] > counts[exts[j]]
		}
		return exts[i] < exts[j]
	})
	if len(exts) > n {
		exts = exts[:n]
	}
	parts := make([]string, len(exts))
	for i, ext := range exts {
		parts[i] = fmt.Sprintf("%s: %d", ext, counts[ext])
	}
	return strings.Join(parts, ", ")
}
