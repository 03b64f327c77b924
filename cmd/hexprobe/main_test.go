package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/hexprobe/internal/knowledge"
	"github.com/HendryAvila/hexprobe/internal/orchestrator"
)

// setupCLI points the CLI at a fresh data directory through a config file.
func setupCLI(t *testing.T) string {
	t.Helper()
	dataDir := t.TempDir()
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	body := "data_dir: " + dataDir + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o644))
	t.Setenv("HEXPROBE_DATA_DIR", "")
	return cfg
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	output, patternsMin, patternsAll, pruneMaxAge, lineageGlobal = "table", -1, false, -1, false
	generateBug, generateFix, generateRepo, generatePromote = "", "", "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append([]string{"--config", cfg}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, setupCLI(t), "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "hexprobe v"))
}

func TestRun_LearnsPatterns(t *testing.T) {
	cfg := setupCLI(t)
	repo := t.TempDir()

	out, err := execute(t, cfg, "run", "quick_scan", repo, "-o", "json")
	require.NoError(t, err)

	var cycle orchestrator.Cycle
	require.NoError(t, json.Unmarshal([]byte(out), &cycle))
	assert.Equal(t, "quick_scan", cycle.Probe)
	assert.Len(t, cycle.PatternIDs, 2)
	assert.NotEmpty(t, cycle.RunID)

	out, err = execute(t, cfg, "patterns", "--all", "-o", "json")
	require.NoError(t, err)
	var patterns []knowledge.Pattern
	require.NoError(t, json.Unmarshal([]byte(out), &patterns))
	assert.Len(t, patterns, 2)

	out, err = execute(t, cfg, "patterns")
	require.NoError(t, err)
	assert.Equal(t, "No patterns.\n", out)
}

func TestRun_TableOutput(t *testing.T) {
	out, err := execute(t, setupCLI(t), "run", "quick_scan", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "Repository appears empty")
	assert.Contains(t, out, "Agents:")
	assert.Contains(t, out, "Learned 2 patterns")
}

func TestRun_UnknownProbe(t *testing.T) {
	_, err := execute(t, setupCLI(t), "run", "nope")
	assert.ErrorContains(t, err, "unknown probe")
}

func TestGenerateAndLineage(t *testing.T) {
	cfg := setupCLI(t)
	out, err := execute(t, cfg, "run", "quick_scan", t.TempDir(), "-o", "json")
	require.NoError(t, err)
	var cycle orchestrator.Cycle
	require.NoError(t, json.Unmarshal([]byte(out), &cycle))

	out, err = execute(t, cfg, "generate", cycle.PatternIDs[0], "--bug", "BUG-9", "--fix", "deadbeef", "--repo", "svc", "--promote", "-o", "json")
	require.NoError(t, err)
	var gen struct {
		ProbeID string `json:"probe_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &gen))
	require.NotEmpty(t, gen.ProbeID)

	for _, scope := range [][]string{{}, {"--global"}} {
		args := append([]string{"lineage", gen.ProbeID, "-o", "json"}, scope...)
		out, err = execute(t, cfg, args...)
		require.NoError(t, err)
		var l knowledge.Lineage
		require.NoError(t, json.Unmarshal([]byte(out), &l))
		assert.Equal(t, "BUG-9", l.BugID)
		require.NotNil(t, l.FixCommit)
		assert.Equal(t, "deadbeef", *l.FixCommit)
		assert.Equal(t, "svc", l.OriginatingRepo)
	}

	_, err = execute(t, cfg, "lineage", "missing")
	assert.ErrorContains(t, err, "no local lineage")
}

func TestPrune(t *testing.T) {
	cfg := setupCLI(t)
	_, err := execute(t, cfg, "run", "quick_scan", t.TempDir())
	require.NoError(t, err)

	out, err := execute(t, cfg, "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "local   0 patterns")

	out, err = execute(t, cfg, "prune", "--max-age-days", "0", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"target": "global"`)
}

func TestStats(t *testing.T) {
	cfg := setupCLI(t)
	_, err := execute(t, cfg, "run", "quick_scan", t.TempDir())
	require.NoError(t, err)

	out, err := execute(t, cfg, "stats", "-o", "json")
	require.NoError(t, err)
	var st knowledge.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, knowledge.Stats{Patterns: 2, Lineage: 2, Runs: 1}, st)

	out, err = execute(t, cfg, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Patterns:   2 (0 deprecated)")
}

func TestInvalidConfig(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("data_dir: "+t.TempDir()+"\nglobal:\n  backend: mysql\n"), 0o644))
	_, err := execute(t, cfg, "patterns")
	assert.ErrorContains(t, err, "invalid config")
}
