// Package probe defines the probe contract, the canonical result envelope and
// the built-in probes HexProbe can run against a repository.
//
// Probes are thin: they shell out to external tools or walk the filesystem
// and report findings. Everything they return goes through NormalizeResult
// before the rest of the pipeline sees it.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Probe runs against a repository path. The returned value may be any shape
// NormalizeResult understands.
type Probe interface {
	Run(ctx context.Context, repo string, artifacts *Artifacts) (any, error)
}

// Func adapts a plain function to the Probe interface.
type Func func(ctx context.Context, repo string, artifacts *Artifacts) (any, error)

// Run calls f.
func (f Func) Run(ctx context.Context, repo string, artifacts *Artifacts) (any, error) {
	return f(ctx, repo, artifacts)
}

// Artifacts is a keyed bag shared between a caller and the probes it runs
// (crash files, performance baselines). A nil *Artifacts is empty.
type Artifacts struct {
	mu     sync.Mutex
	values map[string]any
}

// NewArtifacts creates an empty artifact bag.
func NewArtifacts() *Artifacts {
	return &Artifacts{values: make(map[string]any)}
}

// Put stores v under key.
func (a *Artifacts) Put(key string, v any) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.values == nil {
		a.values = make(map[string]any)
	}
	a.values[key] = v
}

// Get returns the value stored under key.
func (a *Artifacts) Get(key string) (any, bool) {
	if a == nil {
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.values[key]
	return v, ok
}

// ExecutionError reports an external tool that could not be started, exited
// non-zero where that is fatal, or timed out.
type ExecutionError struct {
	Probe    string
	Command  []string
	ExitCode int
	Output   string
	Err      error
}

func (e *ExecutionError) Error() string {
	cmd := strings.Join(e.Command, " ")
	if e.Err != nil {
		return fmt.Sprintf("probe %s: %s: %v", e.Probe, cmd, e.Err)
	}
	return fmt.Sprintf("probe %s: %s exited with code %d", e.Probe, cmd, e.ExitCode)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Runner executes a command in dir and returns its stdout and exit code.
// A non-zero exit is not an error; failing to start or a timeout is.
type Runner func(ctx context.Context, dir string, command []string) (stdout []byte, exitCode int, err error)

// ExecRunner is the default Runner backed by os/exec.
func ExecRunner(ctx context.Context, dir string, command []string) ([]byte, int, error) {
	if len(command) == 0 {
		return nil, -1, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = dir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	err := cmd.Run()
	if ctx.Err() != nil {
		return stdout.Bytes(), -1, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return stdout.Bytes(), -1, err
	}
	return stdout.Bytes(), 0, nil
}

// run wraps a Runner call with a timeout and converts start/timeout failures
// into an ExecutionError.
func run(ctx context.Context, runner Runner, name, dir string, timeout time.Duration, command []string) ([]byte, int, error) {
	if runner == nil {
		runner = ExecRunner
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, code, err := runner(ctx, dir, command)
	if err != nil {
		return out, code, &ExecutionError{Probe: name, Command: command, ExitCode: code, Output: string(out), Err: err}
	}
	return out, code, nil
}
