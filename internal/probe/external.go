package probe

import (
	"context"
	"time"
)

// ExternalSpec describes a command probe configured by the user.
type ExternalSpec struct {
	Command     []string `mapstructure:"command" yaml:"command"`
	Description string   `mapstructure:"description" yaml:"description,omitempty"`
}

// External runs a user-supplied command in the repository and returns its
// stdout untouched. The command is expected to print a JSON object with
// findings/severity/repro/rationale keys; NormalizeResult does the rest.
type External struct {
	ID      string
	Command []string
	Runner  Runner
	Timeout time.Duration
}

// Run executes the command. Any non-zero exit is an ExecutionError.
func (e *External) Run(ctx context.Context, repo string, _ *Artifacts) (any, error) {
	out, code, err := run(ctx, e.Runner, e.ID, repo, e.Timeout, e.Command)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, &ExecutionError{Probe: e.ID, Command: e.Command, ExitCode: code, Output: string(out)}
	}
	return out, nil
}
