// Package severity escalates and de-escalates pattern severity from its
// trigger and false-positive counters.
package severity

import (
	"errors"
	"fmt"

	"github.com/HendryAvila/hexprobe/internal/knowledge"
	"github.com/HendryAvila/hexprobe/internal/probe"
)

// ErrUnadjustable is returned for severities outside the adjustable ladder.
var ErrUnadjustable = errors.New("severity not adjustable")

// ladder is the adjustable range, lowest first. Info is never an input or
// an output.
var ladder = []probe.Severity{probe.Low, probe.Medium, probe.High, probe.Critical}

const (
	escalateTriggers      = 5
	escalateMaxFalsePos   = 1
	deescalateMinFalsePos = 3
)

// Adjust returns the severity after applying, in order: one step up when
// triggers >= 5 and falsePositives <= 1, then one step down when
// falsePositives >= 3. The result is clamped to [low, critical].
func Adjust(sev probe.Severity, triggers, falsePositives int) (probe.Severity, error) {
	idx := -1
	for i, s := range ladder {
		if s == sev {
			idx = i
			break
		}
	}
	if idx < 0 {
		return sev, fmt.Errorf("severity: adjust %q: %w", sev, ErrUnadjustable)
	}

	if triggers >= escalateTriggers && falsePositives <= escalateMaxFalsePos {
		idx = min(idx+1, len(ladder)-1)
	}
	if falsePositives >= deescalateMinFalsePos {
		idx = max(idx-1, 0)
	}
	return ladder[idx], nil
}

// AdjustPattern rewrites p.Severity in place. Persisting it is up to the
// caller. On error p is unchanged.
func AdjustPattern(p *knowledge.Pattern) error {
	next, err := Adjust(p.Severity, p.TriggerCount, p.FalsePositiveCount)
	if err != nil {
		return fmt.Errorf("severity: pattern %s: %w", p.ID, err)
	}
	p.Severity = next
	return nil
}
