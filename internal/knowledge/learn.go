package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/HendryAvila/hexprobe/internal/probe"
)

// IDMode selects how Learn derives pattern ids.
type IDMode string

const (
	// IDContent hashes category and description, so repeated findings
	// converge on one pattern.
	IDContent IDMode = "content"
	// IDRandom gives every learned finding a fresh id.
	IDRandom IDMode = "random"
)

var digitsRe = regexp.MustCompile(`[0-9]+`)

// PatternID derives the content-hash id for a finding. Case, whitespace and
// digit runs do not change the id.
func PatternID(category, description string) string {
	return "pat_" + hashNormalized(category + "\x00" + description)[:16]
}

// NewPatternID returns the id for a learned finding under mode.
func NewPatternID(mode IDMode, category, description string) string {
	if mode == IDRandom {
		return "pat_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}
	return PatternID(category, description)
}

// Learn records one occurrence of a pattern. It follows deprecation
// redirects from id, upserts the surviving pattern and returns it as stored.
func (s *Store) Learn(ctx context.Context, id, category, description string, severity probe.Severity) (*Pattern, error) {
	target, err := s.ResolveRedirect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("knowledge: learn %s: %w", id, err)
	}
	if err := s.UpsertPattern(ctx, target, category, description, severity); err != nil {
		return nil, err
	}
	return s.GetPattern(ctx, target)
}

// LearnFinding learns a finding under its content-hash id.
func (s *Store) LearnFinding(ctx context.Context, f probe.Finding) (*Pattern, error) {
	return s.Learn(ctx, PatternID(f.Category, f.Message), f.Category, f.Message, f.Severity)
}

func hashNormalized(content string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	normalized = digitsRe.ReplaceAllString(normalized, "#")
	h := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(h[:])
}
