// Package conflict finds patterns that collide on (category, trigger
// signature) and picks a deterministic winner for each collision.
package conflict

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/HendryAvila/hexprobe/internal/knowledge"
)

// Entry is the conflict-relevant view of a pattern or probe.
type Entry struct {
	ID                 string           `json:"id"`
	Category           string           `json:"category"`
	TriggerSignature   string           `json:"trigger_signature"`
	Status             knowledge.Status `json:"status"`
	TriggerCount       int              `json:"trigger_count"`
	FalsePositiveCount int              `json:"false_positive_count"`
	CreatedAt          time.Time        `json:"created_at"`
	Redirect           string           `json:"redirect,omitempty"`
}

// Score is trigger_count minus false_positive_count.
func (e *Entry) Score() int {
	return e.TriggerCount - e.FalsePositiveCount
}

// Pair is a detected collision. First is the earliest entry holding the
// key; Second is a later one.
type Pair struct {
	First  *Entry `json:"first"`
	Second *Entry `json:"second"`
}

type key struct {
	category  string
	signature string
}

// Detect groups entries by (Category, TriggerSignature) and returns a pair
// (first, current) for every entry after the first sharing a key, in input
// order. Deprecated entries are skipped entirely.
func Detect(entries []*Entry) []Pair {
	var pairs []Pair
	seen := make(map[key]*Entry)
	for _, e := range entries {
		if e == nil || e.Status == knowledge.StatusDeprecated {
			continue
		}
		k := key{e.Category, e.TriggerSignature}
		if first, ok := seen[k]; ok {
			pairs = append(pairs, Pair{First: first, Second: e})
			continue
		}
		seen[k] = e
	}
	return pairs
}

// Resolve returns the winner of a and b: core status first, then the higher
// score, then the older CreatedAt. A full tie goes to the smaller ID, so
// the result does not depend on argument order.
func Resolve(a, b *Entry) *Entry {
	if aCore, bCore := a.Status == knowledge.StatusCore, b.Status == knowledge.StatusCore; aCore != bCore {
		if aCore {
			return a
		}
		return b
	}
	if as, bs := a.Score(), b.Score(); as != bs {
		if as > bs {
			return a
		}
		return b
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if a.CreatedAt.Before(b.CreatedAt) {
			return a
		}
		return b
	}
	if b.ID < a.ID {
		return b
	}
	return a
}

// Deprecate marks loser deprecated and points it at winner. The state is
// terminal.
func Deprecate(loser, winner *Entry) {
	loser.Status = knowledge.StatusDeprecated
	loser.Redirect = winner.ID
}

// Resolution records one resolved collision.
type Resolution struct {
	Winner *Entry `json:"winner"`
	Loser  *Entry `json:"loser"`
}

// ResolveAll resolves every collision among entries until no live
// duplicates remain, deprecating each loser in place. A loser of one pair
// is never considered again.
func ResolveAll(entries []*Entry) []Resolution {
	var out []Resolution
	for {
		pairs := Detect(entries)
		if len(pairs) == 0 {
			return out
		}
		p := pairs[0]
		winner := Resolve(p.First, p.Second)
		loser := p.Second
		if winner == p.Second {
			loser = p.First
		}
		Deprecate(loser, winner)
		out = append(out, Resolution{Winner: winner, Loser: loser})
	}
}

var (
	digitsRe = regexp.MustCompile(`[0-9]+`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Signature reduces a description to its trigger signature: lowercased,
// digit runs masked and whitespace collapsed before hashing.
func Signature(description string) string {
	s := strings.ToLower(strings.TrimSpace(description))
	s = digitsRe.ReplaceAllString(s, "#")
	s = spaceRe.ReplaceAllString(s, " ")
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:8])
}

// FromPatterns builds entries for stored patterns, applying their status
// rows. Patterns without a status row are active.
func FromPatterns(patterns []knowledge.Pattern, statuses map[string]knowledge.StatusRecord) []*Entry {
	entries := make([]*Entry, 0, len(patterns))
	for _, p := range patterns {
		e := &Entry{
			ID:                 p.ID,
			Category:           p.Category,
			TriggerSignature:   Signature(p.Description),
			Status:             knowledge.StatusActive,
			TriggerCount:       p.TriggerCount,
			FalsePositiveCount: p.FalsePositiveCount,
			CreatedAt:          p.CreatedAt,
		}
		if rec, ok := statuses[p.ID]; ok {
			e.Status = rec.Status
			e.Redirect = rec.RedirectTo
		}
		entries = append(entries, e)
	}
	return entries
}
