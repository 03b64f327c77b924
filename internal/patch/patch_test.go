package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/HendryAvila/hexprobe/internal/probe"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		category string
		want     string
	}{
		{"lint", "# Fixed lint issues according to project style guide"},
		{"golint", "# Fixed lint issues according to project style guide"},
		{"type", "# Added type annotations to match static types"},
		{"boundary", "# Validate input with safe guards"},
		{"perf", "# Manual review required"},
		{"", "# Manual review required"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Lookup(tt.category).CodeSnippet, "category %q", tt.category)
	}
}

func TestSynthesizeAll(t *testing.T) {
	patches := SynthesizeAll([]probe.Finding{
		{Category: "lint", Message: "Lint issues detected"},
		{Category: "hygiene", Message: "Open TODO/FIXME markers detected (3)"},
	})
	if assert.Len(t, patches, 2) {
		assert.Equal(t, "Lint issues detected", patches[0].Description)
		assert.Equal(t, "hygiene", patches[1].Category)
		assert.NotEqual(t, patches[0].ID, patches[1].ID)
	}
	assert.Empty(t, SynthesizeAll(nil))
}
