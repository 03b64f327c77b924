package probe

import (
	"fmt"
	"time"
)

// Descriptor is a registry entry: identity, human-facing metadata and the
// probe itself.
type Descriptor struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	SupportsArtifacts bool   `json:"supports_artifacts"`
	Probe             Probe  `json:"-"`
}

// Registry is an ordered collection of probes addressable by ID.
type Registry struct {
	entries []Descriptor
	byID    map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]int)}
}

// Register adds d. IDs must be unique.
func (r *Registry) Register(d Descriptor) error {
	if d.ID == "" {
		return fmt.Errorf("probe: register: empty id")
	}
	if d.Probe == nil {
		return fmt.Errorf("probe: register %q: nil probe", d.ID)
	}
	if _, exists := r.byID[d.ID]; exists {
		return fmt.Errorf("probe: register %q: already registered", d.ID)
	}
	r.byID[d.ID] = len(r.entries)
	r.entries = append(r.entries, d)
	return nil
}

// Get returns the descriptor registered under id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	return r.entries[i], true
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.entries))
	copy(out, r.entries)
	return out
}

// Options configures the built-in probes.
type Options struct {
	// Timeout bounds each external command. Zero means no limit.
	Timeout time.Duration
	// Runner executes external commands; nil uses ExecRunner.
	Runner Runner
	// External maps probe IDs to commands whose stdout is a JSON result.
	External map[string]ExternalSpec
}

// DefaultRegistry registers the built-in probes followed by any external
// command probes from opts, sorted by ID.
func DefaultRegistry(opts Options) (*Registry, error) {
	r := NewRegistry()
	builtins := []Descriptor{
		{
			ID:          "quick_scan",
			Name:        "Quick Inventory",
			Description: "Fast inventory and risk scan for repo structure and TODO density.",
			Probe:       QuickScan{},
		},
		{
			ID:          "surface_sweep",
			Name:        "Surface Sweep",
			Description: "Static checks for linting, vetting, and unvalidated stdin reads (golangci-lint and go vet required).",
			Probe:       &SurfaceSweep{Runner: opts.Runner, Timeout: opts.Timeout},
		},
		{
			ID:                "fuzz",
			Name:              "Fuzz",
			Description:       "Runs ./fuzz/run.sh and reports crash files as reproducible evidence.",
			SupportsArtifacts: true,
			Probe:             &Fuzz{Runner: opts.Runner, Timeout: orDefault(opts.Timeout, 30*time.Minute)},
		},
		{
			ID:                "perf",
			Name:              "Performance Regression",
			Description:       "Runs a k6 load test and compares p95/p99/error rate with a baseline.",
			SupportsArtifacts: true,
			Probe:             &Perf{Runner: opts.Runner, Timeout: opts.Timeout},
		},
		{
			ID:          "chaos",
			Name:        "Chaos",
			Description: "Runs service kill, latency and CPU pressure scenarios.",
			Probe:       &Chaos{Runner: opts.Runner, Timeout: orDefault(opts.Timeout, 5*time.Minute)},
		},
	}
	for _, d := range builtins {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	for _, id := range sortedKeys(opts.External) {
		spec := opts.External[id]
		desc := spec.Description
		if desc == "" {
			desc = "External command probe."
		}
		if err := r.Register(Descriptor{
			ID:          id,
			Name:        id,
			Description: desc,
			Probe:       &External{ID: id, Command: spec.Command, Runner: opts.Runner, Timeout: opts.Timeout},
		}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
