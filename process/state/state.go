// Package state defines the shared, immutable workflow state and the
// delta algebra agents use to propose updates to it.
package state

// Global is the accumulated state a process carries from node to node.
// Each of the four sections has distinct merge semantics (see Apply):
// Context, Artifacts and Quality are maps merged key-by-key, recursively
// when both sides hold a map at the same key; Messages is an append-only
// audit trail.
type Global struct {
	Context   map[string]any   `json:"context"`
	Artifacts map[string]any   `json:"artifacts"`
	Quality   map[string]any   `json:"quality"`
	Messages  []map[string]any `json:"messages"`
}

// New returns an empty Global state with initialized (non-nil) sections.
func New() Global {
	return Global{
		Context:   map[string]any{},
		Artifacts: map[string]any{},
		Quality:   map[string]any{},
		Messages:  []map[string]any{},
	}
}

// WithContext returns a copy of seed merged with an initial context payload.
// Used to seed a run from the caller-supplied initial context.
func WithContext(seed map[string]any) Global {
	g := New()
	g.Context = deepMerge(g.Context, seed)
	return g
}

// Delta is the partial state an agent returns from a single execution. A nil
// field means "no change" for that section; an empty, non-nil map still
// participates in the merge (and is a no-op for mapping sections, since
// merging with {} changes nothing).
type Delta struct {
	Context   map[string]any   `json:"context,omitempty"`
	Artifacts map[string]any   `json:"artifacts,omitempty"`
	Quality   map[string]any   `json:"quality,omitempty"`
	Messages  []map[string]any `json:"messages,omitempty"`
}

// Apply folds a Delta onto prev and returns the resulting state. prev is
// never mutated; Apply is pure.
//
// Context, Artifacts and Quality are deep-merged: a key present in both
// sides recurses if both values are maps, otherwise the delta's value wins.
// Messages are appended, never merged or replaced.
func Apply(prev Global, delta Delta) Global {
	return Global{
		Context:   deepMerge(prev.Context, delta.Context),
		Artifacts: deepMerge(prev.Artifacts, delta.Artifacts),
		Quality:   deepMerge(prev.Quality, delta.Quality),
		Messages:  appendMessages(prev.Messages, delta.Messages),
	}
}

// deepMerge recursively merges b onto a. Neither input is mutated; a fresh
// map is returned. A nil b leaves a's values unchanged (copied, not shared).
func deepMerge(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, vb := range b {
		va, exists := out[k]
		if !exists {
			out[k] = vb
			continue
		}
		mapA, aIsMap := va.(map[string]any)
		mapB, bIsMap := vb.(map[string]any)
		if aIsMap && bIsMap {
			out[k] = deepMerge(mapA, mapB)
		} else {
			out[k] = vb
		}
	}
	return out
}

func appendMessages(prev []map[string]any, add []map[string]any) []map[string]any {
	if len(add) == 0 {
		return prev
	}
	out := make([]map[string]any, 0, len(prev)+len(add))
	out = append(out, prev...)
	out = append(out, add...)
	return out
}
