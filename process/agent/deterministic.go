package agent

import (
	"context"
	"fmt"

	"github.com/dmoreira/graphflow/process/state"
	"github.com/dmoreira/graphflow/process/tools"
)

// DeterministicAgent looks up a named pure function in the tool registry
// and returns its delta verbatim, plus the standard audit entry. The
// loader rejects unknown function names before construction, so the
// lookup failure here is a second line, not the primary validation path.
type DeterministicAgent struct {
	Name     string
	Function string
	registry *tools.Registry
}

// NewDeterministicAgent builds a DeterministicAgent bound to a function
// name already confirmed present in registry by the loader.
func NewDeterministicAgent(name, function string, registry *tools.Registry) *DeterministicAgent {
	return &DeterministicAgent{Name: name, Function: function, registry: registry}
}

func (a *DeterministicAgent) Execute(ctx context.Context, s state.Global) (state.Delta, error) {
	fn, ok := a.registry.Function(a.Function)
	if !ok {
		return state.Delta{}, fmt.Errorf("deterministic agent %q: unknown function %q", a.Name, a.Function)
	}

	delta, err := fn(ctx, s)
	if err != nil {
		return state.Delta{
			Quality: map[string]any{"error": fmt.Sprintf("deterministic: %v", err)},
			Messages: []map[string]any{auditMessage(a.Name, "deterministic", map[string]any{
				"status": "error",
				"detail": err.Error(),
			})},
		}, nil
	}

	delta.Messages = append(append([]map[string]any{}, delta.Messages...), auditMessage(a.Name, "deterministic", nil))
	return delta, nil
}
