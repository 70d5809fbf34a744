// Package agent implements the six closed agent kinds a process graph can
// route through: llm, deterministic, reflection, tool_using, supervisor
// and utcp_agent. Every kind shares one operation, Execute, and talks to
// the outside world only through the model-client and tool-registry
// collaborators it is constructed with.
package agent

import (
	"context"

	"github.com/dmoreira/graphflow/process/state"
)

// Agent executes once per visit to its node and proposes a state delta.
// It must not mutate the input state, and it must never let an internal
// fault escape as a returned error that the caller treats as fatal -- the
// runtime converts any returned error into a quality.error delta itself,
// but well-behaved agents fold faults into their own delta already.
type Agent interface {
	Execute(ctx context.Context, s state.Global) (state.Delta, error)
}

// auditMessage builds the standard per-agent audit entry appended to
// every delta's Messages: {"agent": name, "kind": kind, ...}.
func auditMessage(name, kind string, extra map[string]any) map[string]any {
	m := map[string]any{"agent": name, "kind": kind}
	for k, v := range extra {
		m[k] = v
	}
	return m
}
