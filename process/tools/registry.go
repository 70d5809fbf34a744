// Package tools provides the in-process function registry that backs
// deterministic agents and the tool_using kind's ReAct loop.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmoreira/graphflow/process/state"
)

// Func is a deterministic tool: given the current state, it returns a
// delta. Used directly by the deterministic agent kind.
type Func func(ctx context.Context, s state.Global) (state.Delta, error)

// ActFunc is a tool invocable from a tool_using ReAct loop: given
// arguments parsed from the model's tool call, it returns a result the
// loop feeds back as an observation.
type ActFunc func(ctx context.Context, args map[string]any) (any, error)

// Tool bundles a description (surfaced to the model) with its
// implementation. Parameters is an optional JSON Schema for the tool's
// arguments; a nil Parameters falls back to an open-ended object schema
// so a tool author isn't forced to describe trivial argument shapes.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Act         ActFunc
}

// Registry is a name-keyed collection of deterministic functions and
// ReAct tools. It is supplied once at engine construction and never
// mutated by the core; registering after agents have been built has no
// effect on already-loaded processes.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]Func
	acts      map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		functions: make(map[string]Func),
		acts:      make(map[string]Tool),
	}
}

// RegisterFunction adds a deterministic-agent function under name.
func (r *Registry) RegisterFunction(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[name] = fn
}

// RegisterTool adds a ReAct-invocable tool under name.
func (r *Registry) RegisterTool(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acts[t.Name] = t
}

// Has reports whether name resolves to either a deterministic function
// or a ReAct tool. Satisfies process/dsl.ToolRegistry.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.functions[name]; ok {
		return true
	}
	_, ok := r.acts[name]
	return ok
}

// Function looks up a deterministic function by name.
func (r *Registry) Function(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.functions[name]
	return fn, ok
}

// Tool looks up a ReAct tool by name.
func (r *Registry) Tool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.acts[name]
	return t, ok
}

// Invoke executes a deterministic function by name, wrapping an unknown
// name as an error rather than panicking. The loader is expected to have
// already rejected unknown names at validation time; this is a second,
// defensive line.
func (r *Registry) Invoke(ctx context.Context, name string, s state.Global) (state.Delta, error) {
	fn, ok := r.Function(name)
	if !ok {
		return state.Delta{}, fmt.Errorf("tools: unknown function %q", name)
	}
	return fn(ctx, s)
}

// InvokeTool executes a ReAct tool by name with the given arguments.
func (r *Registry) InvokeTool(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.Tool(name)
	if !ok {
		return nil, fmt.Errorf("tools: unknown tool %q", name)
	}
	return t.Act(ctx, args)
}
