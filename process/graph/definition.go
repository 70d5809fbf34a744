// Package graph compiles a validated process definition into a runnable
// graph and drives it end to end: node selection, agent execution, state
// merge, edge routing, termination and loop safety. Exactly one node is
// active at any time; routing is declaration-order, first match wins.
package graph

import (
	"github.com/dmoreira/graphflow/process/agent"
	"github.com/dmoreira/graphflow/process/dsl"
	"github.com/dmoreira/graphflow/process/expr"
)

// CompiledEdge is one from/to/condition transition, with its condition
// already parsed so routing never reparses an expression mid-run.
type CompiledEdge struct {
	From      string
	To        string
	Condition *expr.Expr // nil is the unconditional fallback for From
}

// Definition is a process definition compiled into memory: immutable
// once built, reused across every run and every step of a run.
type Definition struct {
	Name          string
	Start         string
	DoneCondition *expr.Expr // nil if the process declares none
	Agents        map[string]agent.Agent
	Kinds         map[string]string // node name -> dsl kind, for logs and metrics labels
	Edges         []CompiledEdge
}

// kindOf returns the node's declared kind, or "custom" for definitions
// assembled by hand without Compile.
func (d *Definition) kindOf(node string) string {
	if k, ok := d.Kinds[node]; ok {
		return k
	}
	return "custom"
}

// edgesFrom returns, in declaration order, every compiled edge whose
// From matches node.
func (d *Definition) edgesFrom(node string) []CompiledEdge {
	var out []CompiledEdge
	for _, e := range d.Edges {
		if e.From == node {
			out = append(out, e)
		}
	}
	return out
}

// TerminalNode re-exports the loader's reserved end-of-run sentinel so
// callers building a Definition by hand never need to import process/dsl
// just for this one constant.
const TerminalNode = dsl.TerminalNode
