package dsl

import (
	"fmt"
	"strings"

	"github.com/dmoreira/graphflow/process/expr"
)

// ToolRegistry is the subset of the deterministic/tool_using tool registry
// the loader needs to validate references against. The concrete registry
// lives in process/tools; this interface keeps the dsl package free of
// that dependency.
type ToolRegistry interface {
	Has(name string) bool
}

// ValidationError is a single structural violation, carrying enough
// location information to point a human at the offending field.
type ValidationError struct {
	Location string
	Message  string
}

func (v ValidationError) String() string {
	return fmt.Sprintf("%s: %s", v.Location, v.Message)
}

// ValidationErrors is the aggregate error returned by Validate. It always
// carries at least one ValidationError; every violation found in a single
// pass is collected, not just the first.
type ValidationErrors struct {
	Errors []ValidationError
}

func (e *ValidationErrors) Error() string {
	parts := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		parts[i] = v.String()
	}
	return fmt.Sprintf("dsl validation failed (%d issue(s)):\n  %s", len(e.Errors), strings.Join(parts, "\n  "))
}

// Validate runs the structural checks over a parsed Document and returns
// a *ValidationErrors aggregating every violation found, or nil if the
// document is well-formed. No agent is ever instantiated from an invalid
// document.
func Validate(doc *Document, registry ToolRegistry) error {
	var errs []ValidationError
	add := func(loc, format string, args ...any) {
		errs = append(errs, ValidationError{Location: loc, Message: fmt.Sprintf(format, args...)})
	}

	// Rule 1: top-level keys, and edges required unless a supervisor exists.
	if doc.Process.Name == "" && doc.Process.Start == "" {
		add("process", "top-level 'process' block is required")
	}
	if len(doc.Agents) == 0 {
		add("agents", "top-level 'agents' block is required and must be non-empty")
	}
	hasSupervisor := false
	for _, a := range doc.Agents {
		if a.Kind == KindSupervisor {
			hasSupervisor = true
			break
		}
	}
	if len(doc.Edges) == 0 && !hasSupervisor {
		add("edges", "'edges' is required unless at least one supervisor agent is defined")
	}

	// Rule 2: process.start names a defined agent.
	if doc.Process.Start != "" {
		if _, ok := doc.Agents[doc.Process.Start]; !ok {
			add("process.start", "references undefined agent %q", doc.Process.Start)
		}
	}

	// Rule 3: edge endpoints.
	for i, e := range doc.Edges {
		loc := fmt.Sprintf("edges[%d]", i)
		if _, ok := doc.Agents[e.From]; !ok {
			add(loc+".from", "references undefined agent %q", e.From)
		}
		if e.To != TerminalNode {
			if _, ok := doc.Agents[e.To]; !ok {
				add(loc+".to", "references undefined agent %q", e.To)
			}
		}
	}

	// Rule 4: kind-specific required fields.
	for name, a := range doc.Agents {
		loc := fmt.Sprintf("agents.%s", name)
		if !validKinds[a.Kind] {
			add(loc+".kind", "unknown kind %q", a.Kind)
			continue
		}
		validateKindFields(loc, name, a, add)
	}

	// Rule 5: deterministic.function must resolve.
	for name, a := range doc.Agents {
		if a.Kind != KindDeterministic || a.Function == "" {
			continue
		}
		if registry == nil || !registry.Has(a.Function) {
			add(fmt.Sprintf("agents.%s.function", name), "unknown tool registry function %q", a.Function)
		}
	}

	// Rule 6: tool_using.tools must resolve.
	for name, a := range doc.Agents {
		if a.Kind != KindToolUsing {
			continue
		}
		for i, tn := range a.Tools {
			if registry == nil || !registry.Has(tn) {
				add(fmt.Sprintf("agents.%s.tools[%d]", name, i), "unknown tool registry function %q", tn)
			}
		}
	}

	// Rule 7: utcp_agent.tools must name a declared top-level manifest.
	for name, a := range doc.Agents {
		if a.Kind != KindUTCPAgent {
			continue
		}
		for i, tn := range a.Tools {
			if _, ok := doc.Tools[tn]; !ok {
				add(fmt.Sprintf("agents.%s.tools[%d]", name, i), "references undeclared tool manifest %q", tn)
			}
		}
	}

	// Rule 8: supervisor.available_agents must name defined agents.
	for name, a := range doc.Agents {
		if a.Kind != KindSupervisor {
			continue
		}
		for i, an := range a.AvailableAgents {
			if _, ok := doc.Agents[an]; !ok {
				add(fmt.Sprintf("agents.%s.available_agents[%d]", name, i), "references undefined agent %q", an)
			}
		}
	}

	// Rule 9: every condition (edges + done_condition) must parse.
	for i, e := range doc.Edges {
		if e.Condition == "" {
			continue
		}
		if _, err := expr.Parse(e.Condition); err != nil {
			add(fmt.Sprintf("edges[%d].condition", i), "invalid expression: %v", err)
		}
	}
	if doc.Process.DoneCondition != "" {
		if _, err := expr.Parse(doc.Process.DoneCondition); err != nil {
			add("process.done_condition", "invalid expression: %v", err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationErrors{Errors: errs}
}

func validateKindFields(loc, name string, a AgentDef, add func(loc, format string, args ...any)) {
	switch a.Kind {
	case KindLLM:
		if a.ModelName == "" {
			add(loc+".model_name", "required for kind %q", a.Kind)
		}
		if a.PromptTemplate == "" {
			add(loc+".prompt_template", "required for kind %q", a.Kind)
		}
		if a.OutputKey == "" {
			add(loc+".output_key", "required for kind %q", a.Kind)
		}
	case KindDeterministic:
		if a.Function == "" {
			add(loc+".function", "required for kind %q", a.Kind)
		}
	case KindReflection:
		if a.ModelName == "" && a.Rule == "" {
			add(loc+".model_name", "required for kind %q unless 'rule' is set", a.Kind)
		}
		if a.ModelName != "" && a.PromptTemplate == "" {
			add(loc+".prompt_template", "required for kind %q when model_name is set", a.Kind)
		}
	case KindToolUsing:
		if a.ModelName == "" {
			add(loc+".model_name", "required for kind %q", a.Kind)
		}
		if a.PromptTemplate == "" {
			add(loc+".prompt_template", "required for kind %q", a.Kind)
		}
		if a.OutputKey == "" {
			add(loc+".output_key", "required for kind %q", a.Kind)
		}
	case KindSupervisor:
		if a.ModelName == "" {
			add(loc+".model_name", "required for kind %q", a.Kind)
		}
		if a.PromptTemplate == "" {
			add(loc+".prompt_template", "required for kind %q", a.Kind)
		}
		if len(a.AvailableAgents) == 0 {
			add(loc+".available_agents", "required for kind %q", a.Kind)
		}
	case KindUTCPAgent:
		if a.ModelName == "" {
			add(loc+".model_name", "required for kind %q", a.Kind)
		}
		if a.PromptTemplate == "" {
			add(loc+".prompt_template", "required for kind %q", a.Kind)
		}
		if a.OutputKey == "" {
			add(loc+".output_key", "required for kind %q", a.Kind)
		}
		if len(a.Tools) == 0 {
			add(loc+".tools", "required for kind %q", a.Kind)
		}
	}
	_ = name
}
