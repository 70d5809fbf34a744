package graph

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dmoreira/graphflow/llmclient"
	"github.com/dmoreira/graphflow/process/agent"
	"github.com/dmoreira/graphflow/process/dsl"
	"github.com/dmoreira/graphflow/process/expr"
	"github.com/dmoreira/graphflow/process/tools"
	"github.com/dmoreira/graphflow/process/utcp"
)

// Deps carries the external collaborators agent instantiation needs. The
// provider and tool registry are supplied by the caller and never mutated
// here; the utcp manifest registry is built from the document itself.
type Deps struct {
	Provider llmclient.Provider
	Tools    *tools.Registry
	Logger   *zap.Logger

	// MaxReactSteps bounds the tool_using/utcp_agent loop when an agent
	// block doesn't set its own max_steps. Zero means the agent default.
	MaxReactSteps int
	// UTCPTimeout is the outbound HTTP timeout for utcp manifests.
	UTCPTimeout time.Duration

	// LLMMaxRetries overrides the llm kind's invocation attempt count
	// (including the first call, so 1 means no retry) when positive;
	// LLMRetryMinWait/LLMRetryMaxWait adjust its backoff window.
	LLMMaxRetries   int
	LLMRetryMinWait time.Duration
	LLMRetryMaxWait time.Duration
}

// Compile turns a loaded, validated document into an immutable Definition:
// conditions parsed once, one agent instance per node, ready for any number
// of runs. The document must already have passed dsl.Validate; Compile
// still reports (rather than panics on) anything that slips through.
func Compile(doc *dsl.Document, deps Deps) (*Definition, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	def := &Definition{
		Name:   doc.Process.Name,
		Start:  doc.Process.Start,
		Agents: make(map[string]agent.Agent, len(doc.Agents)),
		Kinds:  make(map[string]string, len(doc.Agents)),
	}

	if doc.Process.DoneCondition != "" {
		e, err := expr.Parse(doc.Process.DoneCondition)
		if err != nil {
			return nil, fmt.Errorf("compile done_condition: %w", err)
		}
		def.DoneCondition = e
	}

	for i, e := range doc.Edges {
		ce := CompiledEdge{From: e.From, To: e.To}
		if e.Condition != "" {
			parsed, err := expr.Parse(e.Condition)
			if err != nil {
				return nil, fmt.Errorf("compile edges[%d].condition: %w", i, err)
			}
			ce.Condition = parsed
		}
		def.Edges = append(def.Edges, ce)
	}

	var manifests *utcp.Registry
	if len(doc.Tools) > 0 {
		var err error
		manifests, err = utcp.NewRegistry(doc.Tools, deps.UTCPTimeout)
		if err != nil {
			return nil, err
		}
	}

	for name, a := range doc.Agents {
		built, err := buildAgent(name, a, deps, manifests, logger)
		if err != nil {
			return nil, err
		}
		def.Agents[name] = built
		def.Kinds[name] = string(a.Kind)
	}

	return def, nil
}

func buildAgent(name string, a dsl.AgentDef, deps Deps, manifests *utcp.Registry, logger *zap.Logger) (agent.Agent, error) {
	maxSteps := a.MaxSteps
	if maxSteps == 0 {
		maxSteps = deps.MaxReactSteps
	}

	switch a.Kind {
	case dsl.KindLLM:
		built := agent.NewLLMAgent(agent.LLMConfig{
			Name:            name,
			Purpose:         a.Purpose,
			ModelName:       a.ModelName,
			PromptTemplate:  a.PromptTemplate,
			OutputKey:       a.OutputKey,
			ForceJSONOutput: a.ForceJSONOutput,
		}, deps.Provider, logger)
		if deps.LLMMaxRetries > 0 {
			built.WithRetrySchedule(deps.LLMMaxRetries, deps.LLMRetryMinWait, deps.LLMRetryMaxWait)
		}
		return built, nil

	case dsl.KindDeterministic:
		return agent.NewDeterministicAgent(name, a.Function, deps.Tools), nil

	case dsl.KindReflection:
		return agent.NewReflectionAgent(agent.ReflectionConfig{
			Name:           name,
			Purpose:        a.Purpose,
			ModelName:      a.ModelName,
			PromptTemplate: a.PromptTemplate,
			ApproveLabel:   a.ApproveLabel,
			RefineLabel:    a.RefineLabel,
			Rule:           a.Rule,
		}, deps.Provider, deps.Tools, logger), nil

	case dsl.KindToolUsing:
		return agent.NewToolUsingAgent(agent.ToolUsingConfig{
			Name:           name,
			Purpose:        a.Purpose,
			ModelName:      a.ModelName,
			Tools:          a.Tools,
			PromptTemplate: a.PromptTemplate,
			OutputKey:      a.OutputKey,
			MaxSteps:       maxSteps,
		}, deps.Provider, deps.Tools, logger), nil

	case dsl.KindSupervisor:
		return agent.NewSupervisorAgent(agent.SupervisorConfig{
			Name:            name,
			Purpose:         a.Purpose,
			ModelName:       a.ModelName,
			AvailableAgents: a.AvailableAgents,
			PromptTemplate:  a.PromptTemplate,
		}, deps.Provider, logger), nil

	case dsl.KindUTCPAgent:
		return agent.NewUTCPAgent(agent.UTCPConfig{
			Name:            name,
			Purpose:         a.Purpose,
			ModelName:       a.ModelName,
			Manifests:       a.Tools,
			PromptTemplate:  a.PromptTemplate,
			OutputKey:       a.OutputKey,
			ForceJSONOutput: a.ForceJSONOutput,
			MaxSteps:        maxSteps,
		}, deps.Provider, manifests, logger), nil
	}

	return nil, fmt.Errorf("compile agent %q: unknown kind %q", name, a.Kind)
}
