package agent

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/dmoreira/graphflow/llmclient"
	"github.com/dmoreira/graphflow/process/state"
	"github.com/dmoreira/graphflow/process/tools"
)

var openObjectSchema = json.RawMessage(`{"type":"object"}`)

// ToolUsingConfig carries the tool_using kind's YAML fields.
type ToolUsingConfig struct {
	Name           string
	Purpose        string
	ModelName      string
	Tools          []string
	PromptTemplate string
	OutputKey      string
	MaxSteps       int
}

// ToolUsingAgent drives a bounded ReAct loop over in-process tools
// drawn from the tool registry, using native function calling.
type ToolUsingAgent struct {
	cfg      ToolUsingConfig
	provider llmclient.Provider
	registry *tools.Registry
	logger   *zap.Logger
}

// NewToolUsingAgent builds a ToolUsingAgent. Every name in cfg.Tools is
// expected to already exist in registry (the loader enforces this).
func NewToolUsingAgent(cfg ToolUsingConfig, provider llmclient.Provider, registry *tools.Registry, logger *zap.Logger) *ToolUsingAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolUsingAgent{cfg: cfg, provider: provider, registry: registry, logger: logger.With(zap.String("agent", cfg.Name))}
}

func (a *ToolUsingAgent) Execute(ctx context.Context, s state.Global) (state.Delta, error) {
	prompt := renderTemplate(a.cfg.PromptTemplate, s)
	inv := &registryInvoker{registry: a.registry, names: a.cfg.Tools}

	answer, audit, err := runReact(ctx, a.provider, a.cfg.ModelName, prompt, inv, a.cfg.MaxSteps, a.logger)
	return applyReactResult(a.cfg.Name, "tool_using", a.cfg.Purpose, a.cfg.ModelName, a.cfg.OutputKey, answer, audit, err), nil
}

// registryInvoker adapts process/tools.Registry to reactInvoker, scoped
// to the subset of tool names this agent is configured to use.
type registryInvoker struct {
	registry *tools.Registry
	names    []string
}

func (r *registryInvoker) schemas() []llmclient.ToolSchema {
	out := make([]llmclient.ToolSchema, 0, len(r.names))
	for _, name := range r.names {
		t, ok := r.registry.Tool(name)
		if !ok {
			continue
		}
		params := t.Parameters
		if params == nil {
			params = openObjectSchema
		}
		out = append(out, llmclient.ToolSchema{Name: t.Name, Description: t.Description, Parameters: params})
	}
	return out
}

func (r *registryInvoker) invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := r.registry.InvokeTool(ctx, name, args)
	if err != nil {
		return "", err
	}
	return stringifyResult(result), nil
}

func stringifyResult(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return stringify(v)
	}
	return string(data)
}
