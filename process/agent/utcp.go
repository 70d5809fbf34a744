package agent

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/dmoreira/graphflow/llmclient"
	"github.com/dmoreira/graphflow/process/state"
	"github.com/dmoreira/graphflow/process/utcp"
)

// UTCPConfig carries the utcp_agent kind's YAML fields.
type UTCPConfig struct {
	Name            string
	Purpose         string
	ModelName       string
	Manifests       []string
	PromptTemplate  string
	OutputKey       string
	ForceJSONOutput bool
	MaxSteps        int
}

// UTCPAgent shares tool_using's ReAct loop but invokes tools as HTTP
// calls against one or more compiled manifests rather than in-process
// functions, per process/utcp's manifest registry.
type UTCPAgent struct {
	cfg       UTCPConfig
	provider  llmclient.Provider
	manifests *utcp.Registry
	logger    *zap.Logger
}

// NewUTCPAgent builds a UTCPAgent. Every name in cfg.Manifests is
// expected to already exist in manifests (the loader enforces this).
func NewUTCPAgent(cfg UTCPConfig, provider llmclient.Provider, manifests *utcp.Registry, logger *zap.Logger) *UTCPAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UTCPAgent{cfg: cfg, provider: provider, manifests: manifests, logger: logger.With(zap.String("agent", cfg.Name))}
}

func (a *UTCPAgent) Execute(ctx context.Context, s state.Global) (state.Delta, error) {
	prompt := renderTemplate(a.cfg.PromptTemplate, s)
	inv := &manifestInvoker{registry: a.manifests, manifestNames: a.cfg.Manifests}

	answer, audit, err := runReact(ctx, a.provider, a.cfg.ModelName, prompt, inv, a.cfg.MaxSteps, a.logger)
	if err == nil && a.cfg.ForceJSONOutput {
		answer = stringifyResult(parseJSONLoose(answer))
	}
	return applyReactResult(a.cfg.Name, "utcp_agent", a.cfg.Purpose, a.cfg.ModelName, a.cfg.OutputKey, answer, audit, err), nil
}

// manifestInvoker adapts process/utcp.Registry to reactInvoker, flattening
// every operation across the agent's configured manifests into a single
// tool namespace the model chooses from by operation name.
type manifestInvoker struct {
	registry      *utcp.Registry
	manifestNames []string
}

func (m *manifestInvoker) schemas() []llmclient.ToolSchema {
	var out []llmclient.ToolSchema
	for _, manifestName := range m.manifestNames {
		ops, err := m.registry.Schemas(manifestName)
		if err != nil {
			continue
		}
		for opName, description := range ops {
			out = append(out, llmclient.ToolSchema{
				Name:        opName,
				Description: description,
				Parameters:  openObjectSchema,
			})
		}
	}
	return out
}

func (m *manifestInvoker) invoke(ctx context.Context, opName string, args map[string]any) (string, error) {
	var lastErr error
	for _, manifestName := range m.manifestNames {
		if !m.registry.Has(manifestName) {
			continue
		}
		result, err := m.registry.Invoke(ctx, manifestName, opName, args)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = &unknownOperationError{op: opName}
	}
	return "", lastErr
}

type unknownOperationError struct{ op string }

func (e *unknownOperationError) Error() string {
	b, _ := json.Marshal(e.op)
	return "utcp_agent: no configured manifest exposes operation " + string(b)
}
