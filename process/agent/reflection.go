package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dmoreira/graphflow/llmclient"
	"github.com/dmoreira/graphflow/process/state"
	"github.com/dmoreira/graphflow/process/tools"
)

// ReflectionConfig carries the reflection kind's YAML fields.
type ReflectionConfig struct {
	Name           string
	Purpose        string
	ModelName      string
	PromptTemplate string
	ApproveLabel   string
	RefineLabel    string
	Rule           string
}

// ReflectionAgent is a self-review agent: either a model judges the
// current artifacts against a prompt, or a registered rule function
// stands in for the model. Both paths write review_status, and the
// model path also records feedback and the attempt counter.
type ReflectionAgent struct {
	cfg      ReflectionConfig
	provider llmclient.Provider
	registry *tools.Registry
	logger   *zap.Logger
}

// NewReflectionAgent builds a ReflectionAgent. registry may be nil if cfg.Rule is empty.
func NewReflectionAgent(cfg ReflectionConfig, provider llmclient.Provider, registry *tools.Registry, logger *zap.Logger) *ReflectionAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ApproveLabel == "" {
		cfg.ApproveLabel = "APROVADO"
	}
	if cfg.RefineLabel == "" {
		cfg.RefineLabel = "REFINAR"
	}
	return &ReflectionAgent{cfg: cfg, provider: provider, registry: registry, logger: logger.With(zap.String("agent", cfg.Name))}
}

func (a *ReflectionAgent) Execute(ctx context.Context, s state.Global) (state.Delta, error) {
	attempts := asInt(s.Quality["attempts"])

	if a.cfg.Rule != "" {
		fn, ok := a.registry.Function(a.cfg.Rule)
		if !ok {
			return state.Delta{}, fmt.Errorf("reflection agent %q: unknown rule %q", a.cfg.Name, a.cfg.Rule)
		}
		delta, err := fn(ctx, s)
		if err != nil {
			return state.Delta{
				Quality:  map[string]any{"error": fmt.Sprintf("reflection: %v", err)},
				Messages: []map[string]any{auditMessage(a.cfg.Name, "reflection", map[string]any{"purpose": a.cfg.Purpose, "status": "error"})},
			}, nil
		}
		delta.Messages = append(append([]map[string]any{}, delta.Messages...),
			auditMessage(a.cfg.Name, "reflection", map[string]any{"purpose": a.cfg.Purpose, "rule": a.cfg.Rule}))
		return delta, nil
	}

	prompt := renderTemplate(a.cfg.PromptTemplate, s)
	resp, err := a.provider.Completion(ctx, &llmclient.ChatRequest{
		Model:    a.cfg.ModelName,
		Messages: []llmclient.Message{{Role: llmclient.RoleUser, Content: prompt}},
	})
	if err != nil || len(resp.Choices) == 0 {
		errMsg := fmt.Sprintf("LLM invocation failed: %s: %v", a.cfg.ModelName, err)
		return state.Delta{
			Quality:  map[string]any{"error": errMsg},
			Messages: []map[string]any{auditMessage(a.cfg.Name, "reflection", map[string]any{"purpose": a.cfg.Purpose, "status": "error"})},
		}, nil
	}

	text := resp.Choices[0].Message.Content
	status := a.classify(text)

	return state.Delta{
		Quality: map[string]any{
			"review_status": status,
			"feedback":      text,
			"attempts":      attempts + 1,
		},
		Messages: []map[string]any{auditMessage(a.cfg.Name, "reflection", map[string]any{"purpose": a.cfg.Purpose, "model": a.cfg.ModelName})},
	}, nil
}

func (a *ReflectionAgent) classify(text string) string {
	if strings.Contains(strings.ToUpper(text), strings.ToUpper(a.cfg.ApproveLabel)) {
		return a.cfg.ApproveLabel
	}
	return a.cfg.RefineLabel
}

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}
