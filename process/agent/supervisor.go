package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dmoreira/graphflow/llmclient"
	"github.com/dmoreira/graphflow/process/dsl"
	"github.com/dmoreira/graphflow/process/state"
)

// SupervisorConfig carries the supervisor kind's YAML fields.
type SupervisorConfig struct {
	Name            string
	Purpose         string
	ModelName       string
	AvailableAgents []string
	PromptTemplate  string
}

// SupervisorAgent asks a model to choose the next node to route to, or
// to finish the run. The chosen name (or dsl.FinishSentinel) is written
// to quality.next_agent for the runtime's standard edge-selection
// mechanism to act on.
type SupervisorAgent struct {
	cfg      SupervisorConfig
	provider llmclient.Provider
	logger   *zap.Logger
}

// NewSupervisorAgent builds a SupervisorAgent.
func NewSupervisorAgent(cfg SupervisorConfig, provider llmclient.Provider, logger *zap.Logger) *SupervisorAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupervisorAgent{cfg: cfg, provider: provider, logger: logger.With(zap.String("agent", cfg.Name))}
}

func (a *SupervisorAgent) Execute(ctx context.Context, s state.Global) (state.Delta, error) {
	prompt := renderTemplate(a.cfg.PromptTemplate, s)
	resp, err := a.provider.Completion(ctx, &llmclient.ChatRequest{
		Model:    a.cfg.ModelName,
		Messages: []llmclient.Message{{Role: llmclient.RoleUser, Content: prompt}},
	})
	if err != nil || len(resp.Choices) == 0 {
		errMsg := fmt.Sprintf("LLM invocation failed: %s: %v", a.cfg.ModelName, err)
		return state.Delta{
			Quality:  map[string]any{"error": errMsg},
			Messages: []map[string]any{auditMessage(a.cfg.Name, "supervisor", map[string]any{"purpose": a.cfg.Purpose, "status": "error"})},
		}, nil
	}

	choice := a.extractChoice(resp.Choices[0].Message.Content)

	if choice == dsl.FinishSentinel {
		return state.Delta{
			Quality:  map[string]any{"next_agent": dsl.FinishSentinel},
			Messages: []map[string]any{auditMessage(a.cfg.Name, "supervisor", map[string]any{"purpose": a.cfg.Purpose, "choice": choice})},
		}, nil
	}

	if !a.isAvailable(choice) {
		errMsg := fmt.Sprintf("supervisor %s: model chose %q outside available_agents", a.cfg.Name, choice)
		return state.Delta{
			Quality:  map[string]any{"error": errMsg},
			Messages: []map[string]any{auditMessage(a.cfg.Name, "supervisor", map[string]any{"purpose": a.cfg.Purpose, "status": "error", "choice": choice})},
		}, nil
	}

	return state.Delta{
		Quality:  map[string]any{"next_agent": choice},
		Messages: []map[string]any{auditMessage(a.cfg.Name, "supervisor", map[string]any{"purpose": a.cfg.Purpose, "choice": choice})},
	}, nil
}

// extractChoice pulls a single token out of the model's response: the
// first line, trimmed, matched case-insensitively against the available
// agents and the FINISH sentinel.
func (a *SupervisorAgent) extractChoice(text string) string {
	candidate := strings.TrimSpace(text)
	if idx := strings.IndexAny(candidate, "\n\r"); idx >= 0 {
		candidate = strings.TrimSpace(candidate[:idx])
	}
	candidate = strings.Trim(candidate, `."'`)

	if strings.EqualFold(candidate, dsl.FinishSentinel) {
		return dsl.FinishSentinel
	}
	for _, name := range a.cfg.AvailableAgents {
		if strings.EqualFold(candidate, name) {
			return name
		}
	}
	return candidate
}

func (a *SupervisorAgent) isAvailable(choice string) bool {
	for _, name := range a.cfg.AvailableAgents {
		if name == choice {
			return true
		}
	}
	return false
}
