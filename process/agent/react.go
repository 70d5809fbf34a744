package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/dmoreira/graphflow/llmclient"
	"github.com/dmoreira/graphflow/process/state"
)

// reactInvoker is the single point where tool_using and utcp_agent
// differ: everything else about the reason-act-observe loop -- message
// bookkeeping, step cap, audit trail -- is shared.
type reactInvoker interface {
	schemas() []llmclient.ToolSchema
	invoke(ctx context.Context, name string, args map[string]any) (string, error)
}

const defaultMaxSteps = 6

// runReact drives a bounded ReAct loop: ask the model, execute any tool
// calls it requests, feed results back as observations, repeat until a
// plain-text final answer arrives or the step cap is hit. Native
// function calling removes the need for a separate planning phase, so
// each step is a single request/response cycle.
func runReact(ctx context.Context, provider llmclient.Provider, model, prompt string, inv reactInvoker, maxSteps int, logger *zap.Logger) (string, []map[string]any, error) {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	messages := []llmclient.Message{{Role: llmclient.RoleUser, Content: prompt}}
	var audit []map[string]any

	for step := 0; step < maxSteps; step++ {
		resp, err := provider.Completion(ctx, &llmclient.ChatRequest{
			Model:    model,
			Messages: messages,
			Tools:    inv.schemas(),
		})
		if err != nil {
			return "", audit, err
		}
		if len(resp.Choices) == 0 {
			return "", audit, fmt.Errorf("empty response from %s", model)
		}
		msg := resp.Choices[0].Message

		if len(msg.ToolCalls) == 0 {
			return msg.Content, audit, nil
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal(call.Arguments, &args)

			result, err := inv.invoke(ctx, call.Name, args)
			status := "ok"
			if err != nil {
				result = err.Error()
				status = "error"
			}

			audit = append(audit, map[string]any{
				"step":   step,
				"tool":   call.Name,
				"status": status,
				"result": truncate(result, 200),
			})
			logger.Debug("react step", zap.Int("step", step), zap.String("tool", call.Name), zap.String("status", status))

			messages = append(messages, llmclient.Message{
				Role:       llmclient.RoleTool,
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}

	return "", audit, fmt.Errorf("reached max_steps (%d) without a final answer", maxSteps)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// applyReactResult builds the Delta shared by tool_using and utcp_agent
// once the loop concludes, whether successfully or not.
func applyReactResult(name, kind, purpose, model, outputKey string, answer string, audit []map[string]any, loopErr error) state.Delta {
	messages := make([]map[string]any, 0, len(audit)+1)
	for _, a := range audit {
		messages = append(messages, auditMessage(name, kind+"_step", a))
	}

	if loopErr != nil {
		errMsg := fmt.Sprintf("LLM invocation failed: %s: %v", model, loopErr)
		messages = append(messages, auditMessage(name, kind, map[string]any{
			"purpose": purpose, "model": model, "status": "error",
		}))
		return state.Delta{
			Quality:  map[string]any{"error": errMsg},
			Messages: messages,
		}
	}

	messages = append(messages, auditMessage(name, kind, map[string]any{
		"purpose": purpose, "model": model, "status": "success", "steps": len(audit),
	}))
	return state.Delta{
		Artifacts: map[string]any{outputKey: answer},
		Messages:  messages,
	}
}
