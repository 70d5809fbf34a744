package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmoreira/graphflow/llmclient"
)

// fakeProvider is a scripted llmclient.Provider test double: each call to
// Completion pops the next response (or error) off a queue.
type fakeProvider struct {
	responses []fakeResponse
	calls     int
	captured  []*llmclient.ChatRequest
}

type fakeResponse struct {
	content   string
	toolCalls []llmclient.ToolCall
	err       error
}

func (f *fakeProvider) Completion(ctx context.Context, req *llmclient.ChatRequest) (*llmclient.ChatResponse, error) {
	f.captured = append(f.captured, req)
	if f.calls >= len(f.responses) {
		return nil, fmt.Errorf("fakeProvider: no scripted response for call %d", f.calls)
	}
	r := f.responses[f.calls]
	f.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &llmclient.ChatResponse{
		Model: req.Model,
		Choices: []llmclient.ChatChoice{{
			Message: llmclient.Message{Role: llmclient.RoleAssistant, Content: r.content, ToolCalls: r.toolCalls},
		}},
	}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req *llmclient.ChatRequest) (<-chan llmclient.StreamChunk, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeProvider) HealthCheck(ctx context.Context) (*llmclient.HealthStatus, error) {
	return &llmclient.HealthStatus{Healthy: true}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) SupportsNativeFunctionCalling() bool { return true }

func toolArgs(v map[string]any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
