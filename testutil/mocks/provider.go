// Package mocks 提供 llmclient.Provider 的测试替身。
//
// 支持固定响应、按调用顺序脚本化响应与错误注入场景，供 process/agent
// 与 process/graph 的端到端场景测试驱动可预测的模型对话。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmoreira/graphflow/llmclient"
)

// ProviderCall 记录单次调用
type ProviderCall struct {
	Request  *llmclient.ChatRequest
	Response *llmclient.ChatResponse
	Error    error
}

// MockProvider 是 llmclient.Provider 的模拟实现。
type MockProvider struct {
	mu sync.RWMutex

	response  string
	toolCalls []llmclient.ToolCall

	// responses, if non-empty, is consumed in order: the Nth call to
	// Completion returns responses[n]. Once exhausted, falls back to
	// response/err.
	responses []ScriptedResponse

	err       error
	failAfter int

	promptTokens     int
	completionTokens int

	calls          []ProviderCall
	completionFunc func(ctx context.Context, req *llmclient.ChatRequest) (*llmclient.ChatResponse, error)
	callCount      int
}

// ScriptedResponse is one entry in a call-ordered response script.
type ScriptedResponse struct {
	Content string
	Err     error
}

// NewMockProvider creates a new MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		response:         "Mock response",
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithResponse sets a fixed response content, returned for every call
// not consumed by a scripted sequence.
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithResponses scripts a sequence of responses, one per call, in order.
func (m *MockProvider) WithResponses(contents ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = make([]ScriptedResponse, len(contents))
	for i, c := range contents {
		m.responses[i] = ScriptedResponse{Content: c}
	}
	return m
}

// WithError sets an error returned for every call.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithToolCalls sets tool calls to attach to the response message.
func (m *MockProvider) WithToolCalls(toolCalls []llmclient.ToolCall) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls = toolCalls
	return m
}

// WithTokenUsage sets the token usage reported on each response.
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithFailAfter configures the provider to fail on every call after the Nth.
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc overrides Completion entirely with a custom function.
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llmclient.ChatRequest) (*llmclient.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string { return "mock" }

// SupportsNativeFunctionCalling reports tool-calling support.
func (m *MockProvider) SupportsNativeFunctionCalling() bool { return true }

// HealthCheck always reports healthy.
func (m *MockProvider) HealthCheck(ctx context.Context) (*llmclient.HealthStatus, error) {
	return &llmclient.HealthStatus{Healthy: true, Latency: 10 * time.Millisecond}, nil
}

// Completion implements llmclient.Provider.
func (m *MockProvider) Completion(ctx context.Context, req *llmclient.ChatRequest) (*llmclient.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++

	if m.failAfter > 0 && m.callCount > m.failAfter {
		err := errors.New("mock provider: configured to fail after N calls")
		m.calls = append(m.calls, ProviderCall{Request: req, Error: err})
		return nil, err
	}

	if m.completionFunc != nil {
		resp, err := m.completionFunc(ctx, req)
		m.calls = append(m.calls, ProviderCall{Request: req, Response: resp, Error: err})
		return resp, err
	}

	content := m.response
	var scriptErr error
	if idx := m.callCount - 1; idx < len(m.responses) {
		content = m.responses[idx].Content
		scriptErr = m.responses[idx].Err
	}
	if scriptErr == nil {
		scriptErr = m.err
	}
	if scriptErr != nil {
		m.calls = append(m.calls, ProviderCall{Request: req, Error: scriptErr})
		return nil, scriptErr
	}

	msg := llmclient.Message{
		Role:      llmclient.RoleAssistant,
		Content:   content,
		ToolCalls: m.toolCalls,
	}
	finish := "stop"
	if len(m.toolCalls) > 0 {
		finish = "tool_calls"
	}

	resp := &llmclient.ChatResponse{
		ID:       "mock-response-id",
		Provider: "mock",
		Model:    req.Model,
		Choices: []llmclient.ChatChoice{
			{Index: 0, FinishReason: finish, Message: msg},
		},
		Usage: llmclient.ChatUsage{
			PromptTokens:     m.promptTokens,
			CompletionTokens: m.completionTokens,
			TotalTokens:      m.promptTokens + m.completionTokens,
		},
	}

	m.calls = append(m.calls, ProviderCall{Request: req, Response: resp})
	return resp, nil
}

// Stream is unimplemented: the process contract never streams.
func (m *MockProvider) Stream(ctx context.Context, req *llmclient.ChatRequest) (<-chan llmclient.StreamChunk, error) {
	return nil, errors.New("mock provider: streaming not implemented")
}

// Calls returns every recorded call, in order.
func (m *MockProvider) Calls() []ProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ProviderCall{}, m.calls...)
}

// CallCount returns the number of Completion invocations.
func (m *MockProvider) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// Reset clears call history and failure state.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
	m.err = nil
	m.failAfter = 0
}
