// Package llmclient defines the model-client collaborator contract that
// the llm, reflection, tool_using, supervisor and utcp_agent kinds invoke,
// trimmed from a broader multi-tenant provider interface down to the
// fields a single process run actually needs.
package llmclient

import (
	"context"
	"encoding/json"
	"time"
)

// ErrorCode aligns a provider fault with retry/fallback policy.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "LLM_INVALID_REQUEST"
	ErrUnauthorized        ErrorCode = "LLM_UNAUTHORIZED"
	ErrRateLimited         ErrorCode = "LLM_RATE_LIMITED"
	ErrUpstreamTimeout     ErrorCode = "LLM_UPSTREAM_TIMEOUT"
	ErrUpstreamError       ErrorCode = "LLM_UPSTREAM_ERROR"
	ErrProviderUnavailable ErrorCode = "LLM_PROVIDER_UNAVAILABLE"
)

// Error is a provider-reported fault.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-initiated call into a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one turn of a chat exchange.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolSchema describes a tool surfaced to the model as a JSON Schema.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatRequest is a single completion request.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Tools       []ToolSchema  `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	JSONMode    bool          `json:"json_mode,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// ChatUsage reports token accounting for a completion.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatChoice is one candidate completion.
type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

// ChatResponse is the result of a completion request.
type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// StreamChunk is one increment of a streamed completion.
type StreamChunk struct {
	Delta        Message `json:"delta"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Err          *Error  `json:"error,omitempty"`
}

// HealthStatus reports a provider's availability.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider is the model-client collaborator contract. Every agent kind
// that talks to a model depends on this interface, never on a concrete
// vendor SDK directly.
type Provider interface {
	// Completion issues a synchronous chat request and returns the full response.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream issues a streamed chat request, returning an incremental channel.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// HealthCheck performs a lightweight liveness probe.
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name returns the provider's identifier, used in logs and metrics.
	Name() string

	// SupportsNativeFunctionCalling reports whether Tools/ToolChoice are honored.
	SupportsNativeFunctionCalling() bool
}
