// Package anthropic implements llmclient.Provider against the Anthropic
// Messages API directly over net/http: x-api-key auth, a separate
// top-level "system" field, and an SSE stream with its own event
// vocabulary, none of which line up with a generic OpenAI-shaped client.
//
// The adapter is deliberately scoped to what the process engine needs
// from a model client: synchronous completions with native tool use and
// a JSON-output hint. Streaming is text-only -- the engine's ReAct loop
// consumes complete tool-call turns via Completion, so tool-use deltas
// are not reassembled here.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dmoreira/graphflow/llmclient"
)

const (
	apiVersion       = "2023-06-01"
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-3-5-sonnet-20241022"
	defaultMaxTokens = 4096

	// jsonDirective stands in for a JSON mode switch, which the Messages
	// API does not have; when a caller sets JSONMode the instruction is
	// carried in the system field instead.
	jsonDirective = "Respond with a single valid JSON document and nothing else."
)

// Config configures a Provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Provider implements llmclient.Provider against the Anthropic Messages API.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New constructs a Provider. A nil logger falls back to zap.NewNop().
func New(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "llmclient.anthropic")),
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) SupportsNativeFunctionCalling() bool { return true }

// HealthCheck probes the models listing endpoint, which answers without
// consuming tokens.
func (p *Provider) HealthCheck(ctx context.Context) (*llmclient.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/v1/models"), nil)
	if err != nil {
		return nil, err
	}
	p.sign(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llmclient.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &llmclient.HealthStatus{Healthy: false, Latency: latency}, p.apiError(resp)
	}
	return &llmclient.HealthStatus{Healthy: true, Latency: latency}, nil
}

// --- wire types: Anthropic's shape differs from llmclient's generic one ---

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type      string          `json:"type"` // text, tool_use, tool_result
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireResponse struct {
	ID         string      `json:"id"`
	Content    []wireBlock `json:"content"`
	Model      string      `json:"model"`
	StopReason string      `json:"stop_reason"`
	Usage      *wireUsage  `json:"usage,omitempty"`
}

type wireError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type wireEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text,omitempty"`
		StopReason string `json:"stop_reason,omitempty"`
	} `json:"delta"`
	ContentBlock struct {
		Type string `json:"type"`
	} `json:"content_block"`
}

func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *Provider) sign(req *http.Request) {
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// buildRequest translates a generic chat request into the Messages API
// shape. System turns move to the top-level system field (joined by the
// JSON directive when JSONMode is set), tool-result turns become
// tool_result blocks, and consecutive tool results are folded into one
// user message -- the API expects every result of an assistant turn's
// tool calls in a single following user turn.
func (p *Provider) buildRequest(req *llmclient.ChatRequest, stream bool) wireRequest {
	var system []string
	var out []wireMessage

	appendBlocks := func(role string, blocks ...wireBlock) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role && out[n-1].Content[0].Type == "tool_result" && blocks[0].Type == "tool_result" {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, wireMessage{Role: role, Content: blocks})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case llmclient.RoleSystem:
			system = append(system, m.Content)
		case llmclient.RoleTool:
			appendBlocks("user", wireBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content})
		default:
			var blocks []wireBlock
			if m.Content != "" {
				blocks = append(blocks, wireBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Arguments
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, wireBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			appendBlocks(string(m.Role), blocks...)
		}
	}

	if req.JSONMode {
		system = append(system, jsonDirective)
	}

	w := wireRequest{
		Model:       req.Model,
		Messages:    out,
		System:      strings.Join(system, "\n\n"),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if w.Model == "" {
		w.Model = p.cfg.Model
	}
	if w.MaxTokens <= 0 {
		w.MaxTokens = defaultMaxTokens
	}
	// The API rejects a tools field with zero entries, so it is only set
	// when the caller actually surfaced tools.
	for _, t := range req.Tools {
		schema := t.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		w.Tools = append(w.Tools, wireTool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return w
}

func (p *Provider) post(ctx context.Context, body wireRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/v1/messages"), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	p.sign(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.transportError(err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, p.apiError(resp)
	}
	return resp, nil
}

// Completion issues a blocking Messages call and flattens the content
// blocks back into one assistant message.
func (p *Provider) Completion(ctx context.Context, req *llmclient.ChatRequest) (*llmclient.ChatResponse, error) {
	resp, err := p.post(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, p.transportError(fmt.Errorf("decode response: %w", err))
	}

	msg := llmclient.Message{Role: llmclient.RoleAssistant}
	for _, block := range wr.Content {
		switch block.Type {
		case "text":
			msg.Content += block.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, llmclient.ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input})
		}
	}

	out := &llmclient.ChatResponse{
		ID:       wr.ID,
		Provider: p.Name(),
		Model:    wr.Model,
		Choices:  []llmclient.ChatChoice{{Index: 0, FinishReason: wr.StopReason, Message: msg}},
	}
	if wr.Usage != nil {
		out.Usage = llmclient.ChatUsage{
			PromptTokens:     wr.Usage.InputTokens,
			CompletionTokens: wr.Usage.OutputTokens,
			TotalTokens:      wr.Usage.InputTokens + wr.Usage.OutputTokens,
		}
	}
	p.logger.Debug("completion",
		zap.String("model", wr.Model),
		zap.String("stop_reason", wr.StopReason),
		zap.Int("tool_calls", len(msg.ToolCalls)))
	return out, nil
}

// Stream issues a streaming Messages call and relays text deltas. Tool
// use is not streamed: if the model opens a tool_use block the stream
// ends with an error chunk directing the caller to Completion, which is
// how every engine agent kind invokes this provider anyway.
func (p *Provider) Stream(ctx context.Context, req *llmclient.ChatRequest) (<-chan llmclient.StreamChunk, error) {
	resp, err := p.post(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	ch := make(chan llmclient.StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			payload, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "data:")
			if !ok {
				continue
			}

			var ev wireEvent
			if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &ev); err != nil {
				continue // keep-alive or unknown frame
			}

			switch {
			case ev.Type == "content_block_start" && ev.ContentBlock.Type == "tool_use":
				ch <- llmclient.StreamChunk{Err: &llmclient.Error{
					Code:      llmclient.ErrInvalidRequest,
					Message:   "anthropic: tool use is not supported over Stream, use Completion",
					Provider:  p.Name(),
					Retryable: false,
				}}
				return
			case ev.Type == "content_block_delta" && ev.Delta.Type == "text_delta":
				ch <- llmclient.StreamChunk{Delta: llmclient.Message{Role: llmclient.RoleAssistant, Content: ev.Delta.Text}}
			case ev.Type == "message_delta" && ev.Delta.StopReason != "":
				ch <- llmclient.StreamChunk{FinishReason: ev.Delta.StopReason}
			case ev.Type == "message_stop":
				return
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- llmclient.StreamChunk{Err: p.transportError(err)}
		}
	}()
	return ch, nil
}

// transportError wraps a network or decode fault as a retryable upstream
// error.
func (p *Provider) transportError(err error) *llmclient.Error {
	return &llmclient.Error{
		Code:       llmclient.ErrUpstreamError,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Provider:   p.Name(),
	}
}

// apiError reads an error response body and classifies it. The code is
// chosen from the API's own error type when it is specific enough
// (overloaded_error means the service, not this request), otherwise from
// the status; retryability follows from the code.
func (p *Provider) apiError(resp *http.Response) *llmclient.Error {
	data, _ := io.ReadAll(resp.Body)
	msg := string(data)
	var we wireError
	if json.Unmarshal(data, &we) == nil && we.Error.Message != "" {
		msg = fmt.Sprintf("%s (type: %s)", we.Error.Message, we.Error.Type)
	}

	code := classifyStatus(resp.StatusCode)
	if we.Error.Type == "overloaded_error" {
		code = llmclient.ErrProviderUnavailable
	}

	return &llmclient.Error{
		Code:       code,
		Message:    msg,
		HTTPStatus: resp.StatusCode,
		Retryable:  retryable(code),
		Provider:   p.Name(),
	}
}

func classifyStatus(status int) llmclient.ErrorCode {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return llmclient.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return llmclient.ErrRateLimited
	case status == http.StatusGatewayTimeout:
		return llmclient.ErrUpstreamTimeout
	case status == 529: // anthropic's own overloaded status
		return llmclient.ErrProviderUnavailable
	case status >= 500:
		return llmclient.ErrUpstreamError
	default:
		return llmclient.ErrInvalidRequest
	}
}

func retryable(code llmclient.ErrorCode) bool {
	switch code {
	case llmclient.ErrRateLimited, llmclient.ErrUpstreamTimeout, llmclient.ErrUpstreamError, llmclient.ErrProviderUnavailable:
		return true
	}
	return false
}
