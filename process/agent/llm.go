package agent

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dmoreira/graphflow/llmclient"
	"github.com/dmoreira/graphflow/process/state"
)

// LLMConfig carries the llm kind's YAML fields.
type LLMConfig struct {
	Name            string
	Purpose         string
	ModelName       string
	PromptTemplate  string
	OutputKey       string
	ForceJSONOutput bool
}

// LLMAgent is a single-turn language-model agent: render a template,
// invoke the model with retry, write the response to
// artifacts[output_key].
type LLMAgent struct {
	cfg      LLMConfig
	provider llmclient.Provider
	logger   *zap.Logger

	// retry knobs, exposed for tests; production callers get the
	// defaults via NewLLMAgent.
	maxAttempts int
	minWait     time.Duration
	maxWait     time.Duration
}

// NewLLMAgent builds an LLMAgent with the default retry schedule:
// three attempts over a randomized exponential backoff between 1s and 60s.
func NewLLMAgent(cfg LLMConfig, provider llmclient.Provider, logger *zap.Logger) *LLMAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMAgent{
		cfg:         cfg,
		provider:    provider,
		logger:      logger.With(zap.String("agent", cfg.Name)),
		maxAttempts: 3,
		minWait:     1 * time.Second,
		maxWait:     60 * time.Second,
	}
}

// WithRetrySchedule overrides the default invocation retry schedule.
// attempts below 1 is clamped to 1 (a single attempt, no backoff).
func (a *LLMAgent) WithRetrySchedule(attempts int, minWait, maxWait time.Duration) *LLMAgent {
	if attempts < 1 {
		attempts = 1
	}
	a.maxAttempts = attempts
	if minWait > 0 {
		a.minWait = minWait
	}
	if maxWait > 0 {
		a.maxWait = maxWait
	}
	return a
}

func (a *LLMAgent) Execute(ctx context.Context, s state.Global) (state.Delta, error) {
	prompt := renderTemplate(a.cfg.PromptTemplate, s)

	text, tokens, err := a.invokeWithRetry(ctx, prompt)
	if err != nil {
		errMsg := fmt.Sprintf("LLM invocation failed: %s: %v", a.cfg.ModelName, err)
		return state.Delta{
			Quality: map[string]any{"error": errMsg},
			Messages: []map[string]any{auditMessage(a.cfg.Name, "llm", map[string]any{
				"model":   a.cfg.ModelName,
				"purpose": a.cfg.Purpose,
				"status":  "error",
				"detail":  err.Error(),
			})},
		}, nil
	}

	var output any = text
	if a.cfg.ForceJSONOutput {
		output = parseJSONLoose(text)
	}

	extra := map[string]any{
		"model":   a.cfg.ModelName,
		"purpose": a.cfg.Purpose,
		"status":  "success",
	}
	if tokens > 0 {
		extra["token_count"] = tokens
	}

	return state.Delta{
		Artifacts: map[string]any{a.cfg.OutputKey: output},
		Messages:  []map[string]any{auditMessage(a.cfg.Name, "llm", extra)},
	}, nil
}

func (a *LLMAgent) invokeWithRetry(ctx context.Context, prompt string) (string, int, error) {
	var lastErr error
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := a.backoff(ctx, attempt); err != nil {
				return "", 0, err
			}
		}

		resp, err := a.provider.Completion(ctx, &llmclient.ChatRequest{
			Model: a.cfg.ModelName,
			Messages: []llmclient.Message{
				{Role: llmclient.RoleUser, Content: prompt},
			},
			Temperature: 0,
			JSONMode:    a.cfg.ForceJSONOutput,
		})
		if err == nil && len(resp.Choices) > 0 {
			content := resp.Choices[0].Message.Content
			tokens := resp.Usage.TotalTokens
			if tokens == 0 {
				// Provider reported no usage; estimate locally so the
				// audit trail still carries a token figure.
				if n, ok := sharedTokenCounter.count(prompt + content); ok {
					tokens = n
				}
			}
			return content, tokens, nil
		}
		if err == nil {
			err = fmt.Errorf("empty response from %s", a.cfg.ModelName)
		}
		lastErr = err
		a.logger.Warn("llm invocation attempt failed",
			zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return "", 0, fmt.Errorf("exhausted %d attempts: %w", a.maxAttempts, lastErr)
}

// backoff sleeps a random duration within an exponentially growing
// window.
func (a *LLMAgent) backoff(ctx context.Context, attempt int) error {
	window := a.minWait * time.Duration(math.Pow(2, float64(attempt-1)))
	if window > a.maxWait {
		window = a.maxWait
	}
	if window <= 0 {
		window = a.minWait
	}
	wait := time.Duration(rand.Int63n(int64(window))) + a.minWait

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseJSONLoose tolerates near-JSON model output the way gjson's
// path-based access does, instead of failing a strict encoding/json
// Unmarshal over (for example) a response wrapped in markdown fences.
func parseJSONLoose(text string) any {
	body := strings.TrimSpace(text)
	if strings.HasPrefix(body, "```") {
		// Drop the opening fence line (``` or ```json); gjson ignores
		// whatever follows the document, closing fence included.
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		}
	}
	result := gjson.Parse(body)
	if result.IsObject() || result.IsArray() {
		return result.Value()
	}
	// Not a recognizable JSON document; fall back to the raw text so the
	// artifact is never silently dropped.
	return text
}
