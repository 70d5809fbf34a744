package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmoreira/graphflow/llmclient"
	"github.com/dmoreira/graphflow/process/state"
	"github.com/dmoreira/graphflow/process/tools"
)

func seededState() state.Global {
	s := state.New()
	s.Context["briefing"] = "launch briefing"
	return s
}

func TestLLMAgentWritesArtifactAndAudit(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{{content: "the copy"}}}
	a := NewLLMAgent(LLMConfig{
		Name:           "generate",
		ModelName:      "test-model",
		PromptTemplate: "Write from {context[briefing]}",
		OutputKey:      "copy_principal",
	}, provider, nil)

	delta, err := a.Execute(context.Background(), seededState())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if delta.Artifacts["copy_principal"] != "the copy" {
		t.Fatalf("artifact not written: %+v", delta.Artifacts)
	}
	if len(provider.captured) != 1 || !strings.Contains(provider.captured[0].Messages[0].Content, "launch briefing") {
		t.Fatalf("prompt not rendered against state: %+v", provider.captured)
	}
	if len(delta.Messages) != 1 || delta.Messages[0]["agent"] != "generate" {
		t.Fatalf("audit message missing: %+v", delta.Messages)
	}
}

func TestLLMAgentFailureBecomesQualityErrorNotError(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{{err: errors.New("rate limited")}}}
	a := NewLLMAgent(LLMConfig{
		Name: "generate", ModelName: "test-model",
		PromptTemplate: "p", OutputKey: "out",
	}, provider, nil).WithRetrySchedule(1, time.Millisecond, time.Millisecond)

	delta, err := a.Execute(context.Background(), seededState())
	if err != nil {
		t.Fatalf("faults must be folded into the delta, not returned: %v", err)
	}
	errMsg, _ := delta.Quality["error"].(string)
	if !strings.Contains(errMsg, "LLM invocation failed") || !strings.Contains(errMsg, "rate limited") {
		t.Fatalf("unexpected error marker %q", errMsg)
	}
	if delta.Artifacts != nil {
		t.Fatalf("no artifact may be written on failure")
	}
}

func TestLLMAgentRetriesUntilSuccess(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{
		{err: errors.New("transient")},
		{content: "second try"},
	}}
	a := NewLLMAgent(LLMConfig{
		Name: "generate", ModelName: "test-model",
		PromptTemplate: "p", OutputKey: "out",
	}, provider, nil).WithRetrySchedule(3, time.Millisecond, 2*time.Millisecond)

	delta, _ := a.Execute(context.Background(), seededState())
	if delta.Artifacts["out"] != "second try" {
		t.Fatalf("expected the retry to succeed: %+v", delta)
	}
	if provider.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", provider.calls)
	}
}

func TestLLMAgentForceJSONParsesStructuredOutput(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{{content: `{"headline": "Buy now", "score": 9}`}}}
	a := NewLLMAgent(LLMConfig{
		Name: "generate", ModelName: "test-model",
		PromptTemplate: "p", OutputKey: "out", ForceJSONOutput: true,
	}, provider, nil)

	delta, _ := a.Execute(context.Background(), seededState())
	obj, ok := delta.Artifacts["out"].(map[string]any)
	if !ok {
		t.Fatalf("expected structured artifact, got %T", delta.Artifacts["out"])
	}
	if obj["headline"] != "Buy now" {
		t.Fatalf("unexpected parse: %+v", obj)
	}
	if !provider.captured[0].JSONMode {
		t.Fatalf("JSON mode flag must be forwarded to the provider")
	}
}

func TestDeterministicAgentReturnsFunctionDelta(t *testing.T) {
	reg := tools.NewRegistry()
	reg.RegisterFunction("stamp", func(ctx context.Context, s state.Global) (state.Delta, error) {
		return state.Delta{Artifacts: map[string]any{"campaign_id": "c-1"}}, nil
	})
	a := NewDeterministicAgent("stamp_node", "stamp", reg)

	delta, err := a.Execute(context.Background(), seededState())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if delta.Artifacts["campaign_id"] != "c-1" {
		t.Fatalf("function delta not passed through: %+v", delta)
	}
}

func TestReflectionAgentClassifiesAndCountsAttempts(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{
		{content: "REFINAR: the hook is weak"},
		{content: "Looks great. APROVADO"},
	}}
	a := NewReflectionAgent(ReflectionConfig{
		Name: "review", ModelName: "test-model",
		PromptTemplate: "Review {artifacts[copy_principal]}",
	}, provider, nil, nil)

	s := seededState()
	first, _ := a.Execute(context.Background(), s)
	if first.Quality["review_status"] != "REFINAR" {
		t.Fatalf("expected REFINAR, got %v", first.Quality["review_status"])
	}
	if first.Quality["attempts"] != 1 {
		t.Fatalf("expected attempts=1 with no prior counter, got %v", first.Quality["attempts"])
	}

	s = state.Apply(s, first)
	second, _ := a.Execute(context.Background(), s)
	if second.Quality["review_status"] != "APROVADO" {
		t.Fatalf("expected APROVADO, got %v", second.Quality["review_status"])
	}
	if second.Quality["attempts"] != 2 {
		t.Fatalf("expected attempts=2, got %v", second.Quality["attempts"])
	}
	if second.Quality["feedback"] != "Looks great. APROVADO" {
		t.Fatalf("raw text must land in feedback: %v", second.Quality["feedback"])
	}
}

func TestReflectionAgentRulePathSkipsTheModel(t *testing.T) {
	reg := tools.NewRegistry()
	reg.RegisterFunction("length_rule", func(ctx context.Context, s state.Global) (state.Delta, error) {
		status := "REFINAR"
		if text, _ := s.Artifacts["copy_principal"].(string); len(text) > 10 {
			status = "APROVADO"
		}
		return state.Delta{Quality: map[string]any{"review_status": status}}, nil
	})
	provider := &fakeProvider{} // any model call would error: no scripted responses
	a := NewReflectionAgent(ReflectionConfig{Name: "review", Rule: "length_rule"}, provider, reg, nil)

	s := seededState()
	s.Artifacts["copy_principal"] = "a sufficiently long piece of copy"
	delta, err := a.Execute(context.Background(), s)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if delta.Quality["review_status"] != "APROVADO" {
		t.Fatalf("rule not applied: %+v", delta)
	}
	if provider.calls != 0 {
		t.Fatalf("the rule path must not call the model")
	}
}

func TestSupervisorAgentWritesNextAgent(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{{content: "worker_b\nbecause it is next"}}}
	a := NewSupervisorAgent(SupervisorConfig{
		Name: "boss", ModelName: "test-model",
		AvailableAgents: []string{"worker_a", "worker_b"},
		PromptTemplate:  "pick",
	}, provider, nil)

	delta, _ := a.Execute(context.Background(), seededState())
	if delta.Quality["next_agent"] != "worker_b" {
		t.Fatalf("expected worker_b, got %v", delta.Quality["next_agent"])
	}
}

func TestSupervisorAgentRejectsChoiceOutsideAvailable(t *testing.T) {
	provider := &fakeProvider{responses: []fakeResponse{{content: "intruder"}}}
	a := NewSupervisorAgent(SupervisorConfig{
		Name: "boss", ModelName: "test-model",
		AvailableAgents: []string{"worker_a"},
		PromptTemplate:  "pick",
	}, provider, nil)

	delta, _ := a.Execute(context.Background(), seededState())
	if _, ok := delta.Quality["next_agent"]; ok {
		t.Fatalf("an out-of-set choice must not be routed")
	}
	errMsg, _ := delta.Quality["error"].(string)
	if !strings.Contains(errMsg, "intruder") {
		t.Fatalf("expected the rejected choice in the error, got %q", errMsg)
	}
}

func TestToolUsingAgentRunsBoundedReactLoop(t *testing.T) {
	reg := tools.NewRegistry()
	reg.RegisterTool(tools.Tool{
		Name:        "lookup_price",
		Description: "Look up the product price",
		Act: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"price": 42}, nil
		},
	})
	provider := &fakeProvider{responses: []fakeResponse{
		{toolCalls: []llmclient.ToolCall{{ID: "t1", Name: "lookup_price", Arguments: toolArgs(map[string]any{"sku": "x"})}}},
		{content: "The product costs 42."},
	}}
	a := NewToolUsingAgent(ToolUsingConfig{
		Name: "pricer", ModelName: "test-model",
		Tools:          []string{"lookup_price"},
		PromptTemplate: "Price {context[briefing]}",
		OutputKey:      "price_answer",
	}, provider, reg, nil)

	delta, _ := a.Execute(context.Background(), seededState())
	if delta.Artifacts["price_answer"] != "The product costs 42." {
		t.Fatalf("final answer not captured: %+v", delta.Artifacts)
	}
	// The second request must carry the tool observation back to the model.
	second := provider.captured[1]
	found := false
	for _, m := range second.Messages {
		if m.Role == llmclient.RoleTool && strings.Contains(m.Content, "42") {
			found = true
		}
	}
	if !found {
		t.Fatalf("tool result not fed back as an observation: %+v", second.Messages)
	}
}

func TestToolUsingAgentStepCapBecomesQualityError(t *testing.T) {
	reg := tools.NewRegistry()
	reg.RegisterTool(tools.Tool{
		Name: "noop",
		Act: func(ctx context.Context, args map[string]any) (any, error) {
			return "nothing", nil
		},
	})
	// The model never stops asking for the tool.
	loop := fakeResponse{toolCalls: []llmclient.ToolCall{{ID: "t", Name: "noop", Arguments: toolArgs(nil)}}}
	provider := &fakeProvider{responses: []fakeResponse{loop, loop, loop}}
	a := NewToolUsingAgent(ToolUsingConfig{
		Name: "spinner", ModelName: "test-model",
		Tools:          []string{"noop"},
		PromptTemplate: "p",
		OutputKey:      "out",
		MaxSteps:       3,
	}, provider, reg, nil)

	delta, _ := a.Execute(context.Background(), seededState())
	errMsg, _ := delta.Quality["error"].(string)
	if !strings.Contains(errMsg, "max_steps") {
		t.Fatalf("expected a step-cap marker, got %q", errMsg)
	}
}
