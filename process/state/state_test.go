package state

import "testing"

func TestApplyEmptyDeltaIsNoop(t *testing.T) {
	g := WithContext(map[string]any{"brand": "acme"})
	g.Artifacts = deepMerge(g.Artifacts, map[string]any{"draft": "hello"})

	next := Apply(g, Delta{})

	if len(next.Context) != len(g.Context) || next.Context["brand"] != "acme" {
		t.Fatalf("context changed on empty delta: %v", next.Context)
	}
	if next.Artifacts["draft"] != "hello" {
		t.Fatalf("artifacts changed on empty delta: %v", next.Artifacts)
	}
	if len(next.Messages) != len(g.Messages) {
		t.Fatalf("messages changed on empty delta")
	}
}

func TestApplyDeepMergesNestedMaps(t *testing.T) {
	g := New()
	g = Apply(g, Delta{Context: map[string]any{
		"profile": map[string]any{"name": "ana", "age": 30},
	}})

	g = Apply(g, Delta{Context: map[string]any{
		"profile": map[string]any{"age": 31},
	}})

	profile := g.Context["profile"].(map[string]any)
	if profile["name"] != "ana" {
		t.Fatalf("sibling key lost on nested merge: %v", profile)
	}
	if profile["age"] != 31 {
		t.Fatalf("nested value not overwritten: %v", profile)
	}
}

func TestApplyScalarOverwritesMapAndViceVersa(t *testing.T) {
	g := New()
	g = Apply(g, Delta{Quality: map[string]any{"status": map[string]any{"code": "ok"}}})
	g = Apply(g, Delta{Quality: map[string]any{"status": "REFINAR"}})
	if g.Quality["status"] != "REFINAR" {
		t.Fatalf("scalar did not overwrite map: %v", g.Quality["status"])
	}

	g = Apply(g, Delta{Quality: map[string]any{"status": map[string]any{"code": "retry"}}})
	status, ok := g.Quality["status"].(map[string]any)
	if !ok || status["code"] != "retry" {
		t.Fatalf("map did not overwrite scalar: %v", g.Quality["status"])
	}
}

func TestApplyMessagesAppendNeverMerge(t *testing.T) {
	g := New()
	g = Apply(g, Delta{Messages: []map[string]any{{"agent": "a", "kind": "llm"}}})
	g = Apply(g, Delta{Messages: []map[string]any{{"agent": "b", "kind": "deterministic"}}})

	if len(g.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(g.Messages))
	}
	if g.Messages[0]["agent"] != "a" || g.Messages[1]["agent"] != "b" {
		t.Fatalf("message order not preserved: %v", g.Messages)
	}
}

func TestApplySequencesReplaceWholesale(t *testing.T) {
	g := New()
	g = Apply(g, Delta{Artifacts: map[string]any{"channels": []any{"email", "ads"}}})
	g = Apply(g, Delta{Artifacts: map[string]any{"channels": []any{"social"}}})

	channels := g.Artifacts["channels"].([]any)
	if len(channels) != 1 || channels[0] != "social" {
		t.Fatalf("sequences must be replaced, not concatenated: %v", channels)
	}
}

func TestApplyTwoDeltasEqualsApplyingTheirMerge(t *testing.T) {
	base := WithContext(map[string]any{"brand": "acme"})
	d1 := Delta{Quality: map[string]any{"review": map[string]any{"status": "REFINAR", "round": 1}}}
	d2 := Delta{Quality: map[string]any{"review": map[string]any{"status": "APROVADO"}}}

	sequential := Apply(Apply(base, d1), d2)
	merged := Apply(base, Delta{Quality: deepMerge(d1.Quality, d2.Quality)})

	sr := sequential.Quality["review"].(map[string]any)
	mr := merged.Quality["review"].(map[string]any)
	if sr["status"] != mr["status"] || sr["round"] != mr["round"] {
		t.Fatalf("delta composition broke: sequential=%v merged=%v", sr, mr)
	}
}

func TestApplyDoesNotMutatePrevious(t *testing.T) {
	g := New()
	g = Apply(g, Delta{Context: map[string]any{"k": "v"}})
	snapshot := g

	_ = Apply(g, Delta{Context: map[string]any{"k": "changed"}})

	if snapshot.Context["k"] != "v" {
		t.Fatalf("previous state mutated in place")
	}
}
