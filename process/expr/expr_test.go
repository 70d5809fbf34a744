package expr

import (
	"testing"

	"github.com/dmoreira/graphflow/process/state"
)

func mustParse(t *testing.T, src string) *Expr {
	t.Helper()
	e, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return e
}

func TestEqualityAndBooleanOps(t *testing.T) {
	g := state.New()
	g.Quality["review_status"] = "APROVADO"
	g.Quality["attempts"] = float64(2)

	e := mustParse(t, `quality.review_status == "APROVADO" and quality.attempts < 5`)
	ok, err := e.Eval(g)
	if err != nil || !ok {
		t.Fatalf("expected true, got %v err=%v", ok, err)
	}

	e2 := mustParse(t, `quality.review_status == "REFINAR" or quality.attempts > 1`)
	ok2, err := e2.Eval(g)
	if err != nil || !ok2 {
		t.Fatalf("expected true via or, got %v err=%v", ok2, err)
	}
}

func TestIsNoneAndMissingPath(t *testing.T) {
	g := state.New()
	e := mustParse(t, `quality.error is None`)
	ok, err := e.Eval(g)
	if err != nil || !ok {
		t.Fatalf("missing path should read as None: %v %v", ok, err)
	}

	e2 := mustParse(t, `quality.error is not None`)
	ok2, _ := e2.Eval(g)
	if ok2 {
		t.Fatalf("is not None should be false when path missing")
	}

	g.Quality["error"] = "boom"
	ok3, _ := e2.Eval(g)
	if !ok3 {
		t.Fatalf("is not None should be true once set")
	}
}

func TestLenAndBracketPath(t *testing.T) {
	g := state.New()
	g.Artifacts["copy_principal"] = "a long piece of text well over fifty characters in length"

	e := mustParse(t, `len(artifacts.copy_principal) > 50`)
	ok, err := e.Eval(g)
	if err != nil || !ok {
		t.Fatalf("expected len comparison true: %v %v", ok, err)
	}

	g.Context["meta"] = map[string]any{"lang": "pt-BR"}
	e2 := mustParse(t, `context.meta["lang"] == "pt-BR"`)
	ok2, err := e2.Eval(g)
	if err != nil || !ok2 {
		t.Fatalf("bracket path lookup failed: %v %v", ok2, err)
	}
}

func TestNotAndParentheses(t *testing.T) {
	g := state.New()
	g.Quality["review_status"] = "REFINAR"

	e := mustParse(t, `not (quality.review_status == "APROVADO")`)
	ok, err := e.Eval(g)
	if err != nil || !ok {
		t.Fatalf("expected not(...) to be true: %v %v", ok, err)
	}
}

func TestSingleComparisonOnlyNoChaining(t *testing.T) {
	_, err := Parse(`quality.attempts > 1 > 0`)
	if err == nil {
		t.Fatalf("expected chained comparison to be rejected")
	}
}

func TestForbiddenRootIsRejected(t *testing.T) {
	_, err := Parse(`messages.foo == "x"`)
	if err == nil {
		t.Fatalf("expected unknown root to be rejected")
	}
}

func TestOrderingAgainstNullIsFalseNotError(t *testing.T) {
	g := state.New()
	e := mustParse(t, `quality.attempts < 3`)
	ok, err := e.Eval(g)
	if err != nil {
		t.Fatalf("ordering against a missing path must not raise: %v", err)
	}
	if ok {
		t.Fatalf("ordering against null must be false")
	}
}

func TestOrderingIncompatibleTypesIsExpressionError(t *testing.T) {
	g := state.New()
	g.Quality["score"] = float64(10)

	e := mustParse(t, `quality.score < "text"`)
	_, err := e.Eval(g)
	if err == nil {
		t.Fatalf("ordering a number against a string must raise an expression error")
	}
	if _, ok := err.(*Error); !ok {
		t.Fatalf("expected *Error, got %T", err)
	}

	// Equality across incompatible types stays well-defined.
	eq := mustParse(t, `quality.score != "text"`)
	ok, err := eq.Eval(g)
	if err != nil || !ok {
		t.Fatalf("inequality across types should be true without error: %v %v", ok, err)
	}
}

func TestSyntaxErrorSurfacesAsExpressionError(t *testing.T) {
	_, err := Parse(`quality.status ==`)
	if err == nil {
		t.Fatalf("expected syntax error")
	}
	if _, ok := err.(*Error); !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
}
