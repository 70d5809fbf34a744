package state

import (
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

// 属性测试：深合并代数在任意嵌套树上都要成立，不只是手写用例。

func keyGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z]{1,6}`)
}

func scalarGen() *rapid.Generator[any] {
	return rapid.OneOf(
		rapid.StringMatching(`[a-z ]{0,10}`).AsAny(),
		rapid.IntRange(-100, 100).AsAny(),
		rapid.Bool().AsAny(),
	)
}

func valueGen(depth int) *rapid.Generator[any] {
	if depth <= 0 {
		return scalarGen()
	}
	return rapid.OneOf(
		scalarGen(),
		rapid.SliceOfN(scalarGen(), 0, 3).AsAny(),
		rapid.MapOfN(keyGen(), valueGen(depth-1), 0, 4).AsAny(),
	)
}

func sectionGen() *rapid.Generator[map[string]any] {
	return rapid.MapOfN(keyGen(), valueGen(2), 0, 5)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return t
	}
}

func TestPropApplyEmptyDeltaIsIdentity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		g := New()
		g.Context = sectionGen().Draw(rt, "context")
		g.Artifacts = sectionGen().Draw(rt, "artifacts")
		g.Quality = sectionGen().Draw(rt, "quality")

		next := Apply(g, Delta{})

		if !reflect.DeepEqual(g.Context, next.Context) ||
			!reflect.DeepEqual(g.Artifacts, next.Artifacts) ||
			!reflect.DeepEqual(g.Quality, next.Quality) ||
			len(next.Messages) != len(g.Messages) {
			rt.Fatalf("empty delta changed the state:\nbefore=%+v\nafter=%+v", g, next)
		}
	})
}

func TestPropDeepMergeIsRightBiasedAndKeyComplete(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := sectionGen().Draw(rt, "a")
		b := sectionGen().Draw(rt, "b")

		merged := deepMerge(a, b)

		for k := range a {
			if _, ok := merged[k]; !ok {
				rt.Fatalf("key %q from the left side lost", k)
			}
		}
		for k, vb := range b {
			vm, ok := merged[k]
			if !ok {
				rt.Fatalf("key %q from the right side lost", k)
			}
			_, aIsMap := a[k].(map[string]any)
			_, bIsMap := vb.(map[string]any)
			if !(aIsMap && bIsMap) && !reflect.DeepEqual(vm, vb) {
				rt.Fatalf("right side must win at %q: got %v want %v", k, vm, vb)
			}
		}
	})
}

func TestPropDeepMergeNeverMutatesInputs(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := sectionGen().Draw(rt, "a")
		b := sectionGen().Draw(rt, "b")
		aSnap := deepCopyMap(a)
		bSnap := deepCopyMap(b)

		_ = deepMerge(a, b)

		if !reflect.DeepEqual(a, aSnap) {
			rt.Fatalf("left input mutated")
		}
		if !reflect.DeepEqual(b, bSnap) {
			rt.Fatalf("right input mutated")
		}
	})
}
