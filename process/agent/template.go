package agent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmoreira/graphflow/process/state"
)

// renderTemplate substitutes bracketed placeholders of the form
// {context[key]}, {artifacts[key]} or {quality[key]} -- with nested
// access via repeated [k] -- against the given state. A missing key at
// any level of the path substitutes the empty string rather than
// failing, so a prompt referencing an artifact no earlier agent has
// produced yet degrades gracefully instead of erroring out.
func renderTemplate(tmpl string, s state.Global) string {
	var out strings.Builder
	i := 0
	for i < len(tmpl) {
		if tmpl[i] != '{' {
			out.WriteByte(tmpl[i])
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i:], '}')
		if end < 0 {
			out.WriteString(tmpl[i:])
			break
		}
		end += i
		expr := tmpl[i+1 : end]
		if rendered, ok := renderPlaceholder(expr, s); ok {
			out.WriteString(rendered)
		} else {
			out.WriteByte('{')
			out.WriteString(expr)
			out.WriteByte('}')
		}
		i = end + 1
	}
	return out.String()
}

// renderPlaceholder parses one root[k1][k2]... expression and resolves
// it against state. ok is false when expr doesn't look like a
// placeholder at all, so literal braces in a template pass through
// unchanged.
func renderPlaceholder(expr string, s state.Global) (string, bool) {
	root, rest, ok := splitRoot(expr)
	if !ok {
		return "", false
	}

	var section map[string]any
	switch root {
	case "context":
		section = s.Context
	case "artifacts":
		section = s.Artifacts
	case "quality":
		section = s.Quality
	default:
		return "", false
	}

	keys, ok := parseBracketKeys(rest)
	if !ok {
		return "", false
	}

	var cur any = section
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", true // missing path -> empty string, still a placeholder
		}
		v, present := m[k]
		if !present {
			return "", true
		}
		cur = v
	}
	return stringify(cur), true
}

func splitRoot(expr string) (root, rest string, ok bool) {
	idx := strings.IndexByte(expr, '[')
	if idx < 0 {
		return "", "", false
	}
	return expr[:idx], expr[idx:], true
}

func parseBracketKeys(s string) ([]string, bool) {
	var keys []string
	for len(s) > 0 {
		if s[0] != '[' {
			return nil, false
		}
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return nil, false
		}
		keys = append(keys, s[1:end])
		s = s[end+1:]
	}
	if len(keys) == 0 {
		return nil, false
	}
	return keys, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
