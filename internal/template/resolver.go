// Package template substitutes {{path.to.value}} tokens in step parameters
// by walking the execution state. Resolution is deliberately fail-open:
// a reference into state that does not exist becomes null plus a trace
// warning, never an error. Optional enrichment data must not abort a pattern.
package template

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	openMarker  = "{{"
	closeMarker = "}}"
)

// Warning describes one unresolvable reference encountered during resolution.
type Warning struct {
	Path    string
	Message string
}

// LookupPath resolves a dotted path against state: the first segment is a
// top-level state key, subsequent segments walk nested mappings. Returns
// (value, true) on success, (nil, false) when any segment is missing or a
// non-mapping value is traversed into.
func LookupPath(state map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	if len(segments) == 0 || segments[0] == "" {
		return nil, false
	}

	current, ok := state[segments[0]]
	if !ok {
		return nil, false
	}

	for _, seg := range segments[1:] {
		if seg == "" {
			return nil, false
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// HasTemplate reports whether a string contains any {{...}} token.
func HasTemplate(s string) bool {
	return strings.Contains(s, openMarker)
}

// Resolve substitutes every {{...}} token in a parameter string. When the
// whole string is exactly one token, the resolved value is returned with its
// type preserved; otherwise tokens are stringified into the surrounding text.
// Unresolvable references substitute null (typed) or "null" (interpolated).
func Resolve(param string, state map[string]any) (any, []Warning) {
	if !HasTemplate(param) {
		return param, nil
	}

	// Whole-string single token: preserve the resolved value's type.
	if path, ok := soleToken(param); ok {
		val, found := LookupPath(state, path)
		if !found {
			return nil, []Warning{{
				Path:    path,
				Message: fmt.Sprintf("state path %q not found; substituting null", path),
			}}
		}
		return val, nil
	}

	return interpolate(param, state)
}

// ResolveString substitutes tokens and always returns a string, regardless of
// token position. Used for condition strings, which the evaluator parses as
// text: string values are spliced in quoted so "{{status}} == 'ready'" becomes
// "'ready' == 'ready'" rather than a bare reference the parser would reject.
func ResolveString(s string, state map[string]any) (string, []Warning) {
	if !HasTemplate(s) {
		return s, nil
	}
	return interpolateWith(s, state, quoteForCondition)
}

// ResolveParams resolves every string-valued parameter, recursing into nested
// maps and slices so templated values inside structured params are reached.
func ResolveParams(params map[string]any, state map[string]any) (map[string]any, []Warning) {
	if len(params) == 0 {
		return map[string]any{}, nil
	}

	resolved := make(map[string]any, len(params))
	var warnings []Warning
	for name, value := range params {
		out, w := resolveValue(value, state)
		resolved[name] = out
		warnings = append(warnings, w...)
	}
	return resolved, warnings
}

func resolveValue(value any, state map[string]any) (any, []Warning) {
	switch v := value.(type) {
	case string:
		return Resolve(v, state)
	case map[string]any:
		return ResolveParams(v, state)
	case []any:
		out := make([]any, len(v))
		var warnings []Warning
		for i, item := range v {
			r, w := resolveValue(item, state)
			out[i] = r
			warnings = append(warnings, w...)
		}
		return out, warnings
	default:
		return value, nil
	}
}

// soleToken returns the inner path when the entire string is one {{...}} token.
func soleToken(param string) (string, bool) {
	trimmed := strings.TrimSpace(param)
	if !strings.HasPrefix(trimmed, openMarker) || !strings.HasSuffix(trimmed, closeMarker) {
		return "", false
	}
	inner := trimmed[len(openMarker) : len(trimmed)-len(closeMarker)]
	// A second opening marker means this is interpolation, not a sole token.
	if strings.Contains(inner, openMarker) || strings.Contains(inner, closeMarker) {
		return "", false
	}
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return "", false
	}
	return inner, true
}

// interpolate scans for {{...}} tokens and splices their string forms into
// the surrounding text. Unclosed or empty tokens pass through verbatim.
func interpolate(input string, state map[string]any) (string, []Warning) {
	return interpolateWith(input, state, stringify)
}

func interpolateWith(input string, state map[string]any, render func(any) string) (string, []Warning) {
	var result strings.Builder
	result.Grow(len(input))

	var warnings []Warning
	i := 0
	for i < len(input) {
		idx := strings.Index(input[i:], openMarker)
		if idx == -1 {
			result.WriteString(input[i:])
			break
		}

		result.WriteString(input[i : i+idx])
		start := i + idx + len(openMarker)

		end := strings.Index(input[start:], closeMarker)
		if end == -1 {
			// Unclosed token: keep the rest of the string as-is.
			result.WriteString(input[i+idx:])
			break
		}
		end += start

		path := strings.TrimSpace(input[start:end])
		if path == "" {
			result.WriteString(input[i+idx : end+len(closeMarker)])
			i = end + len(closeMarker)
			continue
		}

		val, found := LookupPath(state, path)
		if !found {
			warnings = append(warnings, Warning{
				Path:    path,
				Message: fmt.Sprintf("state path %q not found; substituting null", path),
			})
			result.WriteString("null")
		} else {
			result.WriteString(render(val))
		}

		i = end + len(closeMarker)
	}

	return result.String(), warnings
}

// quoteForCondition renders a value for splicing into a condition string.
// Strings are quoted in whichever of the grammar's two quote styles the value
// does not contain; a value containing both embeds bare, which the evaluator
// fails closed on. Non-strings keep the literal forms the grammar accepts.
func quoteForCondition(val any) string {
	s, ok := val.(string)
	if !ok {
		return stringify(val)
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return s
}

// stringify converts a resolved value into its inline string representation.
// Strings embed without quotes; structured values embed as JSON.
func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
