package scenario

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ExpandTemplates replaces template placeholders in a string:
//   - {{env.VARIABLE}} from environment variables
//   - {{uuid}} with a fresh random UUID
//   - {{name}} from vars (scenario variables, captures, base_url, email)
func ExpandTemplates(s string, vars map[string]string) (string, error) {
	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			return "", fmt.Errorf("unterminated template expression in %q", s)
		}
		end += start

		value, err := resolveExpr(strings.TrimSpace(rest[start+2:end]), vars)
		if err != nil {
			return "", err
		}
		b.WriteString(rest[:start])
		b.WriteString(value)
		rest = rest[end+2:]
	}
	return b.String(), nil
}

// ExpandVariables expands the scenario variables defs into vars. A variable
// may reference other variables; they are expanded in dependency order. A
// variable referencing its own name sees the value already in vars.
func ExpandVariables(defs, vars map[string]string) error {
	pending := make(map[string]bool, len(defs))
	for k := range defs {
		pending[k] = true
	}
	for len(pending) > 0 {
		var ready []string
		for k := range pending {
			blocked := false
			for _, ref := range templateRefs(defs[k]) {
				if ref != k && pending[ref] {
					blocked = true
					break
				}
			}
			if !blocked {
				ready = append(ready, k)
			}
		}
		if len(ready) == 0 {
			names := make([]string, 0, len(pending))
			for k := range pending {
				names = append(names, k)
			}
			sort.Strings(names)
			return fmt.Errorf("variables %s reference each other", strings.Join(names, ", "))
		}
		sort.Strings(ready)
		for _, k := range ready {
			v, err := ExpandTemplates(defs[k], vars)
			if err != nil {
				return fmt.Errorf("variable %q: %w", k, err)
			}
			vars[k] = v
			delete(pending, k)
		}
	}
	return nil
}

// templateRefs returns the variable names s refers to, leaving out
// {{env.X}} and {{uuid}}.
func templateRefs(s string) []string {
	var refs []string
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			return refs
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			return refs
		}
		end += start
		expr := strings.TrimSpace(rest[start+2 : end])
		if expr != "uuid" && !strings.HasPrefix(expr, "env.") {
			refs = append(refs, expr)
		}
		rest = rest[end+2:]
	}
}

func resolveExpr(expr string, vars map[string]string) (string, error) {
	if key, ok := strings.CutPrefix(expr, "env."); ok {
		return os.Getenv(key), nil
	}
	if expr == "uuid" {
		return uuid.NewString(), nil
	}
	if val, ok := vars[expr]; ok {
		return val, nil
	}
	return "", fmt.Errorf("unresolved template expression: %q", expr)
}

// expandValue expands templates in every string inside a decoded JSON or
// YAML value. Keys are left alone.
func expandValue(v any, vars map[string]string) (any, error) {
	switch t := v.(type) {
	case string:
		return ExpandTemplates(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			expanded, err := expandValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			expanded, err := expandValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return v, nil
	}
}

func expandMap(m map[string]string, vars map[string]string) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		expanded, err := ExpandTemplates(v, vars)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = expanded
	}
	return out, nil
}
