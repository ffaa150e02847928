package scenario

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/wondertwin-ai/apiprobe/internal/jsonpath"
)

// EvaluateBodyAssertions evaluates JSONPath-based body assertions against a
// decoded response body. Paths are checked in sorted order so the first
// reported failure is stable.
func EvaluateBodyAssertions(doc any, assertions map[string]any) error {
	paths := make([]string, 0, len(assertions))
	for p := range assertions {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := evaluateOne(doc, path, assertions[path]); err != nil {
			return err
		}
	}
	return nil
}

func evaluateOne(doc any, path string, expected any) error {
	results, err := jsonpath.Get(doc, path)
	if err != nil {
		return fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}

	if opMap, ok := expected.(map[string]any); ok {
		return evaluateOperators(path, results, opMap)
	}

	if len(results) == 0 {
		return fmt.Errorf("JSONPath %q: no match found", path)
	}
	if !valuesEqual(results[0], expected) {
		return fmt.Errorf("JSONPath %q: expected %v (%T), got %v (%T)", path, expected, expected, results[0], results[0])
	}
	return nil
}

// evaluateOperators processes operator-based assertions like {"eq": v},
// {"gte": n}. Operators run in sorted order.
func evaluateOperators(path string, results []any, ops map[string]any) error {
	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)

	for _, op := range names {
		expected := ops[op]
		if op == "exists" {
			wantExists, ok := expected.(bool)
			if !ok {
				return fmt.Errorf("JSONPath %q: 'exists' operator requires a boolean value", path)
			}
			hasResults := len(results) > 0
			if wantExists && !hasResults {
				return fmt.Errorf("JSONPath %q: expected to exist but no match found", path)
			}
			if !wantExists && hasResults {
				return fmt.Errorf("JSONPath %q: expected not to exist but found %v", path, results[0])
			}
			continue
		}

		if len(results) == 0 {
			return fmt.Errorf("JSONPath %q: no match found for '%s' check", path, op)
		}
		actual := results[0]

		switch op {
		case "eq":
			if !valuesEqual(actual, expected) {
				return fmt.Errorf("JSONPath %q: expected eq %v, got %v", path, expected, actual)
			}

		case "ne":
			if valuesEqual(actual, expected) {
				return fmt.Errorf("JSONPath %q: expected ne %v, got %v", path, expected, actual)
			}

		case "gte", "lte":
			actualNum, err := toFloat64(actual)
			if err != nil {
				return fmt.Errorf("JSONPath %q: '%s' requires numeric actual value: %w", path, op, err)
			}
			expectedNum, err := toFloat64(expected)
			if err != nil {
				return fmt.Errorf("JSONPath %q: '%s' requires numeric expected value: %w", path, op, err)
			}
			if op == "gte" && actualNum < expectedNum {
				return fmt.Errorf("JSONPath %q: expected >= %v, got %v", path, expectedNum, actualNum)
			}
			if op == "lte" && actualNum > expectedNum {
				return fmt.Errorf("JSONPath %q: expected <= %v, got %v", path, expectedNum, actualNum)
			}

		case "contains":
			if !containsValue(actual, expected) {
				return fmt.Errorf("JSONPath %q: expected to contain %v, got %v", path, expected, actual)
			}

		case "regex":
			pattern, ok := expected.(string)
			if !ok {
				return fmt.Errorf("JSONPath %q: 'regex' operator requires a string pattern", path)
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("JSONPath %q: invalid regex pattern %q: %w", path, pattern, err)
			}
			if s := formatValue(actual); !re.MatchString(s) {
				return fmt.Errorf("JSONPath %q: value %q does not match regex %q", path, s, pattern)
			}

		default:
			return fmt.Errorf("JSONPath %q: unknown operator %q", path, op)
		}
	}
	return nil
}

// containsValue is substring match for scalars and membership for arrays.
func containsValue(actual, expected any) bool {
	if arr, ok := actual.([]any); ok {
		for _, item := range arr {
			if valuesEqual(item, expected) {
				return true
			}
		}
		return false
	}
	return strings.Contains(formatValue(actual), formatValue(expected))
}

// valuesEqual compares two values, coercing numbers. A number never equals
// a non-number.
func valuesEqual(actual, expected any) bool {
	actualNum, aErr := toFloat64(actual)
	expectedNum, eErr := toFloat64(expected)
	if aErr == nil && eErr == nil {
		return actualNum == expectedNum
	}
	if (aErr == nil) != (eErr == nil) {
		return false
	}
	return formatValue(actual) == formatValue(expected)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}

// formatValue renders a decoded value for templates and string matching.
// Whole floats print without a fraction so numeric IDs survive capture.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
