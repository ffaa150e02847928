// Package jsonpath evaluates simple path expressions against decoded JSON.
//
// Supported forms: $.field, $.field.nested, $.array[0], $.array[0].field,
// $[1]. The leading "$." is optional, so "data.id" and "$.data.id" are equal.
package jsonpath

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Parse decodes a JSON body into a generic structure.
func Parse(body []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("response body is not valid JSON: %w", err)
	}
	return doc, nil
}

// Get evaluates path against doc. It returns a slice holding the matched
// value, or an empty slice when nothing matches. An error is returned only
// for malformed paths.
func Get(doc any, path string) ([]any, error) {
	rest := strings.TrimPrefix(path, "$")
	rest = strings.TrimPrefix(rest, ".")
	if rest == "" {
		return []any{doc}, nil
	}

	current := doc
	for _, seg := range splitSegments(rest) {
		if seg == "" {
			continue
		}

		field, indexes, err := parseSegment(seg)
		if err != nil {
			return nil, err
		}

		if field != "" {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, nil
			}
			val, ok := m[field]
			if !ok {
				return nil, nil
			}
			current = val
		}

		for _, idx := range indexes {
			arr, ok := current.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, nil
			}
			current = arr[idx]
		}
	}

	return []any{current}, nil
}

// Lookup returns the value at path and whether it exists. Malformed paths
// report false.
func Lookup(doc any, path string) (any, bool) {
	results, err := Get(doc, path)
	if err != nil || len(results) == 0 {
		return nil, false
	}
	return results[0], true
}

// Extract parses body and returns the value at path.
func Extract(body []byte, path string) (any, error) {
	doc, err := Parse(body)
	if err != nil {
		return nil, err
	}
	results, err := Get(doc, path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("path %q: no match found", path)
	}
	return results[0], nil
}

// parseSegment splits "items[0][1]" into "items" and [0 1].
func parseSegment(seg string) (string, []int, error) {
	open := strings.Index(seg, "[")
	if open < 0 {
		return seg, nil, nil
	}

	field := seg[:open]
	var indexes []int
	rest := seg[open:]
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("unexpected %q in segment %q", rest, seg)
		}
		end := strings.Index(rest, "]")
		if end < 0 {
			return "", nil, fmt.Errorf("unterminated index in segment %q", seg)
		}
		idx, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, fmt.Errorf("invalid array index in %q: %w", seg, err)
		}
		indexes = append(indexes, idx)
		rest = rest[end+1:]
	}
	return field, indexes, nil
}

// splitSegments splits "field.nested[0].name" on dots outside brackets.
func splitSegments(path string) []string {
	var segments []string
	var current strings.Builder
	depth := 0

	for _, ch := range path {
		switch ch {
		case '[':
			depth++
			current.WriteRune(ch)
		case ']':
			depth--
			current.WriteRune(ch)
		case '.':
			if depth == 0 {
				segments = append(segments, current.String())
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}
