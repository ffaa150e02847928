// Package report summarizes a probe run: totals, pass rate, per-category
// counts and the list of failures.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wondertwin-ai/apiprobe/internal/harness"
)

// DefaultThreshold is the pass rate a run needs to exit 0.
const DefaultThreshold = 0.8

// OtherCategory collects results that match no configured category.
const OtherCategory = "Other"

// Category is the tally for one category.
type Category struct {
	Name   string `json:"name"`
	Run    int    `json:"run"`
	Passed int    `json:"passed"`
}

// Summary is the outcome of a run.
type Summary struct {
	Run        int              `json:"run"`
	Passed     int              `json:"passed"`
	Failed     int              `json:"failed"`
	Rate       float64          `json:"rate"`
	Categories []Category       `json:"categories"`
	Failures   []harness.Result `json:"failures"`
	Results    []harness.Result `json:"results"`
}

// Summarize tallies results. A result belongs to the category its name
// starts with, else the category named like its suite, else the first
// category whose name occurs anywhere in the result name, else Other.
// All matching is case-insensitive.
func Summarize(results []harness.Result, categories []string) Summary {
	s := Summary{
		Run:      len(results),
		Failures: make([]harness.Result, 0),
		Results:  results,
	}

	tally := make(map[string]*Category, len(categories)+1)
	order := make([]string, 0, len(categories)+1)
	bucket := func(name string) *Category {
		if c, ok := tally[name]; ok {
			return c
		}
		c := &Category{Name: name}
		tally[name] = c
		order = append(order, name)
		return c
	}
	for _, name := range categories {
		bucket(name)
	}

	for _, res := range results {
		c := bucket(categorize(res, categories))
		c.Run++
		if res.Success {
			c.Passed++
			s.Passed++
		} else {
			s.Failures = append(s.Failures, res)
		}
	}
	s.Failed = s.Run - s.Passed
	if s.Run > 0 {
		s.Rate = float64(s.Passed) / float64(s.Run)
	}

	for _, name := range order {
		if c := tally[name]; c.Run > 0 {
			s.Categories = append(s.Categories, *c)
		}
	}
	return s
}

func categorize(res harness.Result, categories []string) string {
	name := strings.ToLower(res.Name)
	for _, c := range categories {
		lc := strings.ToLower(c)
		if rest, ok := strings.CutPrefix(name, lc); ok && (rest == "" || !isWordChar(rest[0])) {
			return c
		}
	}
	for _, c := range categories {
		if res.Suite != "" && strings.EqualFold(res.Suite, c) {
			return c
		}
	}
	for _, c := range categories {
		if strings.Contains(name, strings.ToLower(c)) {
			return c
		}
	}
	return OtherCategory
}

func isWordChar(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// Print writes the human-readable summary.
func Print(w io.Writer, s Summary) {
	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(w, "Results: %d/%d passed", s.Passed, s.Run)
	if s.Run > 0 {
		fmt.Fprintf(w, " (%.1f%%)", s.Rate*100)
	}
	fmt.Fprintln(w)

	if len(s.Categories) > 0 {
		fmt.Fprintln(w, "\nBy category:")
		for _, c := range s.Categories {
			fmt.Fprintf(w, "  %-12s %d/%d\n", c.Name, c.Passed, c.Run)
		}
	}

	if len(s.Failures) > 0 {
		fmt.Fprintln(w, "\nFailed:")
		for _, f := range s.Failures {
			fmt.Fprintf(w, "  FAIL  %-50s %s\n", f.Name, f.Details)
		}
	}
}

// ExitCode returns 0 when at least one check ran and the pass rate reaches
// threshold, 1 otherwise.
func ExitCode(s Summary, threshold float64) int {
	if s.Run > 0 && s.Rate >= threshold {
		return 0
	}
	return 1
}

// WriteJSON writes the summary to path, for CI consumption.
func WriteJSON(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}
