package dbcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// REST counts rows through a PostgREST-compatible data API, as exposed by
// Supabase under /rest/v1.
type REST struct {
	base string
	key  string
	http *http.Client
}

// NewREST creates a REST verifier. The key is sent both as apikey and as
// a bearer token, which is what Supabase expects for service keys.
func NewREST(baseURL, key string, timeout time.Duration) (*REST, error) {
	if baseURL == "" {
		return nil, ErrNotConfigured
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &REST{
		base: strings.TrimRight(baseURL, "/"),
		key:  key,
		http: &http.Client{Timeout: timeout},
	}, nil
}

// Count asks for an exact count and reads it from Content-Range.
func (r *REST) Count(ctx context.Context, table string, filters map[string]string) (int, error) {
	q := url.Values{}
	q.Set("select", "*")
	for _, col := range sortedKeys(filters) {
		q.Set(col, "eq."+filters[col])
	}
	target := fmt.Sprintf("%s/rest/v1/%s?%s", r.base, url.PathEscape(table), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("building count request: %w", err)
	}
	if r.key != "" {
		req.Header.Set("apikey", r.key)
		req.Header.Set("Authorization", "Bearer "+r.key)
	}
	req.Header.Set("Prefer", "count=exact")
	req.Header.Set("Range-Unit", "items")
	req.Header.Set("Range", "0-0")

	resp, err := r.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("counting %s: status %d: %s", table, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return parseContentRange(resp.Header.Get("Content-Range"))
}

// Close is a no-op.
func (r *REST) Close() {}

// parseContentRange extracts the total from "0-0/42" or "*/0".
func parseContentRange(v string) (int, error) {
	_, total, found := strings.Cut(v, "/")
	if !found || total == "*" {
		return 0, fmt.Errorf("content-range %q carries no exact count", v)
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("parsing content-range %q: %w", v, err)
	}
	return n, nil
}
