// Package dbcheck verifies side effects of probes directly in the store
// backing the API under test, either over a Postgres connection or through
// a Supabase/PostgREST data API.
package dbcheck

import (
	"context"
	"errors"
	"sort"

	"github.com/wondertwin-ai/apiprobe/internal/config"
)

// ErrNotConfigured is returned by Open when neither a database URL nor a
// REST endpoint is configured.
var ErrNotConfigured = errors.New("no backing store configured")

// Verifier counts rows matching equality filters.
type Verifier interface {
	Count(ctx context.Context, table string, filters map[string]string) (int, error)
	Close()
}

// Open picks a Verifier from cfg. A database URL wins over a REST endpoint.
func Open(ctx context.Context, cfg *config.Config) (Verifier, error) {
	switch {
	case cfg.Database.URL != "":
		pg, err := NewPostgres(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case cfg.REST.URL != "":
		rest, err := NewREST(cfg.REST.URL, cfg.REST.Key, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return rest, nil
	default:
		return nil, ErrNotConfigured
	}
}

func sortedKeys(filters map[string]string) []string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
