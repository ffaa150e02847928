package dbcheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres counts rows over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to url and pings the server.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Count returns the number of rows in table whose columns equal filters.
func (p *Postgres) Count(ctx context.Context, table string, filters map[string]string) (int, error) {
	query, args := countQuery(table, filters)
	var n int
	if err := p.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// countQuery builds a parameterized count. Identifiers are quoted, values
// are always bound.
func countQuery(table string, filters map[string]string) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT count(*) FROM ")
	b.WriteString(pgx.Identifier(strings.Split(table, ".")).Sanitize())

	args := make([]any, 0, len(filters))
	for i, col := range sortedKeys(filters) {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, filters[col])
		fmt.Fprintf(&b, "%s = $%d", pgx.Identifier{col}.Sanitize(), len(args))
	}
	return b.String(), args
}
