package cache

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	bserrors "github.com/botscope/botscope/pkg/errors"
)

// QueryResult holds the rows of an artifact query.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// QueryStep runs query against the artifacts of stepID in an in-memory
// DuckDB. Each artifact is exposed as a view named after its file stem, so
// "users.parquet" is queried as "users".
func (c *Cache) QueryStep(ctx context.Context, stepID, query string) (*QueryResult, error) {
	files, err := c.Artifacts(stepID)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer db.Close()

	// Views live in the connection's catalog; pin one connection for the
	// whole call.
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("open DuckDB connection: %w", err)
	}
	defer conn.Close()

	for _, name := range files {
		path := filepath.Join(c.StepDir(stepID), name)
		stmt := fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM read_parquet(%s)",
			quoteIdent(strings.TrimSuffix(name, Ext)), quoteLiteral(path))
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return nil, bserrors.ParseError("parquet", path, err)
		}
	}

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	res := &QueryResult{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return res, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
