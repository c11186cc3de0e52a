// Package salesdata wraps the Contoso sales SQLite database: schema
// description for the agent instructions and read-only query execution for
// the fetch_sales_data function tool.
package salesdata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Engine is a read-only handle on the sales database.
type Engine struct {
	path string
	db   *sql.DB
}

// New creates an Engine for the database at path. Connect must be called
// before any query.
func New(path string) *Engine {
	return &Engine{path: path}
}

// Connect opens the database read-only and verifies it is reachable.
func (e *Engine) Connect(ctx context.Context) error {
	db, err := sql.Open("sqlite3", "file:"+e.path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open database %s: %w", e.path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database %s: %w", e.path, err)
	}
	e.db = db
	return nil
}

// Close releases the database handle.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

// SchemaDescription renders every table and its columns as text suitable for
// substitution into the agent instructions.
func (e *Engine) SchemaDescription(ctx context.Context) (string, error) {
	if e.db == nil {
		return "", fmt.Errorf("database not connected")
	}

	rows, err := e.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}

	var sb strings.Builder
	for _, table := range tables {
		cols, err := e.tableColumns(ctx, table)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "Table: %s\nColumns: %s\n\n", table, strings.Join(cols, ", "))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (e *Engine) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("describe table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, fmt.Sprintf("%s (%s)", name, strings.ToLower(typ)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe table %s: %w", table, err)
	}
	return cols, nil
}

// maxQueryRows caps result sets returned to the agent.
const maxQueryRows = 1000

// Query executes a read-only SELECT and returns the rows as column-name to
// value maps, capped at maxQueryRows.
func (e *Engine) Query(ctx context.Context, query string) ([]map[string]any, error) {
	if e.db == nil {
		return nil, fmt.Errorf("database not connected")
	}

	trimmed := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(trimmed, "select") && !strings.HasPrefix(trimmed, "with") {
		return nil, fmt.Errorf("only SELECT queries are allowed")
	}

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []map[string]any
	values := make([]any, len(cols))
	scanArgs := make([]any, len(cols))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() && len(out) < maxQueryRows {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
