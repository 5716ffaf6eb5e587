package backends

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// DatabaseHandler executes single-statement operations against the
// configured relational database. Driver registration (sqlite3, postgres) is
// the caller's responsibility.
type DatabaseHandler struct {
	db *sql.DB
}

// NewDatabaseHandler creates a handler over an open database.
func NewDatabaseHandler(db *sql.DB) *DatabaseHandler {
	return &DatabaseHandler{db: db}
}

func (h *DatabaseHandler) Execute(ctx context.Context, action string, params domain.OperationParams) (*Result, error) {
	p, ok := params.(domain.DatabaseParams)
	if !ok {
		return nil, fmt.Errorf("database: unexpected params type %T", params)
	}
	if strings.TrimSpace(p.Statement) == "" {
		return nil, fmt.Errorf("database: statement is required")
	}
	if err := singleStatement(p.Statement); err != nil {
		return nil, err
	}

	switch action {
	case "query":
		rows, err := h.db.QueryContext(ctx, p.Statement, p.Args...)
		if err != nil {
			return nil, fmt.Errorf("database query: %w", err)
		}
		defer rows.Close()

		records, err := scanRows(rows)
		if err != nil {
			return nil, fmt.Errorf("database query: %w", err)
		}
		return &Result{
			Output: map[string]any{"rows": records, "count": len(records)},
		}, nil

	case "exec", "migrate":
		res, err := h.db.ExecContext(ctx, p.Statement, p.Args...)
		if err != nil {
			return nil, fmt.Errorf("database %s: %w", action, err)
		}
		affected, _ := res.RowsAffected()
		return &Result{
			Output: map[string]any{"rowsAffected": affected},
		}, nil

	default:
		return nil, fmt.Errorf("%w: database %q", domain.ErrUnknownAction, action)
	}
}

// singleStatement rejects stacked statements; one instruction runs exactly
// one statement.
func singleStatement(stmt string) error {
	trimmed := strings.TrimRight(strings.TrimSpace(stmt), ";")
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("database: multiple statements are not allowed")
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	records := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
