package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mcdev12/livepoll/go/internal/sqlutil"
)

// CreateSchema creates the archive tables.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	return sqlutil.Run(ctx, db, func(tx *sql.Tx) error {
		for _, stmt := range SchemaStatements(dialect) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create schema: %w", err)
			}
		}
		return nil
	})
}

// SchemaStatements returns the DDL for dialect, one statement per entry
func SchemaStatements(dialect Dialect) []string {
	var stmts []string
	for _, stmt := range strings.Split(strings.ReplaceAll(schema, "{{json}}", dialect.JSONType), ";") {
		if strings.TrimSpace(stmt) != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

const schema = `
CREATE TABLE IF NOT EXISTS poll_record (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    question TEXT NOT NULL,
    options {{json}} NOT NULL,
    answers {{json}},
    start_time_ms BIGINT NOT NULL,
    end_time_ms BIGINT NOT NULL,
    duration_ms BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_poll_record_end_time ON poll_record(end_time_ms);
CREATE INDEX IF NOT EXISTS idx_poll_record_session_id ON poll_record(session_id);
`
