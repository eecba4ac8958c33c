package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
	_ "modernc.org/sqlite"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/sqlutil"
)

// Dialect captures the differences between supported SQL backends
type Dialect struct {
	Name       string
	DriverName string
	JSONType   string
	Bind       sqlutil.BindStyle
}

var (
	Postgres = Dialect{Name: "postgres", DriverName: "postgres", JSONType: "JSONB", Bind: sqlutil.BindDollar}
	SQLite   = Dialect{Name: "sqlite", DriverName: "sqlite", JSONType: "BLOB", Bind: sqlutil.BindQuestion}
)

// DialectByName resolves a driver name from configuration
func DialectByName(name string) (Dialect, error) {
	switch name {
	case Postgres.Name, "postgresql":
		return Postgres, nil
	case SQLite.Name, "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported archive driver %q", name)
	}
}

const (
	insertRecordSQL = `INSERT INTO poll_record
    (id, session_id, question, options, answers, start_time_ms, end_time_ms, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

	selectRecordsSQL = `SELECT id, session_id, question, options, answers, start_time_ms, end_time_ms, duration_ms
FROM poll_record
ORDER BY end_time_ms DESC, id`

	selectRecordSQL = `SELECT id, session_id, question, options, answers, start_time_ms, end_time_ms, duration_ms
FROM poll_record
WHERE id = ?`
)

// SQLStore persists records in Postgres or SQLite
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL connects, verifies the connection and creates the schema
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		// one writer at a time; sqlite serializes anyway
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}

	store, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database and makes sure the schema exists
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if err := CreateSchema(ctx, db, dialect); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

// InsertRecordSQL is the idempotent insert bound for dialect
func InsertRecordSQL(dialect Dialect) string {
	return sqlutil.Rebind(dialect.Bind, insertRecordSQL)
}

func (s *SQLStore) Append(ctx context.Context, record models.PollRecord) error {
	options, err := sqlutil.ToNullRawMessage(record.Options)
	if err != nil {
		return err
	}
	answers, err := sqlutil.ToNullRawMessage(record.Answers)
	if err != nil {
		return err
	}

	return sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, InsertRecordSQL(s.dialect),
			record.ID.String(),
			record.SessionID.String(),
			record.Question,
			options,
			answers,
			sqlutil.ToUnixMilli(record.StartTime),
			sqlutil.ToUnixMilli(record.EndTime),
			record.DurationMs(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert poll record %s: %w", record.ID, err)
		}
		return nil
	})
}

// List returns records most recent first
func (s *SQLStore) List(ctx context.Context) ([]models.PollRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqlutil.Rebind(s.dialect.Bind, selectRecordsSQL))
	if err != nil {
		return nil, fmt.Errorf("failed to list poll records: %w", err)
	}
	defer rows.Close()

	var records []models.PollRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate poll records: %w", err)
	}
	return records, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (models.PollRecord, error) {
	row := s.db.QueryRowContext(ctx, sqlutil.Rebind(s.dialect.Bind, selectRecordSQL), id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PollRecord{}, ErrNotFound
	}
	return record, err
}

// DB exposes the underlying handle for health checks
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (models.PollRecord, error) {
	var (
		id, sessionID         string
		question              string
		options, answers      pqtype.NullRawMessage
		startMs, endMs, durMs int64
	)
	if err := row.Scan(&id, &sessionID, &question, &options, &answers, &startMs, &endMs, &durMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PollRecord{}, err
		}
		return models.PollRecord{}, fmt.Errorf("failed to scan poll record: %w", err)
	}

	record := models.PollRecord{
		Question:  question,
		Answers:   map[string]string{},
		StartTime: sqlutil.FromUnixMilli(startMs),
		EndTime:   sqlutil.FromUnixMilli(endMs),
		Duration:  time.Duration(durMs) * time.Millisecond,
	}

	var err error
	if record.ID, err = uuid.Parse(id); err != nil {
		return models.PollRecord{}, fmt.Errorf("invalid poll record id %q: %w", id, err)
	}
	if record.SessionID, err = uuid.Parse(sessionID); err != nil {
		return models.PollRecord{}, fmt.Errorf("invalid session id %q: %w", sessionID, err)
	}
	if err := sqlutil.FromNullRawMessage(options, &record.Options); err != nil {
		return models.PollRecord{}, err
	}
	if err := sqlutil.FromNullRawMessage(answers, &record.Answers); err != nil {
		return models.PollRecord{}, err
	}
	if record.Answers == nil {
		record.Answers = map[string]string{}
	}
	return record, nil
}
