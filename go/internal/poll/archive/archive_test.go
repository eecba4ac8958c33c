package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tj/assert"

	"github.com/mcdev12/livepoll/go/internal/models"
)

func newRecord(question string, end time.Time) models.PollRecord {
	return models.PollRecord{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		Question:  question,
		Options:   []models.Option{{Text: "A", IsCorrect: true}, {Text: "B"}},
		Answers:   map[string]string{"Alice": "A", "Bob": "B"},
		StartTime: end.Add(-time.Minute),
		EndTime:   end,
		Duration:  time.Minute,
	}
}

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	store, err := OpenSQL(context.Background(), SQLite, "file:"+path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestArchives(t *testing.T) {
	stores := map[string]func(t *testing.T) Archive{
		"memory": func(t *testing.T) Archive { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Archive { return openSQLite(t) },
		"dynamodb": func(t *testing.T) Archive {
			return NewDynamoStore(newFakeDynamo(), DynamoTableName("test"))
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

			t.Run("list is most recent first", func(t *testing.T) {
				archive := open(t)
				first := newRecord("first", base)
				second := newRecord("second", base.Add(time.Hour))
				assert.NoError(t, archive.Append(ctx, first))
				assert.NoError(t, archive.Append(ctx, second))

				records, err := archive.List(ctx)
				assert.NoError(t, err)
				assert.Len(t, records, 2)
				assert.Equal(t, "second", records[0].Question)
				assert.Equal(t, "first", records[1].Question)
			})

			t.Run("append is idempotent", func(t *testing.T) {
				archive := open(t)
				record := newRecord("retry", base)
				assert.NoError(t, archive.Append(ctx, record))
				assert.NoError(t, archive.Append(ctx, record))

				records, err := archive.List(ctx)
				assert.NoError(t, err)
				assert.Len(t, records, 1)
			})

			t.Run("round trip", func(t *testing.T) {
				archive := open(t)
				record := newRecord("round trip", base)
				assert.NoError(t, archive.Append(ctx, record))

				got, err := archive.Get(ctx, record.ID.String())
				assert.NoError(t, err)
				assert.Equal(t, record.ID, got.ID)
				assert.Equal(t, record.SessionID, got.SessionID)
				assert.Equal(t, record.Options, got.Options)
				assert.Equal(t, record.Answers, got.Answers)
				assert.True(t, record.StartTime.Equal(got.StartTime))
				assert.True(t, record.EndTime.Equal(got.EndTime))
				assert.Equal(t, time.Minute, got.Duration)
			})

			t.Run("missing record", func(t *testing.T) {
				archive := open(t)
				_, err := archive.Get(ctx, uuid.NewString())
				assert.Equal(t, ErrNotFound, err)
			})
		})
	}
}

func TestSQLiteEmptyAnswers(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)

	record := newRecord("nobody voted", time.Now())
	record.Answers = nil
	assert.NoError(t, store.Append(ctx, record))

	got, err := store.Get(ctx, record.ID.String())
	assert.NoError(t, err)
	assert.NotNil(t, got.Answers)
	assert.Empty(t, got.Answers)
	assert.Equal(t, map[string]int{"A": 0, "B": 0}, got.Tally())
}

func TestDialectByName(t *testing.T) {
	d, err := DialectByName("postgresql")
	assert.NoError(t, err)
	assert.Equal(t, Postgres, d)

	d, err = DialectByName("sqlite")
	assert.NoError(t, err)
	assert.Equal(t, SQLite, d)

	_, err = DialectByName("mysql")
	assert.Error(t, err)
}
