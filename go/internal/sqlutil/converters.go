package sqlutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go values and column values

// ToNullRawMessage marshals v into a JSON column value. A nil v is NULL.
func ToNullRawMessage(v interface{}) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("marshal json column: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}

// FromNullRawMessage unmarshals a JSON column into v. NULL leaves v untouched.
func FromNullRawMessage(val pqtype.NullRawMessage, v interface{}) error {
	if !val.Valid || len(val.RawMessage) == 0 {
		return nil
	}
	if err := json.Unmarshal(val.RawMessage, v); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	return nil
}

// ToUnixMilli converts a time to a BIGINT millisecond column
func ToUnixMilli(t time.Time) int64 {
	return t.UnixMilli()
}

// FromUnixMilli converts a BIGINT millisecond column to UTC time
func FromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
