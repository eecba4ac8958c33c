package archive

import (
	"context"
	"errors"

	"github.com/mcdev12/livepoll/go/internal/models"
)

var ErrNotFound = errors.New("poll record not found")

// Archive is the append-only store of finalized polls.
// Append must be idempotent on record ID so a retried write cannot duplicate.
type Archive interface {
	Append(ctx context.Context, record models.PollRecord) error
	List(ctx context.Context) ([]models.PollRecord, error)
	Get(ctx context.Context, id string) (models.PollRecord, error)
	Close() error
}
