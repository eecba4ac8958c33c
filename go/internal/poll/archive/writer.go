package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/models"
)

type WriterConfig struct {
	QueueSize     int
	MaxRetries    int
	RetryDelay    time.Duration
	AppendTimeout time.Duration
	DrainTimeout  time.Duration
}

func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		QueueSize:     64,
		MaxRetries:    3,
		RetryDelay:    time.Second,
		AppendTimeout: 5 * time.Second,
		DrainTimeout:  10 * time.Second,
	}
}

// Writer appends finalized records in the background. Submit never blocks;
// failures are retried with linear backoff and then logged.
type Writer struct {
	archive   Archive
	publisher Publisher
	metrics   MetricsCollector
	clock     clockwork.Clock
	config    WriterConfig

	queue chan models.PollRecord
}

func NewWriter(archive Archive, publisher Publisher, metrics MetricsCollector, clock clockwork.Clock, cfg WriterConfig) *Writer {
	if publisher == nil {
		publisher = NoOpPublisher{}
	}
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultWriterConfig().QueueSize
	}
	return &Writer{
		archive:   archive,
		publisher: publisher,
		metrics:   metrics,
		clock:     clock,
		config:    cfg,
		queue:     make(chan models.PollRecord, cfg.QueueSize),
	}
}

// Submit queues a record for archiving
func (w *Writer) Submit(record models.PollRecord) {
	select {
	case w.queue <- record:
	default:
		w.metrics.RecordDropped()
		log.Error().
			Str("record_id", record.ID.String()).
			Str("session_id", record.SessionID.String()).
			Msg("archive queue full, dropping poll record")
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left
// within DrainTimeout.
func (w *Writer) Run(ctx context.Context) error {
	log.Info().
		Int("queue_size", cap(w.queue)).
		Int("max_retries", w.config.MaxRetries).
		Msg("archive writer started")

	for {
		select {
		case <-ctx.Done():
			w.drain()
			log.Info().Msg("archive writer stopped")
			return nil
		case record := <-w.queue:
			w.processDetached(ctx, record)
		}
	}
}

// processDetached keeps working on a dequeued record when ctx is cancelled,
// for at most DrainTimeout more.
func (w *Writer) processDetached(ctx context.Context, record models.PollRecord) {
	recordCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	stop := context.AfterFunc(ctx, func() {
		select {
		case <-recordCtx.Done():
		case <-w.clock.After(w.config.DrainTimeout):
			cancel()
		}
	})
	defer stop()

	w.process(recordCtx, record)
}

func (w *Writer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.DrainTimeout)
	defer cancel()

	for {
		select {
		case record := <-w.queue:
			w.process(ctx, record)
		default:
			return
		}
	}
}

func (w *Writer) process(ctx context.Context, record models.PollRecord) {
	logger := log.With().
		Str("record_id", record.ID.String()).
		Str("session_id", record.SessionID.String()).
		Logger()

	if err := w.appendWithRetry(ctx, record); err != nil {
		logger.Error().Err(err).Msg("failed to archive poll record")
		return
	}
	logger.Info().Int("answers", len(record.Answers)).Msg("archived poll record")

	if err := w.publisher.Publish(ctx, record); err != nil {
		w.metrics.RecordExport(false)
		logger.Warn().Err(err).Msg("failed to export poll record")
		return
	}
	w.metrics.RecordExport(true)
}

func (w *Writer) appendWithRetry(ctx context.Context, record models.PollRecord) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.clock.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		err := w.appendOnce(ctx, record)
		w.metrics.RecordAppendAttempt(attempt+1, err == nil)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().
			Err(err).
			Str("record_id", record.ID.String()).
			Int("attempt", attempt+1).
			Msg("failed to archive poll record, retrying")
	}

	return fmt.Errorf("append failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}

func (w *Writer) appendOnce(ctx context.Context, record models.PollRecord) error {
	if w.config.AppendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.AppendTimeout)
		defer cancel()
	}
	return w.archive.Append(ctx, record)
}
