package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/livepoll/go/internal/poll/archive"
	"github.com/mcdev12/livepoll/go/internal/poll/session"
)

// Config holds configuration for the poll gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	SessionConfig    session.Config
	WriterConfig     archive.WriterConfig
}

// DefaultConfig returns default configuration for the poll gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		SessionConfig:    session.DefaultConfig(),
		WriterConfig:     archive.DefaultWriterConfig(),
	}
}

// Service wires the websocket transport, the session core and the archive writer
type Service struct {
	connectionManager *ConnectionManager
	core              *session.Core
	writer            *archive.Writer
	archive           archive.Archive
	publisher         archive.Publisher
	counters          *archive.Counters

	wsHandler      *WebSocketHandler
	historyHandler *HistoryHandler
	graphqlHandler http.Handler
}

// NewService creates the gateway. publisher may be nil to skip export.
func NewService(config Config, store archive.Archive, publisher archive.Publisher, clock clockwork.Clock) *Service {
	if publisher == nil {
		publisher = archive.NoOpPublisher{}
	}
	counters := archive.NewCounters()
	var metrics archive.MetricsCollector = counters
	if otelMetrics, err := archive.NewOTelMetrics(nil); err != nil {
		log.Warn().Err(err).Msg("failed to create OpenTelemetry archive metrics")
	} else {
		metrics = archive.Collectors{counters, otelMetrics}
	}

	connectionManager := NewConnectionManager(config.ConnectionConfig, nil)
	writer := archive.NewWriter(archive.NewMetricArchive(store, metrics), publisher, metrics, clock, config.WriterConfig)
	core := session.NewCore(clock, config.SessionConfig, connectionManager, writer, store)
	connectionManager.SetDispatcher(core)

	return &Service{
		connectionManager: connectionManager,
		core:              core,
		writer:            writer,
		archive:           store,
		publisher:         publisher,
		counters:          counters,
		wsHandler:         NewWebSocketHandler(connectionManager, core, counters),
		historyHandler:    NewHistoryHandler(store),
		graphqlHandler:    NewGraphQLHandler(store),
	}
}

// Start runs the service until ctx is cancelled. The archive writer outlives
// the core so the record of a poll finalized during shutdown is still written.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting poll gateway service")

	group, gctx := errgroup.WithContext(ctx)
	writerCtx, stopWriter := context.WithCancel(context.Background())

	group.Go(func() error {
		return s.connectionManager.Start(gctx)
	})
	group.Go(func() error {
		defer stopWriter()
		return s.core.Run(gctx)
	})
	group.Go(func() error {
		return s.writer.Run(writerCtx)
	})

	err := group.Wait()
	log.Info().Msg("poll gateway service stopped")
	return err
}

// Close releases the publisher and the archive
func (s *Service) Close() error {
	if err := s.publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close publisher")
	}
	return s.archive.Close()
}

// Handler returns the HTTP routes of the service
func (s *Service) Handler() http.Handler {
	return NewRouter(s.wsHandler, s.historyHandler, s.graphqlHandler)
}

// Core exposes the session core
func (s *Service) Core() *session.Core {
	return s.core
}
