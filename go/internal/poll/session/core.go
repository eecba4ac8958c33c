package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/poll/events"
)

// ErrStopped is returned when a command is sent after the core loop exited
var ErrStopped = errors.New("session core stopped")

// Broadcaster delivers events to connections. Implementations must be safe
// for concurrent use and must not block.
type Broadcaster interface {
	Broadcast(event *events.Event)
	SendTo(connectionID string, event *events.Event)
}

// RecordWriter accepts finalized polls without blocking the caller
type RecordWriter interface {
	Submit(record models.PollRecord)
}

// HistoryReader lists archived polls, most recent first
type HistoryReader interface {
	List(ctx context.Context) ([]models.PollRecord, error)
}

// Config tunes the poll session rules
type Config struct {
	DefaultDuration time.Duration
	MaxDuration     time.Duration
	MinOptions      int
	CommandBuffer   int
	HistoryTimeout  time.Duration
}

// DefaultConfig returns the default session rules
func DefaultConfig() Config {
	return Config{
		DefaultDuration: 60 * time.Second,
		MaxDuration:     10 * time.Minute,
		MinOptions:      2,
		CommandBuffer:   256,
		HistoryTimeout:  5 * time.Second,
	}
}

// Stats is a point-in-time view of the core
type Stats struct {
	Participants  int    `json:"participants"`
	Moderators    int    `json:"moderators"`
	Presence      int    `json:"presence"`
	ActiveSession bool   `json:"active_session"`
	SessionID     string `json:"session_id,omitempty"`
}

type task struct {
	fn   func()
	done chan struct{}
}

// Core serializes every mutation of the registry and the poll session on a
// single goroutine. Each task runs to completion before the next starts.
type Core struct {
	clock    clockwork.Clock
	cfg      Config
	out      Broadcaster
	history  HistoryReader
	registry *Registry
	presence *PresenceBroadcaster
	machine  *Machine

	tasks   chan task
	stopped chan struct{}
	runCtx  context.Context
}

// NewCore wires the session components together. Call Run to start processing.
func NewCore(clock clockwork.Clock, cfg Config, out Broadcaster, writer RecordWriter, history HistoryReader) *Core {
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = DefaultConfig().CommandBuffer
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = DefaultConfig().DefaultDuration
	}
	if cfg.HistoryTimeout <= 0 {
		cfg.HistoryTimeout = DefaultConfig().HistoryTimeout
	}

	registry := NewRegistry()
	c := &Core{
		clock:    clock,
		cfg:      cfg,
		out:      out,
		history:  history,
		registry: registry,
		presence: NewPresenceBroadcaster(registry, out),
		tasks:    make(chan task, cfg.CommandBuffer),
		stopped:  make(chan struct{}),
		runCtx:   context.Background(),
	}
	c.machine = newMachine(clock, cfg, out, writer, registry.Presence, c.scheduleClose)
	return c
}

// Run processes commands until ctx is cancelled. A live session is
// finalized on the way out so its record still reaches the archive.
func (c *Core) Run(ctx context.Context) error {
	c.runCtx = ctx
	defer close(c.stopped)

	log.Info().Msg("session core started")
	for {
		select {
		case <-ctx.Done():
			c.machine.Shutdown()
			log.Info().Msg("session core stopped")
			return nil
		case t := <-c.tasks:
			t.fn()
			c.presence.Flush()
			if t.done != nil {
				close(t.done)
			}
		}
	}
}

// Dispatch applies a client command for connectionID and waits until the
// core has processed it.
func (c *Core) Dispatch(ctx context.Context, connectionID string, cmd events.Command) error {
	return c.exec(ctx, func() {
		c.apply(connectionID, cmd)
	})
}

// Disconnect is the transport's leave notification for connectionID
func (c *Core) Disconnect(ctx context.Context, connectionID string) error {
	return c.exec(ctx, func() {
		identity, ok := c.registry.Lookup(connectionID)
		if !ok {
			return
		}
		if c.registry.Leave(connectionID) {
			c.presence.MarkChanged()
		}
		log.Info().
			Str("connection_id", connectionID).
			Str("display_name", identity.DisplayName).
			Str("role", string(identity.Role)).
			Msg("connection left")
	})
}

// Stats reads counters on the core loop
func (c *Core) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := c.exec(ctx, func() {
		stats.Participants, stats.Moderators = c.registry.Counts()
		stats.Presence = len(c.registry.Presence())
		if s := c.machine.Current(); s != nil {
			stats.ActiveSession = true
			stats.SessionID = s.ID.String()
		}
	})
	return stats, err
}

func (c *Core) exec(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case c.tasks <- task{fn: fn, done: done}:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post enqueues fn without waiting for it
func (c *Core) post(fn func()) {
	select {
	case c.tasks <- task{fn: fn}:
	case <-c.stopped:
	case <-c.runCtx.Done():
	}
}

func (c *Core) scheduleClose(sessionID uuid.UUID, d time.Duration) *closeTimer {
	return armCloseTimer(c.runCtx, c.clock, d, func() {
		c.post(func() {
			c.machine.OnTimer(sessionID)
		})
	})
}

func (c *Core) apply(connectionID string, cmd events.Command) {
	identity, identified := c.registry.Lookup(connectionID)

	switch cmd := cmd.(type) {
	case events.JoinCommand:
		c.join(connectionID, cmd)

	case events.CreatePollCommand:
		if !identified {
			log.Debug().Str("connection_id", connectionID).Msg("poll:create rejected: anonymous connection")
			return
		}
		c.machine.CreatePoll(identity, cmd)

	case events.AnswerCommand:
		if !identified {
			log.Debug().Str("connection_id", connectionID).Msg("poll:answer rejected: anonymous connection")
			return
		}
		c.machine.SubmitAnswer(identity, cmd.OptionText)

	case events.ChatCommand:
		if !identified {
			return
		}
		c.chat(identity, cmd.Text)

	case events.KickCommand:
		if !identified {
			return
		}
		c.kick(identity, cmd.DisplayName)

	case events.HistoryRequestCommand:
		if !identified || identity.Role != models.RoleModerator {
			log.Debug().Str("connection_id", connectionID).Msg("poll:historyRequest rejected: caller is not a moderator")
			return
		}
		c.sendHistory(connectionID)

	case events.StateRequestCommand:
		c.sendCurrent(connectionID)
		c.presence.SendTo(connectionID)

	default:
		log.Warn().Str("connection_id", connectionID).Str("event_type", string(cmd.EventType())).Msg("unhandled command")
	}
}

func (c *Core) join(connectionID string, cmd events.JoinCommand) {
	result := c.registry.Join(connectionID, cmd.Role, cmd.DisplayName, c.clock.Now())
	if !result.Joined {
		return
	}
	if result.PresenceChanged {
		c.presence.MarkChanged()
	}

	log.Info().
		Str("connection_id", connectionID).
		Str("display_name", cmd.DisplayName).
		Str("role", string(cmd.Role)).
		Str("superseded", result.Superseded).
		Msg("connection joined")

	c.sendCurrent(connectionID)
	if !result.PresenceChanged {
		c.presence.SendTo(connectionID)
	}
}

// sendCurrent delivers the reconciliation snapshot to one connection
func (c *Core) sendCurrent(connectionID string) {
	snapshot, ok := c.machine.CurrentSnapshot()
	if !ok {
		return
	}
	event, err := events.NewEvent(events.EventPollCurrent, snapshot)
	if err != nil {
		log.Error().Err(err).Msg("failed to build poll:current")
		return
	}
	c.out.SendTo(connectionID, event)
}

// sendHistory queries the archive off the loop and answers only the requester
func (c *Core) sendHistory(connectionID string) {
	if c.history == nil {
		return
	}
	ctx := c.runCtx
	go func() {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.HistoryTimeout)
		defer cancel()

		records, err := c.history.List(ctx)
		if err != nil {
			log.Error().Err(err).Str("connection_id", connectionID).Msg("failed to load poll history")
			return
		}
		event, err := events.NewEvent(events.EventPollHistory, events.NewRecordPayloads(records))
		if err != nil {
			log.Error().Err(err).Msg("failed to build poll:history")
			return
		}
		c.out.SendTo(connectionID, event)
	}()
}
