package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/poll/events"
	"github.com/mcdev12/livepoll/go/internal/poll/reconcile"
)

// ErrRemoved is returned for sends after a moderator removed this client
var ErrRemoved = errors.New("removed from the session")

type Config struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	EventBuffer      int
	Clock            clockwork.Clock

	// OnTick receives the local countdown once a second
	OnTick func(sessionID string, remaining time.Duration)
	// OnExpire fires when the local countdown runs out
	OnExpire func(sessionID string)
}

func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		EventBuffer:      256,
		Clock:            clockwork.NewRealClock(),
	}
}

// Client is one websocket connection to the poll gateway. It mirrors the
// server state it is told about and runs the reconciled local countdown.
type Client struct {
	conn    *websocket.Conn
	config  Config
	tracker *reconcile.Tracker

	writeMu sync.Mutex

	mu       sync.RWMutex
	session  *events.SessionPayload
	answers  map[string]string
	presence []string
	removed  bool

	events chan *events.Event
	done   chan struct{}
}

// Dial connects to the gateway websocket endpoint
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	c := &Client{
		conn:    conn,
		config:  cfg,
		tracker: reconcile.NewTracker(cfg.Clock, cfg.OnTick, cfg.OnExpire),
		answers: map[string]string{},
		events:  make(chan *events.Event, cfg.EventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// JoinAsParticipant registers under a display name
func (c *Client) JoinAsParticipant(displayName string) error {
	return c.send(events.EventParticipantJoin, events.JoinPayload(displayName))
}

// JoinAsModerator registers as the moderator
func (c *Client) JoinAsModerator(displayName string) error {
	return c.send(events.EventModeratorJoin, events.JoinPayload(displayName))
}

// Join registers with the given role
func (c *Client) Join(role models.Role, displayName string) error {
	if role == models.RoleModerator {
		return c.JoinAsModerator(displayName)
	}
	return c.JoinAsParticipant(displayName)
}

func (c *Client) CreatePoll(question string, options []models.Option, duration time.Duration) error {
	return c.send(events.EventPollCreate, events.CreatePollPayload(question, options, duration))
}

func (c *Client) Answer(optionText string) error {
	return c.send(events.EventPollAnswer, optionText)
}

func (c *Client) Chat(text string) error {
	return c.send(events.EventChatMessage, text)
}

func (c *Client) Kick(displayName string) error {
	return c.send(events.EventParticipantKick, displayName)
}

func (c *Client) RequestHistory() error {
	return c.send(events.EventPollHistoryRequest, nil)
}

func (c *Client) RequestState() error {
	return c.send(events.EventPollStateRequest, nil)
}

// Events delivers every event the server sent, in order
func (c *Client) Events() <-chan *events.Event {
	return c.events
}

// Done is closed when the connection is gone
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Await returns the next event of eventType, discarding others
func (c *Client) Await(ctx context.Context, eventType events.EventType) (*events.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", eventType, ctx.Err())
		case event, ok := <-c.events:
			if !ok {
				return nil, fmt.Errorf("waiting for %s: connection closed", eventType)
			}
			if event.Type == eventType {
				return event, nil
			}
		}
	}
}

// Session returns the live session as last seen, if any. A session whose
// local countdown has run out is no longer live, even before poll:end.
func (c *Client) Session() (events.SessionPayload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return events.SessionPayload{}, false
	}
	if _, live := c.tracker.Remaining(); !live {
		return events.SessionPayload{}, false
	}
	return *c.session, true
}

// Answers returns the latest answers mapping
func (c *Client) Answers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.answers))
	for k, v := range c.answers {
		out[k] = v
	}
	return out
}

// Presence returns the latest participant list
func (c *Client) Presence() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.presence...)
}

// Removed reports whether a moderator evicted this client
func (c *Client) Removed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.removed
}

// Remaining is the locally reconciled time left on the live poll
func (c *Client) Remaining() (time.Duration, bool) {
	return c.tracker.Remaining()
}

// Close sends a close frame and tears down the connection
func (c *Client) Close() error {
	c.tracker.Stop()

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *Client) send(eventType events.EventType, payload interface{}) error {
	if c.Removed() {
		return ErrRemoved
	}
	data, err := events.NewClientMessage(eventType, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", eventType, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		c.tracker.Stop()
		close(c.events)
		close(c.done)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("connection closed")
			}
			return
		}

		event, err := events.ParseEvent(data)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed event")
			continue
		}
		if err := c.apply(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("failed to apply event")
		}

		select {
		case c.events <- event:
		default:
			log.Warn().Str("event_type", string(event.Type)).Msg("event buffer full, dropping event")
		}

		if event.Type == events.EventParticipantRemoved {
			// removal is terminal; the client severs its own connection
			_ = c.conn.Close()
		}
	}
}

func (c *Client) apply(event *events.Event) error {
	if err := c.tracker.Apply(event); err != nil {
		return err
	}

	switch event.Type {
	case events.EventPollNew, events.EventPollCurrent, events.EventPollResults,
		events.EventPollEnd, events.EventPresenceUpdate, events.EventParticipantRemoved:
	default:
		return nil
	}

	payload, err := events.ParseEventPayload(event)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch p := payload.(type) {
	case events.SessionPayload:
		c.session = &p
		c.answers = p.Answers
		if c.answers == nil {
			c.answers = map[string]string{}
		}
	case events.AnswersPayload:
		c.answers = p
		if event.Type == events.EventPollEnd {
			c.session = nil
		}
	case events.PresencePayload:
		c.presence = p
	case string:
		c.removed = true
		c.session = nil
	}
	return nil
}
