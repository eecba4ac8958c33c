package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/poll/events"
)

// FinalizeReason records which trigger closed a session
type FinalizeReason string

const (
	ReasonExpired     FinalizeReason = "expired"
	ReasonAllAnswered FinalizeReason = "all_answered"
	ReasonShutdown    FinalizeReason = "shutdown"
)

// scheduleFunc arms the close timer for a session version
type scheduleFunc func(sessionID uuid.UUID, d time.Duration) *closeTimer

// Machine owns the single poll session and its Idle, Active, Closing cycle.
// All methods must be called from the core loop.
type Machine struct {
	clock    clockwork.Clock
	cfg      Config
	out      Broadcaster
	writer   RecordWriter
	presence func() []string
	schedule scheduleFunc

	current *Session
}

func newMachine(clock clockwork.Clock, cfg Config, out Broadcaster, writer RecordWriter, presence func() []string, schedule scheduleFunc) *Machine {
	return &Machine{
		clock:    clock,
		cfg:      cfg,
		out:      out,
		writer:   writer,
		presence: presence,
		schedule: schedule,
	}
}

// State returns the machine state
func (m *Machine) State() State {
	if m.current == nil {
		return StateIdle
	}
	return m.current.state
}

// Current returns the live session, or nil when idle
func (m *Machine) Current() *Session {
	return m.current
}

// CreatePoll moves Idle to Active. It is a no-op for non-moderators, while a
// session is active, and for requests outside the configured limits.
func (m *Machine) CreatePoll(caller Identity, cmd events.CreatePollCommand) bool {
	logger := log.With().Str("connection_id", caller.ConnectionID).Logger()

	if caller.Role != models.RoleModerator {
		logger.Debug().Msg("poll:create rejected: caller is not a moderator")
		return false
	}
	if m.current != nil && m.current.state == StateActive {
		logger.Debug().Str("session_id", m.current.ID.String()).Msg("poll:create rejected: session already active")
		return false
	}
	if cmd.Question == "" || len(cmd.Options) < m.cfg.MinOptions {
		logger.Debug().Int("options", len(cmd.Options)).Msg("poll:create rejected: malformed request")
		return false
	}

	duration := cmd.Duration
	if duration <= 0 {
		duration = m.cfg.DefaultDuration
	}
	if m.cfg.MaxDuration > 0 && duration > m.cfg.MaxDuration {
		logger.Debug().Dur("duration", duration).Msg("poll:create rejected: duration above maximum")
		return false
	}

	if m.current != nil {
		m.current.timer.Cancel()
	}

	now := m.clock.Now()
	options := make([]models.Option, len(cmd.Options))
	copy(options, cmd.Options)

	s := &Session{
		ID:        uuid.New(),
		Question:  cmd.Question,
		Options:   options,
		Answers:   make(map[string]string),
		StartTime: now,
		Duration:  duration,
		state:     StateActive,
	}
	s.timer = m.schedule(s.ID, duration)
	m.current = s

	m.broadcast(events.EventPollNew, s.Snapshot(now))

	log.Info().
		Str("session_id", s.ID.String()).
		Str("question", s.Question).
		Int("options", len(s.Options)).
		Dur("duration", duration).
		Msg("poll started")
	return true
}

// SubmitAnswer records the caller's choice while the window is open.
// Last write per participant name wins.
func (m *Machine) SubmitAnswer(caller Identity, optionText string) bool {
	logger := log.With().Str("connection_id", caller.ConnectionID).Logger()

	if caller.Role != models.RoleParticipant || caller.DisplayName == "" {
		logger.Debug().Msg("poll:answer rejected: caller is not a participant")
		return false
	}
	s := m.current
	if s == nil {
		logger.Debug().Msg("poll:answer rejected: no active session")
		return false
	}
	if !s.Accepting(m.clock.Now()) {
		logger.Debug().Str("session_id", s.ID.String()).Msg("poll:answer rejected: window closed")
		return false
	}
	if !s.HasOption(optionText) {
		logger.Debug().Str("session_id", s.ID.String()).Str("option", optionText).Msg("poll:answer rejected: unknown option")
		return false
	}

	s.Answers[caller.DisplayName] = optionText
	m.broadcast(events.EventPollResults, events.AnswersPayload(s.answersSnapshot()))

	if m.allAnswered() {
		m.finalize(s.ID, ReasonAllAnswered)
	}
	return true
}

// OnTimer handles a close timer fire. Fires for any session other than the
// live one are stale and ignored.
func (m *Machine) OnTimer(sessionID uuid.UUID) bool {
	if m.current == nil || m.current.ID != sessionID {
		log.Debug().Str("session_id", sessionID.String()).Msg("ignoring stale close timer")
		return false
	}
	return m.finalize(sessionID, ReasonExpired)
}

// Shutdown finalizes the live session, if any
func (m *Machine) Shutdown() {
	if m.current != nil {
		m.finalize(m.current.ID, ReasonShutdown)
	}
}

func (m *Machine) allAnswered() bool {
	s := m.current
	if s == nil {
		return false
	}
	present := m.presence()
	if len(present) == 0 {
		return false
	}
	for _, name := range present {
		if _, ok := s.Answers[name]; !ok {
			return false
		}
	}
	return true
}

// finalize runs exactly once per session: the Active to Closing transition
// is the guard, so a second trigger for the same session finds it gone.
func (m *Machine) finalize(sessionID uuid.UUID, reason FinalizeReason) bool {
	s := m.current
	if s == nil || s.ID != sessionID || s.state != StateActive {
		return false
	}
	s.state = StateClosing
	s.timer.Cancel()

	answers := s.answersSnapshot()
	record := models.PollRecord{
		ID:        uuid.New(),
		SessionID: s.ID,
		Question:  s.Question,
		Options:   s.Options,
		Answers:   answers,
		StartTime: s.StartTime,
		EndTime:   m.clock.Now(),
		Duration:  s.Duration,
	}
	m.writer.Submit(record)

	m.broadcast(events.EventPollEnd, events.AnswersPayload(answers))

	s.state = StateIdle
	m.current = nil

	log.Info().
		Str("session_id", s.ID.String()).
		Str("reason", string(reason)).
		Int("answers", len(answers)).
		Msg("poll finalized")
	return true
}

func (m *Machine) broadcast(eventType events.EventType, payload interface{}) {
	event, err := events.NewEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	m.out.Broadcast(event)
}
