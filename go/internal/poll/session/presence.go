package session

import (
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/poll/events"
)

// PresenceBroadcaster pushes the participant list to every connection.
// Changes are marked during a command and flushed once when it completes,
// so back-to-back changes collapse into one update carrying the final state.
type PresenceBroadcaster struct {
	registry *Registry
	out      Broadcaster
	dirty    bool
}

func NewPresenceBroadcaster(registry *Registry, out Broadcaster) *PresenceBroadcaster {
	return &PresenceBroadcaster{registry: registry, out: out}
}

// CurrentPresence returns connected participant names in join order
func (p *PresenceBroadcaster) CurrentPresence() []string {
	return p.registry.Presence()
}

// MarkChanged schedules a presence:update for the next flush
func (p *PresenceBroadcaster) MarkChanged() {
	p.dirty = true
}

// Flush broadcasts the presence list if it changed since the last flush
func (p *PresenceBroadcaster) Flush() {
	if !p.dirty {
		return
	}
	p.dirty = false

	event, err := p.event()
	if err != nil {
		log.Error().Err(err).Msg("failed to build presence update")
		return
	}
	p.out.Broadcast(event)
}

// SendTo delivers the current presence list to a single connection
func (p *PresenceBroadcaster) SendTo(connectionID string) {
	event, err := p.event()
	if err != nil {
		log.Error().Err(err).Msg("failed to build presence update")
		return
	}
	p.out.SendTo(connectionID, event)
}

func (p *PresenceBroadcaster) event() (*events.Event, error) {
	return events.NewEvent(events.EventPresenceUpdate, events.PresencePayload(p.CurrentPresence()))
}
