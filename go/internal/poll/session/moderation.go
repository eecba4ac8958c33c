package session

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/poll/events"
)

// kick evicts a participant by name. Order matters: observers see the system
// message, then only the target gets its removal notice, then presence drops
// the name on the end-of-command flush. Moderators cannot be targeted because
// only participant names resolve to a connection.
func (c *Core) kick(caller Identity, target string) bool {
	logger := log.With().
		Str("connection_id", caller.ConnectionID).
		Str("target", target).
		Logger()

	if caller.Role != models.RoleModerator {
		logger.Debug().Msg("participant:kick rejected: caller is not a moderator")
		return false
	}
	targetConnection, ok := c.registry.ConnectionFor(target)
	if !ok {
		logger.Debug().Msg("participant:kick ignored: no such participant")
		return false
	}

	c.broadcastChat(models.ChatMessage{
		Sender:    models.SystemSender,
		Text:      fmt.Sprintf("%s has been removed from the session", target),
		Timestamp: c.clock.Now(),
		IsSystem:  true,
	})

	notice, err := events.NewEvent(events.EventParticipantRemoved, target)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build participant:removed")
	} else {
		c.out.SendTo(targetConnection, notice)
	}

	if c.registry.Leave(targetConnection) {
		c.presence.MarkChanged()
	}

	logger.Info().Str("target_connection_id", targetConnection).Msg("participant removed")
	return true
}
