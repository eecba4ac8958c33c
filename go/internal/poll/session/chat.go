package session

import (
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/poll/events"
)

func (c *Core) chat(sender Identity, text string) {
	if text == "" {
		return
	}
	c.broadcastChat(models.ChatMessage{
		Sender:    sender.DisplayName,
		Text:      text,
		Timestamp: c.clock.Now(),
	})
}

func (c *Core) broadcastChat(msg models.ChatMessage) {
	event, err := events.NewEvent(events.EventChatMessage, events.NewChatMessagePayload(msg))
	if err != nil {
		log.Error().Err(err).Msg("failed to build chat message")
		return
	}
	c.out.Broadcast(event)
}
