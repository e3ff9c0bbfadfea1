package chat

import (
	"github.com/rs/zerolog"

	"chatrelay/internal/pkg/logx"
)

// TypingRelay forwards typing indicators to a peer's live connections. It
// keeps no state and no timers; clients send stop-typing themselves.
type TypingRelay struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewTypingRelay creates a relay over registry.
func NewTypingRelay(registry *Registry) *TypingRelay {
	return &TypingRelay{registry: registry, logger: logx.Component("TypingRelay")}
}

// NotifyTyping tells peerID that senderID is typing.
func (t *TypingRelay) NotifyTyping(senderID, peerID string) int {
	return t.forward(EventUserTyping, senderID, peerID)
}

// NotifyStoppedTyping tells peerID that senderID stopped typing.
func (t *TypingRelay) NotifyStoppedTyping(senderID, peerID string) int {
	return t.forward(EventUserStoppedTyping, senderID, peerID)
}

// forward returns the number of connections the notice reached.
func (t *TypingRelay) forward(kind EventType, senderID, peerID string) int {
	if senderID == peerID {
		return 0
	}

	ev := Event{Type: kind, Payload: TypingNotice{SenderID: senderID}}
	reached := 0
	for _, c := range t.registry.ConnectionsFor(peerID) {
		if err := c.Send(ev); err != nil {
			t.logger.Debug().Err(err).Str("conn_id", c.ID()).Msg("Typing notice not delivered.")
			continue
		}
		reached++
	}
	return reached
}
