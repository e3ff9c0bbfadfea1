package chat

import (
	"encoding/json"
	"time"

	"chatrelay/internal/app/message"
	"chatrelay/internal/pkg/errs"
)

// EventType names a socket event.
type EventType string

// Client → server.
const (
	EventSendMessage    EventType = "send-message"
	EventMarkRead       EventType = "mark-read"
	EventMessageReadAck EventType = "message-read-ack"
	EventTyping         EventType = "typing"
	EventStopTyping     EventType = "stop-typing"
	EventJoinGroup      EventType = "join-group"
)

// Server → client.
const (
	EventReceiveMessage      EventType = "receive-message"
	EventReceiveGroupMessage EventType = "receive-group-message"
	EventUpdateMessageStatus EventType = "update-message-status"
	EventUpdateUserStatus    EventType = "update-user-status"
	EventUserTyping          EventType = "user-typing"
	EventUserStoppedTyping   EventType = "user-stopped-typing"
	EventMessageSent         EventType = "message-sent"
	EventGroupJoined         EventType = "group-joined"
	EventError               EventType = "error"
)

// Event is the envelope of every outbound socket frame.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
	TempID  string    `json:"tempId,omitempty"`
}

// inboundEvent is an envelope whose payload is decoded once its type is known.
type inboundEvent struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	TempID  string          `json:"tempId,omitempty"`
}

// SendMessagePayload is the body of send-message. Sender is optional and must
// match the authenticated user when present.
type SendMessagePayload struct {
	Sender          string     `json:"sender,omitempty"`
	Receiver        string     `json:"receiver,omitempty"`
	Group           string     `json:"group,omitempty"`
	Body            string     `json:"body" validate:"max=5000"`
	Attachment      string     `json:"attachment,omitempty" validate:"max=512"`
	ClientTimestamp *time.Time `json:"clientTimestamp,omitempty"`
}

// Draft converts p into a message draft from sender.
func (p SendMessagePayload) Draft(sender string) message.Draft {
	return message.Draft{
		Sender:          sender,
		Destination:     message.Destination{Receiver: p.Receiver, Group: p.Group},
		Body:            p.Body,
		Attachment:      p.Attachment,
		ClientTimestamp: p.ClientTimestamp,
	}
}

// MarkReadPayload is the body of mark-read.
type MarkReadPayload struct {
	MessageIDs []string `json:"messageIds" validate:"required,min=1,max=200,dive,required"`
}

// ReadAckPayload is the body of message-read-ack.
type ReadAckPayload struct {
	MessageID string `json:"messageId" validate:"required"`
	SenderID  string `json:"senderId" validate:"required"`
}

// TypingPayload is the body of typing and stop-typing.
type TypingPayload struct {
	SenderID string `json:"senderId,omitempty"`
	PeerID   string `json:"peerId" validate:"required"`
}

// JoinGroupPayload is the body of join-group.
type JoinGroupPayload struct {
	GroupID string `json:"groupId" validate:"required"`
}

// StatusUpdatePayload tells a sender that one of its messages moved forward.
type StatusUpdatePayload struct {
	MessageID string         `json:"messageId"`
	Status    message.Status `json:"status"`
	Receiver  string         `json:"receiver,omitempty"`
	Group     string         `json:"group,omitempty"`
	By        string         `json:"by"`
}

// TypingNotice is the body of user-typing and user-stopped-typing.
type TypingNotice struct {
	SenderID string `json:"senderId"`
}

// MessageSentPayload acknowledges a send to the connection that made it.
type MessageSentPayload struct {
	Message   message.Message `json:"message"`
	Duplicate bool            `json:"duplicate"`
}

// GroupJoinedPayload acknowledges join-group.
type GroupJoinedPayload struct {
	GroupID string   `json:"groupId"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Code    int       `json:"code"`
	Kind    errs.Kind `json:"kind"`
	Message string    `json:"message"`
}

// errorEvent renders err as an error event tied to tempID.
func errorEvent(err error, tempID string) Event {
	customErr := errs.From(err)
	return Event{
		Type:   EventError,
		TempID: tempID,
		Payload: ErrorPayload{
			Code:    customErr.Code,
			Kind:    customErr.Kind,
			Message: customErr.Message,
		},
	}
}

func messageEvent(m message.Message) Event {
	if m.Group != "" {
		return Event{Type: EventReceiveGroupMessage, Payload: m}
	}
	return Event{Type: EventReceiveMessage, Payload: m}
}

func statusEvent(m message.Message, by string) Event {
	return Event{
		Type: EventUpdateMessageStatus,
		Payload: StatusUpdatePayload{
			MessageID: m.ID,
			Status:    m.Status,
			Receiver:  m.Receiver,
			Group:     m.Group,
			By:        by,
		},
	}
}
