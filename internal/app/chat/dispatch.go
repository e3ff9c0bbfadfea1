package chat

import (
	"context"
	"encoding/json"

	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/req"
)

// dispatch decodes one inbound frame and hands it to the owning component.
// Failures are reported to the client as error events; the connection stays open.
func (m *Manager) dispatch(ctx context.Context, c *Client, data []byte) {
	var in inboundEvent
	if err := json.Unmarshal(data, &in); err != nil {
		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("Client sent invalid JSON")
		c.SendError(errs.NewError(errs.ErrInvalidJSONFormat), "")
		return
	}

	var err error
	switch in.Type {
	case EventSendMessage:
		err = m.handleSendMessage(ctx, c, in)
	case EventMarkRead:
		err = m.handleMarkRead(ctx, c, in)
	case EventMessageReadAck:
		err = m.handleReadAck(ctx, c, in)
	case EventTyping, EventStopTyping:
		err = m.handleTyping(c, in)
	case EventJoinGroup:
		err = m.handleJoinGroup(ctx, c, in)
	default:
		c.logger.Warn().Str("event", string(in.Type)).Msg("Client sent unsupported event type")
		err = errs.NewError(errs.ErrUnsupportedEvent, in.Type)
	}

	if err != nil {
		c.logger.Debug().Err(err).Str("event", string(in.Type)).Msg("Event rejected.")
		c.SendError(err, in.TempID)
	}
}

// decodePayload unmarshals and validates an event payload into dst.
func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errs.Wrap(errs.ErrInvalidJSONFormat, err)
	}
	if err := req.Validate(dst); err != nil {
		return err
	}
	return nil
}

func (m *Manager) handleSendMessage(ctx context.Context, c *Client, in inboundEvent) error {
	var payload SendMessagePayload
	if err := decodePayload(in.Payload, &payload); err != nil {
		return err
	}
	if payload.Sender != "" && payload.Sender != c.UserID() {
		return errs.NewError(errs.ErrSenderMismatch)
	}

	msg, duplicate, err := m.pipeline.Submit(ctx, payload.Draft(c.UserID()), c.ID())
	if err != nil {
		return err
	}

	return c.Send(Event{
		Type:    EventMessageSent,
		TempID:  in.TempID,
		Payload: MessageSentPayload{Message: msg, Duplicate: duplicate},
	})
}

func (m *Manager) handleMarkRead(ctx context.Context, c *Client, in inboundEvent) error {
	var payload MarkReadPayload
	if err := decodePayload(in.Payload, &payload); err != nil {
		return err
	}

	_, err := m.pipeline.MarkRead(ctx, c.UserID(), payload.MessageIDs)
	return err
}

func (m *Manager) handleReadAck(ctx context.Context, c *Client, in inboundEvent) error {
	var payload ReadAckPayload
	if err := decodePayload(in.Payload, &payload); err != nil {
		return err
	}

	_, err := m.pipeline.ReadAck(ctx, c.UserID(), payload.MessageID, payload.SenderID)
	return err
}

func (m *Manager) handleTyping(c *Client, in inboundEvent) error {
	var payload TypingPayload
	if err := decodePayload(in.Payload, &payload); err != nil {
		return err
	}
	if payload.SenderID != "" && payload.SenderID != c.UserID() {
		return errs.NewError(errs.ErrSenderMismatch)
	}

	if in.Type == EventTyping {
		m.typing.NotifyTyping(c.UserID(), payload.PeerID)
	} else {
		m.typing.NotifyStoppedTyping(c.UserID(), payload.PeerID)
	}
	return nil
}

func (m *Manager) handleJoinGroup(ctx context.Context, c *Client, in inboundEvent) error {
	var payload JoinGroupPayload
	if err := decodePayload(in.Payload, &payload); err != nil {
		return err
	}

	g, err := m.JoinGroup(ctx, c.UserID(), payload.GroupID)
	if err != nil {
		return err
	}

	return c.Send(Event{
		Type:    EventGroupJoined,
		TempID:  in.TempID,
		Payload: GroupJoinedPayload{GroupID: g.ID, Name: g.Name, Members: g.Members},
	})
}
