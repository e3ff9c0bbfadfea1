package chat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/app/message"
	"chatrelay/internal/app/store"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/keylock"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/randx"
)

// PipelineConfig bounds the pipeline's interaction with the store.
type PipelineConfig struct {
	// StoreTimeout bounds every individual store call.
	StoreTimeout time.Duration

	// DedupWindow is how far back an identical submission is treated as a retry.
	DedupWindow time.Duration
}

// Pipeline validates, deduplicates and persists messages, advances their
// status and hands them to the router. It never retries a failed store call.
type Pipeline struct {
	store  store.Store
	rooms  *Rooms
	router *Router
	cfg    PipelineConfig

	// sendLocks serializes dedup and insert per sender.
	sendLocks *keylock.Striped

	// statusLocks serializes status changes per message.
	statusLocks *keylock.Striped

	now    func() time.Time
	logger zerolog.Logger
}

// NewPipeline wires a pipeline to its collaborators.
func NewPipeline(st store.Store, rooms *Rooms, router *Router, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		store:       st,
		rooms:       rooms,
		router:      router,
		cfg:         cfg,
		sendLocks:   keylock.New(0),
		statusLocks: keylock.New(0),
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		logger:      logx.Component("Pipeline"),
	}
}

// storeError maps a store failure onto the error table. notFound is the code
// used for store.ErrNotFound.
func storeError(err error, notFound int) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errs.Wrap(notFound, err)
	case errors.Is(err, store.ErrStatusConflict):
		return errs.Wrap(errs.ErrStatusConflict, err)
	case errors.Is(err, store.ErrAlreadyExists):
		return errs.Wrap(errs.ErrUnknown, err)
	default:
		return errs.Wrap(errs.ErrStoreUnavailable, err)
	}
}

// call runs fn under the store timeout.
func (p *Pipeline) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	return fn(ctx)
}

// Submit accepts a message from d.Sender. An identical submission within the
// dedup window returns the stored message with duplicate set and is not fanned
// out again. origin is the submitting connection, empty for REST.
func (p *Pipeline) Submit(ctx context.Context, d message.Draft, origin string) (m message.Message, duplicate bool, err error) {
	if err := d.Validate(); err != nil {
		return message.Message{}, false, err
	}
	if err := ValidateAttachmentRef(d.Sender, d.Attachment); err != nil {
		return message.Message{}, false, err
	}
	if err := p.resolveDestination(ctx, d); err != nil {
		return message.Message{}, false, err
	}

	fingerprint := d.Fingerprint()
	log := p.logger.With().Str("sender", d.Sender).Str("fingerprint", fingerprint[:12]).Logger()

	unlock := p.sendLocks.Lock(d.Sender)
	defer unlock()

	now := p.now()

	var (
		existing message.Message
		found    bool
	)
	err = p.call(ctx, func(ctx context.Context) error {
		var err error
		existing, found, err = p.store.FindRecentDuplicate(ctx, fingerprint, now.Add(-p.cfg.DedupWindow))
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("Dedup lookup failed.")
		return message.Message{}, false, storeError(err, errs.ErrMessageNotFound)
	}
	if found {
		log.Info().Str("message_id", existing.ID).Msg("Duplicate submission, returning stored message.")
		return existing, true, nil
	}

	m = d.Build(randx.MessageID(), now)
	err = p.call(ctx, func(ctx context.Context) error {
		return p.store.InsertMessage(ctx, m)
	})
	if err != nil {
		log.Error().Err(err).Str("message_id", m.ID).Msg("Failed to persist message.")
		return message.Message{}, false, storeError(err, errs.ErrMessageNotFound)
	}

	p.router.Deliver(m, origin)

	log.Debug().Str("message_id", m.ID).Msg("Message accepted.")
	return m, false, nil
}

// resolveDestination checks that the receiver exists, or that the group
// exists and the sender belongs to it.
func (p *Pipeline) resolveDestination(ctx context.Context, d message.Draft) error {
	if d.Destination.IsGroup() {
		_, err := p.rooms.Join(ctx, d.Destination.Group, d.Sender)
		return err
	}

	err := p.call(ctx, func(ctx context.Context) error {
		_, err := p.store.GetUser(ctx, d.Destination.Receiver)
		return err
	})
	if err != nil {
		return storeError(err, errs.ErrUserNotFound)
	}
	return nil
}

// authorizeRecipient checks that actor may advance the status of m: the
// receiver of a direct message, or a member other than the sender of a group.
func (p *Pipeline) authorizeRecipient(ctx context.Context, m message.Message, actor string) error {
	if m.Group == "" {
		if m.Receiver != actor {
			return errs.NewError(errs.ErrNotRecipient)
		}
		return nil
	}

	if m.Sender == actor {
		return errs.NewError(errs.ErrNotRecipient)
	}
	g, err := p.rooms.Get(ctx, m.Group)
	if err != nil {
		return err
	}
	if !g.HasMember(actor) {
		return errs.NewError(errs.ErrNotRecipient)
	}
	return nil
}

// AdvanceStatus moves message id to next on behalf of actor and notifies the
// sender. A transition that is not strictly forward returns the current
// message and an ErrStatusConflict error, without side effects.
func (p *Pipeline) AdvanceStatus(ctx context.Context, actor, id string, next message.Status) (message.Message, error) {
	if !next.Valid() {
		return message.Message{}, errs.NewError(errs.ErrInvalidParams)
	}

	unlock := p.statusLocks.Lock(id)
	defer unlock()

	var current message.Message
	err := p.call(ctx, func(ctx context.Context) error {
		var err error
		current, err = p.store.GetMessage(ctx, id)
		return err
	})
	if err != nil {
		return message.Message{}, storeError(err, errs.ErrMessageNotFound)
	}

	if err := p.authorizeRecipient(ctx, current, actor); err != nil {
		return message.Message{}, err
	}

	return p.advanceLocked(ctx, current, actor, next)
}

// advanceLocked performs the conditional update. The caller holds the status
// lock of current.ID.
func (p *Pipeline) advanceLocked(ctx context.Context, current message.Message, actor string, next message.Status) (message.Message, error) {
	log := p.logger.With().
		Str("message_id", current.ID).
		Str("from", current.Status.String()).
		Str("to", next.String()).
		Logger()

	if !current.Status.CanAdvanceTo(next) {
		log.Debug().Msg("Status not advanced.")
		return current, errs.NewError(errs.ErrStatusConflict)
	}

	var updated message.Message
	err := p.call(ctx, func(ctx context.Context) error {
		var err error
		updated, err = p.store.AdvanceStatus(ctx, current.ID, next)
		return err
	})
	if errors.Is(err, store.ErrStatusConflict) {
		log.Debug().Str("stored", updated.Status.String()).Msg("Status already advanced in store.")
		return updated, storeError(err, errs.ErrMessageNotFound)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to advance status.")
		return message.Message{}, storeError(err, errs.ErrMessageNotFound)
	}

	p.router.NotifyStatus(updated, actor)
	return updated, nil
}

// MarkRead advances each listed message to read on behalf of reader.
// Messages already read are skipped; the first other failure stops the batch.
func (p *Pipeline) MarkRead(ctx context.Context, reader string, ids []string) ([]message.Message, error) {
	updated := make([]message.Message, 0, len(ids))
	for _, id := range ids {
		m, err := p.AdvanceStatus(ctx, reader, id, message.StatusRead)
		if errs.HasCode(err, errs.ErrStatusConflict) {
			continue
		}
		if err != nil {
			return updated, err
		}
		updated = append(updated, m)
	}
	return updated, nil
}

// ReadAck relays a read receipt from reader to senderID for message id,
// advancing it to read if it is not there yet.
func (p *Pipeline) ReadAck(ctx context.Context, reader, id, senderID string) (message.Message, error) {
	m, err := p.AdvanceStatus(ctx, reader, id, message.StatusRead)
	if err == nil {
		if m.Sender != senderID {
			p.logger.Debug().Str("message_id", id).Str("claimed_sender", senderID).Msg("Read ack names another sender.")
		}
		return m, nil
	}
	if !errs.HasCode(err, errs.ErrStatusConflict) {
		return message.Message{}, err
	}

	// Already read: repeat the receipt so the sender's devices converge.
	if m.Status == message.StatusRead {
		p.router.NotifyStatus(m, reader)
	}
	return m, nil
}

// Conversation returns the direct history between viewer and peer, oldest
// first. Messages addressed to viewer that are still sent become delivered.
func (p *Pipeline) Conversation(ctx context.Context, viewer, peer string) ([]message.Message, error) {
	if viewer == "" || peer == "" {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	var history []message.Message
	err := p.call(ctx, func(ctx context.Context) error {
		var err error
		history, err = p.store.Conversation(ctx, viewer, peer)
		return err
	})
	if err != nil {
		return nil, storeError(err, errs.ErrUserNotFound)
	}

	return p.markDelivered(ctx, viewer, history, func(m message.Message) bool {
		return m.IsAddressedTo(viewer)
	})
}

// GroupHistory returns the history of groupID for a member, oldest first.
// Messages from other members that are still sent become delivered.
func (p *Pipeline) GroupHistory(ctx context.Context, viewer, groupID string) ([]message.Message, error) {
	if _, err := p.rooms.Join(ctx, groupID, viewer); err != nil {
		return nil, err
	}

	var history []message.Message
	err := p.call(ctx, func(ctx context.Context) error {
		var err error
		history, err = p.store.GroupMessages(ctx, groupID)
		return err
	})
	if err != nil {
		return nil, storeError(err, errs.ErrGroupNotFound)
	}

	return p.markDelivered(ctx, viewer, history, func(m message.Message) bool {
		return m.Sender != viewer
	})
}

func (p *Pipeline) markDelivered(ctx context.Context, viewer string, history []message.Message, eligible func(message.Message) bool) ([]message.Message, error) {
	for i, m := range history {
		if m.Status != message.StatusSent || !eligible(m) {
			continue
		}

		updated, err := p.deliver(ctx, viewer, m)
		if err != nil {
			return nil, err
		}
		history[i] = updated
	}
	return history, nil
}

// deliver advances m to delivered. A concurrent advance is not an error; the
// current message is returned instead.
func (p *Pipeline) deliver(ctx context.Context, viewer string, m message.Message) (message.Message, error) {
	unlock := p.statusLocks.Lock(m.ID)
	defer unlock()

	updated, err := p.advanceLocked(ctx, m, viewer, message.StatusDelivered)
	if errs.HasCode(err, errs.ErrStatusConflict) {
		return updated, nil
	}
	return updated, err
}
