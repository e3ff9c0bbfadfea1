package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"chatrelay/internal/app/message"
	"chatrelay/internal/pkg/logx"
)

const routerQueueBuffer = 1024

// job is one unit of fan-out work handled by the router loop.
type job struct {
	ev      Event
	message message.Message

	// origin is the connection that produced the job; it is left out of the echo.
	origin string

	// senderOnly restricts delivery to the message sender's connections.
	senderOnly bool
}

// Router resolves a message to the live connections that must see it and
// emits it there. Emission happens on the router's own loop.
type Router struct {
	registry *Registry
	rooms    *Rooms

	queue    chan job
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger zerolog.Logger
}

// NewRouter creates a router; call Start before delivering.
func NewRouter(registry *Registry, rooms *Rooms) *Router {
	return &Router{
		registry: registry,
		rooms:    rooms,
		queue:    make(chan job, routerQueueBuffer),
		stop:     make(chan struct{}),
		logger:   logx.Component("Router"),
	}
}

// Start launches the fan-out loop.
func (r *Router) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *Router) run() {
	defer r.wg.Done()

	r.logger.Info().Msg("Fan-out loop started.")

	for {
		select {
		case <-r.stop:
			r.logger.Info().Int("pending", len(r.queue)).Msg("Fan-out loop stopped.")
			return
		case j := <-r.queue:
			r.handle(j)
		}
	}
}

// Stop ends the fan-out loop and waits for it to finish. Queued jobs are dropped.
func (r *Router) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

// Route returns the connections that must receive m: both participants of a
// direct message, or every member of a group. Duplicates are removed.
func (r *Router) Route(ctx context.Context, m message.Message) ([]Connection, error) {
	var users []string
	if m.Group != "" {
		g, err := r.rooms.Get(ctx, m.Group)
		if err != nil {
			return nil, err
		}
		users = g.Members
	} else {
		users = []string{m.Receiver, m.Sender}
	}

	var targets []Connection
	for _, userID := range lo.Uniq(users) {
		targets = append(targets, r.registry.ConnectionsFor(userID)...)
	}

	return lo.UniqBy(targets, Connection.ID), nil
}

// Deliver schedules m for fan-out. The connection identified by origin, if
// any, is skipped; it is acknowledged separately.
func (r *Router) Deliver(m message.Message, origin string) {
	r.enqueue(job{ev: messageEvent(m), message: m, origin: origin})
}

// NotifyStatus schedules a status update for the sender of m.
func (r *Router) NotifyStatus(m message.Message, by string) {
	r.enqueue(job{ev: statusEvent(m, by), message: m, senderOnly: true})
}

func (r *Router) enqueue(j job) {
	select {
	case r.queue <- j:
	case <-r.stop:
		r.logger.Debug().Str("message_id", j.message.ID).Msg("Router stopped, fan-out dropped.")
	}
}

func (r *Router) handle(j job) {
	var targets []Connection
	if j.senderOnly {
		targets = r.registry.ConnectionsFor(j.message.Sender)
	} else {
		var err error
		targets, err = r.Route(context.Background(), j.message)
		if err != nil {
			// The message is already persisted and stays sent until fetched.
			r.logger.Error().Err(err).Str("message_id", j.message.ID).Msg("Failed to resolve fan-out targets.")
			return
		}
	}

	delivered := 0
	for _, c := range targets {
		if c.ID() == j.origin {
			continue
		}
		if err := c.Send(j.ev); err != nil {
			r.logger.Debug().Err(err).
				Str("conn_id", c.ID()).
				Str("message_id", j.message.ID).
				Msg("Target connection unavailable.")
			continue
		}
		delivered++
	}

	r.logger.Debug().
		Str("event", string(j.ev.Type)).
		Str("message_id", j.message.ID).
		Int("targets", len(targets)).
		Int("delivered", delivered).
		Msg("Fan-out complete.")
}
