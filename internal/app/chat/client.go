/*
Package chat contains the real-time delivery core: the connection registry,
presence tracking, the message pipeline, fan-out and the typing relay.

This file defines the Client struct, representing an active WebSocket connection. It manages the
connection's lifecycle and its message loops (ReadPump and WritePump).
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrelay/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the client.
	maxMessageSize = 16384

	// sendBuffer is the capacity of a client's outbound queue.
	sendBuffer = 256

	// WsCloseCodeSessionExpired is a custom WebSocket Close Code (4000-4999 range)
	// telling the client that its identity token expired and it must reconnect.
	WsCloseCodeSessionExpired = 4001
)

var (
	errClientClosed  = errors.New("client connection closed")
	errSendQueueFull = errors.New("client send queue full")
)

// Client struct represents an active WebSocket connection and its associated user.
type Client struct {
	id     string
	userID string

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// manager dispatches inbound events and is told about disconnects.
	manager *Manager

	// tokenExpiry records the expiration time of the JWT the client connected with; zero means none.
	tokenExpiry time.Time

	// a buffered channel used to queue messages waiting to be sent to the client.
	send chan []byte

	// done is closed when the connection is shutting down; send is never closed.
	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string

	// structured logger with client context.
	logger zerolog.Logger
}

func newClient(m *Manager, wsConn *websocket.Conn, connID, userID string, expiry time.Time) *Client {
	return &Client{
		id:          connID,
		userID:      userID,
		conn:        wsConn,
		manager:     m,
		tokenExpiry: expiry,
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
		closeCode:   websocket.CloseNormalClosure,
		logger: logx.Logger().With().
			Str("conn_id", connID).
			Str("user_id", userID).
			Logger(),
	}
}

// ID implements Connection.
func (c *Client) ID() string { return c.id }

// UserID implements Connection.
func (c *Client) UserID() string { return c.userID }

// Send implements Connection. It marshals ev and queues it without blocking.
func (c *Client) Send(ev Event) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	data, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error().Err(err).Str("event", string(ev.Type)).Msg("Error marshaling event for client")
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping message")
		return errSendQueueFull
	}
}

// SendError queues an error event correlated with tempID.
func (c *Client) SendError(err error, tempID string) {
	if sendErr := c.Send(errorEvent(err, tempID)); sendErr != nil {
		c.logger.Debug().Err(sendErr).Msg("Failed to queue error event")
	}
}

// Close asks the write loop to send a close frame with code and stop.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = reason
		close(c.done)
	})
}

// ReadPump handles reading events from the WebSocket connection until it
// fails or closes, then unregisters the client. Transport closure is a disconnect.
func (c *Client) ReadPump(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			return
		}

		c.manager.dispatch(ctx, c, data)
	}
}

// cleanupOnDisconnect handles the necessary cleanup steps when the client's ReadPump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Debug().Msg("Client connection cleanup starting.")

	c.manager.disconnect(c)
	c.Close(websocket.CloseNormalClosure, "")

	if err := c.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// WritePump handles writing messages from the send channel to the WebSocket
// connection and keeps the heartbeat going.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message := <-c.send:
			if !c.writeQueuedMessage(message) {
				return
			}

		case <-ticker.C:
			if !c.tokenExpiry.IsZero() && time.Now().After(c.tokenExpiry) {
				c.logger.Info().Time("expiry", c.tokenExpiry).Msg("Identity token expired, closing connection.")
				c.Close(WsCloseCodeSessionExpired, "session expired")
				continue
			}
			if !c.writePingMessage() {
				return
			}

		case <-c.done:
			c.writeCloseMessage()
			return
		}
	}
}

// writeQueuedMessage writes one queued frame. It returns false if the loop should terminate.
func (c *Client) writeQueuedMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// writeCloseMessage flushes what is already queued, then sends the close frame.
func (c *Client) writeCloseMessage() {
	for drained := false; !drained; {
		select {
		case message := <-c.send:
			if !c.writeQueuedMessage(message) {
				return
			}
		default:
			drained = true
		}
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	closeMessage := websocket.FormatCloseMessage(c.closeCode, c.closeText)
	if err := c.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to send WS close message.")
	}
}
