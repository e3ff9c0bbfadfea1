/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which authenticates the caller,
upgrades the HTTP connection to WebSocket, and hands the socket to the chat core.
*/
package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/app/chat"
	"chatrelay/internal/pkg/auth/jwt"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// The identity token arrives as ?token= or an Authorization bearer header.
func HandleWebSocket(manager *chat.Manager, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			logx.Warn("WebSocket request rejected: missing or invalid token")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		displayName := payload.Name
		if displayName == "" {
			displayName = payload.ID
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket", "user_id", payload.ID)
			return
		}

		identity := chat.Identity{UserID: payload.ID, DisplayName: displayName}
		if payload.ExpiresAt > 0 {
			identity.ExpiresAt = time.Unix(payload.ExpiresAt, 0)
		}

		if _, err := manager.Connect(conn, identity); err != nil {
			logx.Error(err, "Failed to register WebSocket client", "user_id", payload.ID)

			customErr := errs.From(err)
			closeMessage := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, customErr.Message)
			_ = conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(time.Second))
			_ = conn.Close()
		}
	}
}
