/*
Package handler provides the HTTP handlers and routing setup for the chat relay.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"chatrelay/internal/pkg/auth/jwt"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/limiter"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/resp"
)

const (
	CreateGroupRate  = 0.05
	CreateGroupBurst = 3
	ConnectRate      = 0.5
	ConnectBurst     = 10
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// The rate limiters' cleanup goroutines stop when ctx is cancelled.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	createLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(CreateGroupRate), CreateGroupBurst)
	connectLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(ConnectRate), ConnectBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Manager.Ping(r.Context()); err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrStoreUnavailable, err))
			return
		}

		data := map[string]string{
			"status":  "ok",
			"service": "Chat Relay",
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))
		api.Use(jwt.RequireIdentity)
		api.Use(registerCaller(deps))

		api.Get("/users", HandleListUsers(deps))

		api.Get("/conversations/{peerID}", HandleGetConversation(deps))
		api.Post("/messages", HandleSendMessage(deps))
		api.Post("/messages/read", HandleMarkRead(deps))

		api.Route("/groups", func(groups chi.Router) {
			groups.Get("/", HandleListGroups(deps))
			groups.With(createLimiter.Middleware).Post("/", HandleCreateGroup(deps))
			groups.Get("/{groupID}/messages", HandleGroupHistory(deps))
		})

		if deps.StorageService != nil {
			api.Post("/file/presign-upload", HandlePresignUploadURL(deps.StorageService))
			api.Get("/file/presign-download", HandlePresignDownloadURL(deps.StorageService))
		}
	})

	r.With(
		connectLimiter.Middleware,
		jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret),
	).Get("/ws", HandleWebSocket(deps.Manager, wsUpgrader))

	return r
}
