package handler

import (
	"net/http"

	"chatrelay/internal/app/chat"
	"chatrelay/internal/app/storage"
	"chatrelay/internal/configs"
	"chatrelay/internal/pkg/auth/jwt"
	"chatrelay/internal/pkg/resp"
)

// AppDeps carries everything the handlers need.
type AppDeps struct {
	Manager *chat.Manager
	Config  *configs.AppConfig

	// StorageService is nil when attachments are disabled.
	StorageService storage.StorageService
}

// callerID returns the authenticated user. Routes behind jwt.RequireIdentity
// always have one.
func callerID(r *http.Request) string {
	if payload := jwt.GetPayloadFromContext(r); payload != nil {
		return payload.ID
	}
	return ""
}

// registerCaller records the authenticated user in the directory so that
// clients which only ever use the REST API can still be addressed.
func registerCaller(deps *AppDeps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			payload := jwt.GetPayloadFromContext(r)
			if payload == nil {
				next.ServeHTTP(w, r)
				return
			}

			name := payload.Name
			if name == "" {
				name = payload.ID
			}
			if _, err := deps.Manager.EnsureUser(r.Context(), payload.ID, name); err != nil {
				resp.RespondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
