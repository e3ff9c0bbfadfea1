/*
Package handler provides HTTP handler functions for the user directory.
*/
package handler

import (
	"net/http"

	"chatrelay/internal/pkg/resp"
)

// HandleListUsers lists every known user with live presence applied.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := deps.Manager.Users(r.Context())
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"users": users,
		})
	}
}
