/*
Package handler provides HTTP handler functions for direct message history and the REST send path.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatrelay/internal/app/chat"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/req"
	"chatrelay/internal/pkg/resp"
)

// HandleGetConversation returns the direct history between the caller and peerID.
// Messages addressed to the caller that were still sent become delivered.
func HandleGetConversation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		peerID := chi.URLParam(r, "peerID")
		if peerID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		history, err := deps.Manager.Pipeline().Conversation(r.Context(), callerID(r), peerID)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messages": history,
		})
	}
}

// HandleSendMessage accepts a message over HTTP. It shares the socket send
// path, so a retried request within the dedup window returns the stored message.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input chat.SendMessagePayload
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		sender := callerID(r)
		if input.Sender != "" && input.Sender != sender {
			resp.RespondError(w, r, errs.NewError(errs.ErrSenderMismatch))
			return
		}

		msg, duplicate, err := deps.Manager.Pipeline().Submit(r.Context(), input.Draft(sender), "")
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		data := chat.MessageSentPayload{Message: msg, Duplicate: duplicate}
		if duplicate {
			resp.RespondSuccess(w, r, data)
			return
		}
		resp.RespondCreated(w, r, data)
	}
}

// HandleMarkRead marks a batch of messages addressed to the caller as read.
func HandleMarkRead(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input chat.MarkReadPayload
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		updated, err := deps.Manager.Pipeline().MarkRead(r.Context(), callerID(r), input.MessageIDs)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messages": updated,
		})
	}
}
