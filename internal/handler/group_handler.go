/*
Package handler provides HTTP handler functions for group creation, listing and history.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"chatrelay/internal/app/group"
	"chatrelay/internal/app/user"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/req"
	"chatrelay/internal/pkg/resp"
)

type CreateGroupInput struct {
	Name string `json:"name" validate:"required,max=100"`
	// Members lists the other members; the caller is always added.
	Members []string `json:"members" validate:"required,min=1,max=500,dive,required"`
	Avatar  string   `json:"avatar,omitempty" validate:"max=512"`
}

// groupView is a group as listed to one of its members.
type groupView struct {
	group.Group
	MemberNames map[string]string `json:"memberNames"`
}

// HandleCreateGroup creates a group with the caller as a member.
func HandleCreateGroup(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CreateGroupInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		g, err := deps.Manager.CreateGroup(r.Context(), callerID(r), input.Name, input.Members, input.Avatar)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondCreated(w, r, map[string]any{
			"group": g,
		})
	}
}

// HandleListGroups lists the caller's groups with their members' display names.
func HandleListGroups(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups, err := deps.Manager.GroupsFor(r.Context(), callerID(r))
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		names := map[string]string{}
		if users, err := deps.Manager.Users(r.Context()); err != nil {
			logx.Warn("Group listing without member names", "error", err.Error())
		} else {
			names = lo.SliceToMap(users, func(u user.User) (string, string) {
				return u.ID, u.DisplayName
			})
		}

		views := lo.Map(groups, func(g group.Group, _ int) groupView {
			return groupView{
				Group:       g,
				MemberNames: lo.PickByKeys(names, g.Members),
			}
		})

		resp.RespondSuccess(w, r, map[string]any{
			"groups": views,
		})
	}
}

// HandleGroupHistory returns a group's history to one of its members.
func HandleGroupHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := chi.URLParam(r, "groupID")
		if groupID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		history, err := deps.Manager.Pipeline().GroupHistory(r.Context(), callerID(r), groupID)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messages": history,
		})
	}
}
