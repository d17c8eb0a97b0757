package httpapi

import (
	"net/http"
	"strings"

	"signflow.org/internal/audit"
	"signflow.org/internal/auth"
)

type userListResponse struct {
	Items []*auth.User `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
	Pages int          `json:"pages"`
}

type userUpdateRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := principalOr401(w, r); !ok {
		return
	}
	page, err := parseBoundedInt(r.URL.Query().Get("page"), 1, 1, 1<<20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	limit, err := parseBoundedInt(r.URL.Query().Get("limit"), 10, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	users, total, err := a.auth.ListUsers(r.Context(), page, limit)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	pages := (total + limit - 1) / limit
	writeJSON(w, http.StatusOK, userListResponse{
		Items: users,
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: pages,
	})
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOr401(w, r)
	if !ok {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	// Signer pickers use /v1/users/role/{role} to list assignable accounts.
	if role, found := strings.CutPrefix(path, "role/"); found {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		users, err := a.auth.ListActiveByRole(r.Context(), role)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": users})
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id := path

	switch r.Method {
	case http.MethodGet:
		user, err := a.auth.GetUser(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		if p.ID != id {
			writeError(w, r, http.StatusForbidden, "accounts can only be modified by their owner")
			return
		}
		var req userUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.auth.UpdateUser(r.Context(), id, auth.UserUpdate{
			Name:     req.Name,
			Email:    req.Email,
			Role:     req.Role,
			IsActive: req.IsActive,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "auth.user.updated", map[string]any{
			"user_id": user.ID,
		})
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if p.ID != id {
			writeError(w, r, http.StatusForbidden, "accounts can only be deleted by their owner")
			return
		}
		if err := a.auth.DeleteUser(r.Context(), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "auth.user.deleted", map[string]any{
			"user_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}
