// Package groups exposes the savings-group API over HTTP.
package groups

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/concordia-save/concordia/pkg/models"
	"github.com/concordia-save/concordia/pkg/resolver"
	"github.com/concordia-save/concordia/pkg/storage"
	"github.com/go-chi/chi/v5"
)

// GroupsHandler holds the dependencies for group-related handlers.
type GroupsHandler struct {
	Resolver *resolver.Resolver
}

// NewGroupsHandler creates a new GroupsHandler.
func NewGroupsHandler(res *resolver.Resolver) *GroupsHandler {
	return &GroupsHandler{Resolver: res}
}

// Routes mounts every group endpoint on a fresh router.
func (h *GroupsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListGroups)
	r.Post("/", h.CreateGroup)
	r.Post("/join", h.JoinGroup)
	r.Get("/{groupID}", h.GetGroup)
	r.Put("/{groupID}", h.UpdateGroup)
	r.Delete("/{groupID}", h.DeleteGroup)
	r.Get("/{groupID}/access", h.GetAccess)
	r.Post("/{groupID}/contributions", h.Contribute)
	r.Post("/{groupID}/invite", h.RotateInvite)
	return r
}

// statusFor maps storage errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrAccessDenied),
		errors.Is(err, storage.ErrInviteUsed),
		errors.Is(err, storage.ErrInviteExpired):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrGroupFull):
		return http.StatusConflict
	case errors.Is(err, storage.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, storage.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}

// ListGroups handles the logic for listing the caller's groups.
func (h *GroupsHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("address")

	groups, err := h.Resolver.ListGroups(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, groups)
}

// CreateGroup handles the logic for creating a new savings group.
func (h *GroupsHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	// Decode the request body.
	var params resolver.CreateGroupParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	// Duplicate ids come back as the stored group, so retried creates
	// never surface a conflict.
	group, err := h.Resolver.CreateGroup(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, group)
}

// GetGroup handles the logic for fetching a single group.
func (h *GroupsHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	addr := r.URL.Query().Get("address")

	group, err := h.Resolver.GetGroup(r.Context(), groupID, addr)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, group)
}

// UpdateGroup handles the logic for patching a group's mutable fields.
func (h *GroupsHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	addr := r.URL.Query().Get("address")

	// Decode the request body.
	var patch models.GroupPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	group, err := h.Resolver.UpdateGroup(r.Context(), groupID, patch, addr)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, group)
}

// DeleteGroup handles the logic for deleting a group.
func (h *GroupsHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	addr := r.URL.Query().Get("address")

	if err := h.Resolver.DeleteGroup(r.Context(), groupID, addr); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// JoinGroup handles the logic for consuming an invite code.
func (h *GroupsHandler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	// Decode the request body.
	var params resolver.JoinParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	group, err := h.Resolver.JoinGroup(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, group)
}

// GetAccess handles the logic for reporting the caller's access flags.
func (h *GroupsHandler) GetAccess(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	addr := r.URL.Query().Get("address")

	summary, err := h.Resolver.Summary(r.Context(), groupID, addr)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Contribute handles the logic for recording a pending contribution.
func (h *GroupsHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	// Decode the request body.
	var params resolver.ContributeParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	params.GroupID = chi.URLParam(r, "groupID")

	contribution, err := h.Resolver.Contribute(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, contribution)
}

// RotateInvite handles the logic for minting a replacement invite code.
func (h *GroupsHandler) RotateInvite(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	addr := r.URL.Query().Get("address")

	group, err := h.Resolver.RotateInvite(r.Context(), groupID, addr)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, group)
}
