package handlers

import (
	"net/http"

	"github.com/michaelc143/Planarc/database"
)

// UserHandler serves per-user settings.
type UserHandler struct {
	dataService *database.DataService
}

func NewUserHandler(dataService *database.DataService) *UserHandler {
	return &UserHandler{dataService: dataService}
}

func (h *UserHandler) GetDefaults(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	defaults, err := h.dataService.GetUserDefaults(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, defaults)
}

// SetDefaults replaces the caller's default lane and priority names.
func (h *UserHandler) SetDefaults(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Statuses   []string `json:"statuses"`
		Priorities []string `json:"priorities"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	defaults, err := h.dataService.SetUserDefaults(r.Context(), actor.UserID, req.Statuses, req.Priorities)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, defaults)
}
