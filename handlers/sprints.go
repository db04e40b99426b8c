package handlers

import (
	"net/http"

	"github.com/michaelc143/Planarc/database"
)

// SprintHandler serves sprints and the reports computed over them.
type SprintHandler struct {
	dataService *database.DataService
}

func NewSprintHandler(dataService *database.DataService) *SprintHandler {
	return &SprintHandler{dataService: dataService}
}

func (h *SprintHandler) ListSprints(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	sprints, err := h.dataService.ListSprints(r.Context(), actor, boardID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sprints == nil {
		sprints = []database.Sprint{}
	}
	writeSuccess(w, http.StatusOK, sprints)
}

func (h *SprintHandler) CreateSprint(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	var in database.SprintInput
	if !decodeJSON(w, r, &in) {
		return
	}
	sprint, err := h.dataService.CreateSprint(r.Context(), actor, boardID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, sprint)
}

func (h *SprintHandler) UpdateSprint(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	sprintID, ok := pathID(w, r, "sprintID")
	if !ok {
		return
	}
	var patch database.SprintPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	sprint, err := h.dataService.UpdateSprint(r.Context(), actor, boardID, sprintID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, sprint)
}

func (h *SprintHandler) DeleteSprint(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	sprintID, ok := pathID(w, r, "sprintID")
	if !ok {
		return
	}
	if err := h.dataService.DeleteSprint(r.Context(), actor, boardID, sprintID); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"deleted": sprintID})
}

func (h *SprintHandler) ActivateSprint(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	sprintID, ok := pathID(w, r, "sprintID")
	if !ok {
		return
	}
	sprint, err := h.dataService.ActivateSprint(r.Context(), actor, boardID, sprintID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, sprint)
}

func (h *SprintHandler) CloseSprint(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	sprintID, ok := pathID(w, r, "sprintID")
	if !ok {
		return
	}
	sprint, err := h.dataService.CloseSprint(r.Context(), actor, boardID, sprintID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, sprint)
}

// Burnup reports effort totals for ?sprint_id=, or for the whole board.
func (h *SprintHandler) Burnup(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	id, present, ok := queryInt(w, r, "sprint_id")
	if !ok {
		return
	}
	var sprintID *int64
	if present {
		sprintID = &id
	}
	report, err := h.dataService.Burnup(r.Context(), actor, boardID, sprintID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, report)
}

func (h *SprintHandler) CFD(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	report, err := h.dataService.CFD(r.Context(), actor, boardID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, report)
}
