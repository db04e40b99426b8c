package handlers

import (
	"context"
	"net/http"

	"github.com/michaelc143/Planarc/database"
)

// taxonomyOps binds the lane or priority half of the registry.
type taxonomyOps struct {
	idVar  string
	list   func(ctx context.Context, actor database.Actor, boardID int64) ([]database.TaxonomyEntry, error)
	create func(ctx context.Context, actor database.Actor, boardID int64, in database.EntryInput) (*database.TaxonomyEntry, error)
	update func(ctx context.Context, actor database.Actor, boardID, id int64, patch database.EntryPatch) (*database.TaxonomyEntry, error)
	remove func(ctx context.Context, actor database.Actor, boardID, id int64) error
}

// TaxonomyHandler serves a board's statuses (lanes) and priorities.
type TaxonomyHandler struct {
	statuses   taxonomyOps
	priorities taxonomyOps
}

func NewTaxonomyHandler(dataService *database.DataService) *TaxonomyHandler {
	return &TaxonomyHandler{
		statuses: taxonomyOps{
			idVar:  "statusID",
			list:   dataService.ListLanes,
			create: dataService.CreateLane,
			update: dataService.UpdateLane,
			remove: dataService.DeleteLane,
		},
		priorities: taxonomyOps{
			idVar:  "priorityID",
			list:   dataService.ListPriorities,
			create: dataService.CreatePriority,
			update: dataService.UpdatePriority,
			remove: dataService.DeletePriority,
		},
	}
}

func (h *TaxonomyHandler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	h.statuses.serveList(w, r)
}

func (h *TaxonomyHandler) CreateStatus(w http.ResponseWriter, r *http.Request) {
	h.statuses.serveCreate(w, r)
}

func (h *TaxonomyHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	h.statuses.serveUpdate(w, r)
}

func (h *TaxonomyHandler) DeleteStatus(w http.ResponseWriter, r *http.Request) {
	h.statuses.serveDelete(w, r)
}

func (h *TaxonomyHandler) ListPriorities(w http.ResponseWriter, r *http.Request) {
	h.priorities.serveList(w, r)
}

func (h *TaxonomyHandler) CreatePriority(w http.ResponseWriter, r *http.Request) {
	h.priorities.serveCreate(w, r)
}

func (h *TaxonomyHandler) UpdatePriority(w http.ResponseWriter, r *http.Request) {
	h.priorities.serveUpdate(w, r)
}

func (h *TaxonomyHandler) DeletePriority(w http.ResponseWriter, r *http.Request) {
	h.priorities.serveDelete(w, r)
}

func (o taxonomyOps) serveList(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	entries, err := o.list(r.Context(), actor, boardID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []database.TaxonomyEntry{}
	}
	writeSuccess(w, http.StatusOK, entries)
}

func (o taxonomyOps) serveCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	var in database.EntryInput
	if !decodeJSON(w, r, &in) {
		return
	}
	entry, err := o.create(r.Context(), actor, boardID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, entry)
}

func (o taxonomyOps) serveUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, o.idVar)
	if !ok {
		return
	}
	var patch database.EntryPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	entry, err := o.update(r.Context(), actor, boardID, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, entry)
}

func (o taxonomyOps) serveDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, o.idVar)
	if !ok {
		return
	}
	if err := o.remove(r.Context(), actor, boardID, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"deleted": id})
}
