package handlers

import (
	"net/http"

	"github.com/michaelc143/Planarc/database"
)

// BoardHandler serves boards, their members and their activity feed.
type BoardHandler struct {
	dataService *database.DataService
}

func NewBoardHandler(dataService *database.DataService) *BoardHandler {
	return &BoardHandler{dataService: dataService}
}

func (h *BoardHandler) ListBoards(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boards, err := h.dataService.ListBoards(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if boards == nil {
		boards = []database.Board{}
	}
	writeSuccess(w, http.StatusOK, boards)
}

func (h *BoardHandler) CreateBoard(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var in database.BoardInput
	if !decodeJSON(w, r, &in) {
		return
	}
	board, err := h.dataService.CreateBoard(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, board)
}

func (h *BoardHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	board, err := h.dataService.GetBoard(r.Context(), actor, boardID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, board)
}

func (h *BoardHandler) UpdateBoard(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	var patch database.BoardPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	board, err := h.dataService.UpdateBoard(r.Context(), actor, boardID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, board)
}

func (h *BoardHandler) DeleteBoard(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	if err := h.dataService.DeleteBoard(r.Context(), actor, boardID); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"deleted": boardID})
}

type memberRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

func (h *BoardHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	members, err := h.dataService.ListMembers(r.Context(), actor, boardID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if members == nil {
		members = []database.Member{}
	}
	writeSuccess(w, http.StatusOK, members)
}

func (h *BoardHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	var req memberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	member, err := h.dataService.AddMember(r.Context(), actor, boardID, req.UserID, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, member)
}

func (h *BoardHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req memberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	member, err := h.dataService.UpdateMemberRole(r.Context(), actor, boardID, userID, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, member)
}

func (h *BoardHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.dataService.RemoveMember(r.Context(), actor, boardID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"removed": userID})
}

func (h *BoardHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	limit, _, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	events, err := h.dataService.ListActivity(r.Context(), actor, boardID, int(limit))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []database.ActivityEvent{}
	}
	writeSuccess(w, http.StatusOK, events)
}
