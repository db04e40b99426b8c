package handlers

import (
	"net/http"

	"github.com/michaelc143/Planarc/database"
)

// TaskHandler serves tasks, reorders and the dependency graph.
type TaskHandler struct {
	dataService *database.DataService
}

func NewTaskHandler(dataService *database.DataService) *TaskHandler {
	return &TaskHandler{dataService: dataService}
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	sprintID, _, ok := queryInt(w, r, "sprint_id")
	if !ok {
		return
	}
	filter := database.TaskFilter{
		Status:   r.URL.Query().Get("status"),
		SprintID: sprintID,
	}
	tasks, err := h.dataService.ListTasks(r.Context(), actor, boardID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []database.Task{}
	}
	writeSuccess(w, http.StatusOK, tasks)
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	var in database.TaskInput
	if !decodeJSON(w, r, &in) {
		return
	}
	task, err := h.dataService.CreateTask(r.Context(), actor, boardID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	taskID, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	task, err := h.dataService.GetTask(r.Context(), actor, boardID, taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	taskID, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	var patch database.TaskPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	task, err := h.dataService.UpdateTask(r.Context(), actor, boardID, taskID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	taskID, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	if err := h.dataService.DeleteTask(r.Context(), actor, boardID, taskID); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"deleted": taskID})
}

// ReorderTasks applies a batch of moves atomically.
func (h *TaskHandler) ReorderTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	var req struct {
		Moves []database.Move `json:"moves"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	tasks, err := h.dataService.ReorderTasks(r.Context(), actor, boardID, req.Moves)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []database.Task{}
	}
	writeSuccess(w, http.StatusOK, tasks)
}

func (h *TaskHandler) BulkUpdateTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	var req struct {
		TaskIDs []int64            `json:"task_ids"`
		Changes database.TaskPatch `json:"changes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	tasks, err := h.dataService.BulkUpdateTasks(r.Context(), actor, boardID, req.TaskIDs, req.Changes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []database.Task{}
	}
	writeSuccess(w, http.StatusOK, tasks)
}

func (h *TaskHandler) ListTaskDependencies(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	taskID, ok := pathID(w, r, "taskID")
	if !ok {
		return
	}
	deps, err := h.dataService.ListTaskDependencies(r.Context(), actor, boardID, taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, deps)
}

func (h *TaskHandler) ListDependencies(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	deps, err := h.dataService.ListDependencies(r.Context(), actor, boardID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if deps == nil {
		deps = []database.Dependency{}
	}
	writeSuccess(w, http.StatusOK, deps)
}

func (h *TaskHandler) AddDependency(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	var req struct {
		BlockerTaskID int64 `json:"blocker_task_id"`
		BlockedTaskID int64 `json:"blocked_task_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	dep, err := h.dataService.AddDependency(r.Context(), actor, boardID, req.BlockerTaskID, req.BlockedTaskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, dep)
}

func (h *TaskHandler) RemoveDependency(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	depID, ok := pathID(w, r, "dependencyID")
	if !ok {
		return
	}
	if err := h.dataService.RemoveDependency(r.Context(), actor, boardID, depID); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"deleted": depID})
}
