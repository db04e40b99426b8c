package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/michaelc143/Planarc/database"
	"github.com/michaelc143/Planarc/services"
)

const (
	boardPath  = "/boards/{boardID:[0-9]+}"
	boardsPath = "/boards"
)

// NewRouter wires every API route. Everything under /api requires a bearer
// token; /healthz does not.
func NewRouter(dataService *database.DataService, authService *services.AuthService, logger *slog.Logger) *mux.Router {
	authMiddleware := NewAuthMiddleware(authService)
	authHandler := NewAuthHandler()
	boardHandler := NewBoardHandler(dataService)
	taxonomyHandler := NewTaxonomyHandler(dataService)
	taskHandler := NewTaskHandler(dataService)
	sprintHandler := NewSprintHandler(dataService)
	userHandler := NewUserHandler(dataService)

	r := mux.NewRouter()
	r.Use(RequestLogger(logger))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dataService.Ping(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"database": "ok"})
	}).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware.Auth)

	// Auth routes
	api.HandleFunc("/auth/verify", authHandler.VerifyToken).Methods("GET")

	// Boards and members
	api.HandleFunc(boardsPath, boardHandler.ListBoards).Methods("GET")
	api.HandleFunc(boardsPath, boardHandler.CreateBoard).Methods("POST")
	api.HandleFunc(boardPath, boardHandler.GetBoard).Methods("GET")
	api.HandleFunc(boardPath, boardHandler.UpdateBoard).Methods("PUT")
	api.HandleFunc(boardPath, boardHandler.DeleteBoard).Methods("DELETE")
	api.HandleFunc(boardPath+"/members", boardHandler.ListMembers).Methods("GET")
	api.HandleFunc(boardPath+"/members", boardHandler.AddMember).Methods("POST")
	api.HandleFunc(boardPath+"/members/{userID:[0-9]+}", boardHandler.UpdateMember).Methods("PUT")
	api.HandleFunc(boardPath+"/members/{userID:[0-9]+}", boardHandler.RemoveMember).Methods("DELETE")
	api.HandleFunc(boardPath+"/activity", boardHandler.ListActivity).Methods("GET")

	// Taxonomy
	api.HandleFunc(boardPath+"/statuses", taxonomyHandler.ListStatuses).Methods("GET")
	api.HandleFunc(boardPath+"/statuses", taxonomyHandler.CreateStatus).Methods("POST")
	api.HandleFunc(boardPath+"/statuses/{statusID:[0-9]+}", taxonomyHandler.UpdateStatus).Methods("PUT")
	api.HandleFunc(boardPath+"/statuses/{statusID:[0-9]+}", taxonomyHandler.DeleteStatus).Methods("DELETE")
	api.HandleFunc(boardPath+"/priorities", taxonomyHandler.ListPriorities).Methods("GET")
	api.HandleFunc(boardPath+"/priorities", taxonomyHandler.CreatePriority).Methods("POST")
	api.HandleFunc(boardPath+"/priorities/{priorityID:[0-9]+}", taxonomyHandler.UpdatePriority).Methods("PUT")
	api.HandleFunc(boardPath+"/priorities/{priorityID:[0-9]+}", taxonomyHandler.DeletePriority).Methods("DELETE")

	// Tasks and dependencies
	api.HandleFunc(boardPath+"/tasks", taskHandler.ListTasks).Methods("GET")
	api.HandleFunc(boardPath+"/tasks", taskHandler.CreateTask).Methods("POST")
	api.HandleFunc(boardPath+"/tasks/reorder", taskHandler.ReorderTasks).Methods("POST")
	api.HandleFunc(boardPath+"/tasks/bulk", taskHandler.BulkUpdateTasks).Methods("POST")
	api.HandleFunc(boardPath+"/tasks/{taskID:[0-9]+}", taskHandler.GetTask).Methods("GET")
	api.HandleFunc(boardPath+"/tasks/{taskID:[0-9]+}", taskHandler.UpdateTask).Methods("PUT")
	api.HandleFunc(boardPath+"/tasks/{taskID:[0-9]+}", taskHandler.DeleteTask).Methods("DELETE")
	api.HandleFunc(boardPath+"/tasks/{taskID:[0-9]+}/dependencies", taskHandler.ListTaskDependencies).Methods("GET")
	api.HandleFunc(boardPath+"/dependencies", taskHandler.ListDependencies).Methods("GET")
	api.HandleFunc(boardPath+"/dependencies", taskHandler.AddDependency).Methods("POST")
	api.HandleFunc(boardPath+"/dependencies/{dependencyID:[0-9]+}", taskHandler.RemoveDependency).Methods("DELETE")

	// Sprints and reports
	api.HandleFunc(boardPath+"/sprints", sprintHandler.ListSprints).Methods("GET")
	api.HandleFunc(boardPath+"/sprints", sprintHandler.CreateSprint).Methods("POST")
	api.HandleFunc(boardPath+"/sprints/{sprintID:[0-9]+}", sprintHandler.UpdateSprint).Methods("PUT")
	api.HandleFunc(boardPath+"/sprints/{sprintID:[0-9]+}", sprintHandler.DeleteSprint).Methods("DELETE")
	api.HandleFunc(boardPath+"/sprints/{sprintID:[0-9]+}/activate", sprintHandler.ActivateSprint).Methods("POST")
	api.HandleFunc(boardPath+"/sprints/{sprintID:[0-9]+}/close", sprintHandler.CloseSprint).Methods("POST")
	api.HandleFunc(boardPath+"/reports/burnup", sprintHandler.Burnup).Methods("GET")
	api.HandleFunc(boardPath+"/reports/cfd", sprintHandler.CFD).Methods("GET")

	// User settings
	api.HandleFunc("/users/defaults", userHandler.GetDefaults).Methods("GET")
	api.HandleFunc("/users/defaults", userHandler.SetDefaults).Methods("PUT")

	return r
}
