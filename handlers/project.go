package handlers

import (
	"log/slog"
	"net/http"

	"github.com/camden-git/framesys/database"
	"github.com/camden-git/framesys/models"
	"github.com/camden-git/framesys/session"
	"github.com/go-chi/chi/v5"
)

type ProjectHandler struct {
	Session *session.Session
	DB      database.Querier
	Logger  *slog.Logger
}

func (ph *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	sortOrder := r.URL.Query().Get("sort")
	if sortOrder == "" {
		sortOrder = database.DefaultSortOrder
	}
	if !database.IsValidSortOrder(sortOrder) {
		WriteAPIError(w, http.StatusBadRequest, "invalid_sort", "Invalid sort order: "+sortOrder)
		return
	}

	projects, err := ph.Session.ListProjects(r.Context(), sortOrder)
	if err != nil {
		writeError(w, ph.Logger, err)
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (ph *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		MediaPath string `json:"mediaPath"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	project, err := ph.Session.CreateProject(r.Context(), req.Name, req.MediaPath)
	if err != nil {
		writeError(w, ph.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// OpenProject makes a saved project the session's open project
func (ph *ProjectHandler) OpenProject(w http.ResponseWriter, r *http.Request) {
	project, err := ph.Session.OpenProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, ph.Logger, err)
		return
	}
	frames, err := ph.Session.Frames()
	if err != nil {
		writeError(w, ph.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project": project,
		"frames":  models.NewFrameViews(frames),
	})
}

func (ph *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := ph.Session.DeleteProject(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		writeError(w, ph.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ph *ProjectHandler) GetProjectSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := database.GetProjectSummary(r.Context(), ph.DB, chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, ph.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
