package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/camden-git/framesys/database"
	"github.com/camden-git/framesys/export"
	"github.com/camden-git/framesys/models"
	"github.com/camden-git/framesys/session"
	"github.com/go-chi/chi/v5"
)

const libraryExportName = "Library"

type LibraryHandler struct {
	Session  *session.Session
	DB       database.Querier
	Packager *export.Packager
	Exporter *export.Exporter
	Logger   *slog.Logger
}

// ListKeepers returns keeper frames across every project
func (lh *LibraryHandler) ListKeepers(w http.ResponseWriter, r *http.Request) {
	frames, err := lh.Session.Library(r.Context())
	if err != nil {
		writeError(w, lh.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewFrameViews(frames))
}

func (lh *LibraryHandler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := database.ListProjectSummaries(r.Context(), lh.DB, r.URL.Query().Get("keepers") == "true")
	if err != nil {
		writeError(w, lh.Logger, err)
		return
	}
	if summaries == nil {
		summaries = []database.ProjectSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// exportSet resolves ?scope=session (default) or ?scope=library to a name and
// frame set
func (lh *LibraryHandler) exportSet(r *http.Request) (string, []models.Frame, error) {
	switch scope := r.URL.Query().Get("scope"); scope {
	case "", "session":
		project, err := lh.Session.Project()
		if err != nil {
			return "", nil, err
		}
		frames, err := lh.Session.Frames()
		return project.Name, frames, err
	case "library":
		frames, err := lh.Session.Library(r.Context())
		return libraryExportName, frames, err
	default:
		return "", nil, fmt.Errorf("%w: unknown export scope %q", session.ErrInvalidProject, scope)
	}
}

// DownloadExport streams the keeper archive as the response body
func (lh *LibraryHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	name, frames, err := lh.exportSet(r)
	if err != nil {
		writeError(w, lh.Logger, err)
		return
	}
	if len(export.Keepers(frames)) == 0 {
		writeError(w, lh.Logger, export.ErrNoKeepers)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.ArchiveName(name)))
	w.WriteHeader(http.StatusOK)

	if _, err := lh.Packager.Write(r.Context(), w, name, frames, nil); err != nil {
		// headers are gone; the client sees a truncated archive
		lh.Logger.Error("export stream failed", "project", name, "error", err)
	}
}

// DeliverExport packs the archive and hands it to the named target
func (lh *LibraryHandler) DeliverExport(w http.ResponseWriter, r *http.Request) {
	name, frames, err := lh.exportSet(r)
	if err != nil {
		writeError(w, lh.Logger, err)
		return
	}
	delivery, err := lh.Exporter.Export(r.Context(), chi.URLParam(r, "target"), name, frames, nil)
	if err != nil {
		writeError(w, lh.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, delivery)
}

func (lh *LibraryHandler) ListTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"targets": lh.Exporter.Targets()})
}
