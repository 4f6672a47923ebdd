package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/camden-git/framesys/models"
	"github.com/camden-git/framesys/session"
)

type SessionHandler struct {
	Session *session.Session
	Logger  *slog.Logger
}

type sessionResponse struct {
	Project *models.Project       `json:"project"`
	Status  models.PipelineStatus `json:"status"`
}

func (sh *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	resp := sessionResponse{Status: sh.Session.Status()}
	if project, err := sh.Session.Project(); err == nil {
		resp.Project = project
	}
	writeJSON(w, http.StatusOK, resp)
}

func (sh *SessionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sh.Session.Status())
}

// StartScan starts sampling the open project. The scan runs in the
// background; progress is pushed over the websocket.
func (sh *SessionHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Replace bool `json:"replace"`
	}
	if err := decodeOptionalJSON(r, &req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}

	if err := sh.Session.StartScan(r.Context(), req.Replace); err != nil {
		writeError(w, sh.Logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sh.Session.Status())
}

func (sh *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sh.Session.Reset()
	writeJSON(w, http.StatusOK, sessionResponse{Status: sh.Session.Status()})
}

func (sh *SessionHandler) UpdateScanSettings(w http.ResponseWriter, r *http.Request) {
	var req session.ScanSettings
	if !decodeJSON(w, r, &req) {
		return
	}
	project, err := sh.Session.SetScanSettings(r.Context(), req)
	if err != nil {
		writeError(w, sh.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (sh *SessionHandler) ListFrames(w http.ResponseWriter, r *http.Request) {
	var (
		frames []models.Frame
		err    error
	)
	if r.URL.Query().Get("keepers") == "true" {
		frames, err = sh.Session.Keepers()
	} else {
		frames, err = sh.Session.Frames()
	}
	if err != nil {
		writeError(w, sh.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewFrameViews(frames))
}

func (sh *SessionHandler) SuggestCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := sh.Session.SuggestCategories(r.Context())
	if err != nil {
		writeError(w, sh.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": categories})
}

// decodeOptionalJSON accepts an empty body
func decodeOptionalJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
