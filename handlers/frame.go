package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/camden-git/framesys/media"
	"github.com/camden-git/framesys/models"
	"github.com/camden-git/framesys/session"
	"github.com/go-chi/chi/v5"
)

// FrameEnhancer runs enhancement and flattening directly
type FrameEnhancer interface {
	Enhance(ctx context.Context, frameID string, styles models.EnhancementStyles) (*models.Frame, error)
	SaveAsNew(ctx context.Context, frameID string) (*models.Frame, error)
}

// JobQueue accepts provider-bound work for the background worker
type JobQueue interface {
	Enhance(frameID string, styles models.EnhancementStyles) error
	BatchEnhance(frameIDs []string, styles models.EnhancementStyles) error
	Reanalyze(frameID string) error
}

type FrameHandler struct {
	Session          *session.Session
	Enhancer         FrameEnhancer
	Queue            JobQueue
	Processor        *media.Processor
	ThumbnailMaxSize int
	Logger           *slog.Logger
}

func (fh *FrameHandler) frame(w http.ResponseWriter, r *http.Request) (*models.Frame, bool) {
	frame, err := fh.Session.Frame(chi.URLParam(r, "frameID"))
	if err != nil {
		writeError(w, fh.Logger, err)
		return nil, false
	}
	return frame, true
}

func (fh *FrameHandler) GetFrame(w http.ResponseWriter, r *http.Request) {
	frame, ok := fh.frame(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.NewFrameView(frame))
}

func (fh *FrameHandler) ToggleKeeper(w http.ResponseWriter, r *http.Request) {
	frame, err := fh.Session.ToggleKeeper(r.Context(), chi.URLParam(r, "frameID"))
	if err != nil {
		writeError(w, fh.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewFrameView(frame))
}

func (fh *FrameHandler) SetCategories(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Categories []string `json:"categories"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	frame, err := fh.Session.SetCategories(r.Context(), chi.URLParam(r, "frameID"), req.Categories)
	if err != nil {
		writeError(w, fh.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewFrameView(frame))
}

func (fh *FrameHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	frame, err := fh.Session.RenameFrame(r.Context(), chi.URLParam(r, "frameID"), req.Name)
	if err != nil {
		writeError(w, fh.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewFrameView(frame))
}

func (fh *FrameHandler) DeleteFrame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "frameID")
	if err := fh.Session.DeleteFrame(r.Context(), id); err != nil {
		writeError(w, fh.Logger, err)
		return
	}
	fh.Processor.DropThumbnails(id)
	w.WriteHeader(http.StatusNoContent)
}

type enhanceRequest struct {
	FrameIDs []string                 `json:"frameIds,omitempty"`
	Styles   models.EnhancementStyles `json:"styles"`
}

// Enhance queues an enhancement and answers 202. With ?wait=true the call
// runs inline and returns the updated frame.
func (fh *FrameHandler) Enhance(w http.ResponseWriter, r *http.Request) {
	frame, ok := fh.frame(w, r)
	if !ok {
		return
	}
	var req enhanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		updated, err := fh.Enhancer.Enhance(r.Context(), frame.ID, req.Styles)
		if err != nil {
			writeError(w, fh.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, models.NewFrameView(updated))
		return
	}

	if err := fh.Queue.Enhance(frame.ID, req.Styles); err != nil {
		writeError(w, fh.Logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"queued": true, "frameId": frame.ID})
}

func (fh *FrameHandler) BatchEnhance(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.FrameIDs) == 0 {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "frameIds is required")
		return
	}
	for _, id := range req.FrameIDs {
		if _, err := fh.Session.Frame(id); err != nil {
			writeError(w, fh.Logger, fmt.Errorf("frame %s: %w", id, err))
			return
		}
	}

	if err := fh.Queue.BatchEnhance(req.FrameIDs, req.Styles); err != nil {
		writeError(w, fh.Logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"queued": true, "frameIds": req.FrameIDs})
}

func (fh *FrameHandler) SaveAsNew(w http.ResponseWriter, r *http.Request) {
	saved, err := fh.Enhancer.SaveAsNew(r.Context(), chi.URLParam(r, "frameID"))
	if err != nil {
		writeError(w, fh.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.NewFrameView(saved))
}

func (fh *FrameHandler) Reanalyze(w http.ResponseWriter, r *http.Request) {
	frame, ok := fh.frame(w, r)
	if !ok {
		return
	}
	if err := fh.Queue.Reanalyze(frame.ID); err != nil {
		writeError(w, fh.Logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"queued": true, "frameId": frame.ID})
}

// Image serves the frame's display image, or ?variant=original|enhanced
func (fh *FrameHandler) Image(w http.ResponseWriter, r *http.Request) {
	frame, ok := fh.frame(w, r)
	if !ok {
		return
	}

	var data []byte
	switch variant := r.URL.Query().Get("variant"); variant {
	case "", "display":
		data = frame.DisplayImage()
	case "original":
		data = frame.ImageData
	case "enhanced":
		data = frame.EnhancedImageData
	default:
		WriteAPIError(w, http.StatusBadRequest, "invalid_variant", "Unknown image variant: "+variant)
		return
	}
	if len(data) == 0 {
		WriteAPIError(w, http.StatusNotFound, "not_found", "Frame has no such image")
		return
	}
	writeImage(w, data, false)
}

func (fh *FrameHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	frame, ok := fh.frame(w, r)
	if !ok {
		return
	}
	thumb, err := fh.Processor.Thumbnail(frame.ID, frame.DisplayImage(), fh.ThumbnailMaxSize)
	if err != nil {
		writeError(w, fh.Logger, err)
		return
	}
	writeImage(w, thumb, false)
}

// HistoryImage serves the input or output image of one enhancement step
func (fh *FrameHandler) HistoryImage(w http.ResponseWriter, r *http.Request) {
	frame, ok := fh.frame(w, r)
	if !ok {
		return
	}
	recordID := chi.URLParam(r, "recordID")
	for _, rec := range frame.EnhancementHistory {
		if rec.ID != recordID {
			continue
		}
		switch chi.URLParam(r, "side") {
		case "input":
			writeImage(w, rec.InputImageData, true)
		case "output":
			writeImage(w, rec.OutputImageData, true)
		default:
			WriteAPIError(w, http.StatusBadRequest, "invalid_side", "side must be input or output")
		}
		return
	}
	WriteAPIError(w, http.StatusNotFound, "not_found", "Enhancement record not found")
}

// writeImage serves encoded image bytes. History steps never change for a
// given URL and are cacheable.
func writeImage(w http.ResponseWriter, data []byte, immutable bool) {
	w.Header().Set("Content-Type", media.ContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if immutable {
		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(cacheDuration.Seconds())))
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
