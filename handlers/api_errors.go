package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/camden-git/framesys/ai"
	"github.com/camden-git/framesys/enhance"
	"github.com/camden-git/framesys/export"
	"github.com/camden-git/framesys/framestore"
	"github.com/camden-git/framesys/media"
	"github.com/camden-git/framesys/pipeline"
	"github.com/camden-git/framesys/repository"
	"github.com/camden-git/framesys/session"
	"github.com/camden-git/framesys/workers"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	}

	_ = json.NewEncoder(w).Encode(resp)
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{ai.ErrNoStyleSelected, http.StatusBadRequest, "no_style_selected"},
	{ai.ErrUnknownStyle, http.StatusBadRequest, "unknown_style"},
	{ai.ErrBatchTooLarge, http.StatusBadRequest, "batch_too_large"},
	{media.ErrInvalidSampling, http.StatusBadRequest, "invalid_sampling"},
	{export.ErrNoKeepers, http.StatusBadRequest, "no_keepers"},
	{enhance.ErrNotEnhanced, http.StatusBadRequest, "not_enhanced"},
	{session.ErrInvalidProject, http.StatusBadRequest, "invalid_project"},

	{repository.ErrNotFound, http.StatusNotFound, "not_found"},
	{framestore.ErrNotFound, http.StatusNotFound, "not_found"},
	{export.ErrUnknownTarget, http.StatusNotFound, "unknown_target"},
	{sql.ErrNoRows, http.StatusNotFound, "not_found"},

	{pipeline.ErrScanInProgress, http.StatusConflict, "scan_in_progress"},
	{framestore.ErrFrameBusy, http.StatusConflict, "frame_busy"},
	{session.ErrAlreadyScanned, http.StatusConflict, "already_scanned"},
	{session.ErrScanSettingsLocked, http.StatusConflict, "scan_settings_locked"},
	{session.ErrNoProject, http.StatusConflict, "no_project"},
	{pipeline.ErrNoMedia, http.StatusConflict, "no_media"},
	{workers.ErrAlreadyQueued, http.StatusConflict, "already_queued"},

	{ai.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{ai.ErrPaymentRequired, http.StatusPaymentRequired, "payment_required"},
	{ai.ErrSchemaViolation, http.StatusBadGateway, "provider_schema_violation"},
	{ai.ErrProviderFailed, http.StatusBadGateway, "provider_failed"},
	{media.ErrMediaMetadata, http.StatusBadGateway, "media_unreadable"},

	{workers.ErrQueueFull, http.StatusServiceUnavailable, "queue_full"},
	{export.ErrTargetUnavailable, http.StatusServiceUnavailable, "target_unavailable"},
}

// statusFor maps a domain error onto an HTTP status and error code
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps err and writes it. Server-side failures are logged and their
// detail hidden.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		detail = "Internal server error"
	}
	WriteAPIError(w, status, code, detail)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding JSON response", "error", err)
		}
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return false
	}
	return true
}
