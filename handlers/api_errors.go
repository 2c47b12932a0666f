package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jmaka/jmakabackend/services"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body. Error repeats the
// first detail for clients that only read a single message.
type APIErrorResponse struct {
	Error  string           `json:"error"`
	Errors []APIErrorDetail `json:"errors"`
}

// Error codes
const (
	CodeInvalidInput = "invalid_input"
	CodeNotFound     = "not_found"
	CodeTransform    = "transform_failed"
	CodeInternal     = "internal_error"
	CodeUnavailable  = "unavailable"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Warn("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	writeJSON(w, httpStatus, APIErrorResponse{
		Error: detail,
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	})
}

// writeServiceError maps service errors onto HTTP statuses. Only unexpected failures
// are logged as errors.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidInput, err.Error())
	case errors.Is(err, services.ErrNotFound):
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, services.ErrTransform):
		WriteAPIError(w, http.StatusBadRequest, CodeTransform, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Debug("request ended before completion",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteAPIError(w, http.StatusServiceUnavailable, CodeUnavailable, "request cancelled")
	default:
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}
