package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jmaka/jmakabackend/config"
	"github.com/jmaka/jmakabackend/services"
)

const (
	maxJSONBodyBytes = 1 << 20
	multipartMemory  = 32 << 20
)

// decodeJSON reads a size-limited JSON body into dst, writing the 400 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidInput, "invalid JSON body")
		return false
	}
	return true
}

type UploadHandler struct {
	Uploads *services.UploadService
	Cfg     config.Config
	Logger  *slog.Logger
}

// ListHistory serves GET /history.
func (h *UploadHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	order, err := services.ParseSortOrder(r.URL.Query().Get("sort"))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	items, err := h.Uploads.List(r.Context(), order)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Upload serves POST /upload with multipart field "files".
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// every file at the limit plus room for the multipart framing
	limit := h.Cfg.MaxUploadBytes*int64(h.Cfg.MaxUploadFiles) + maxJSONBodyBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteAPIError(w, http.StatusBadRequest, CodeInvalidInput, "upload is too large")
			return
		}
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidInput, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, services.UploadFile{
			Name: fh.Filename,
			Size: fh.Size,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		})
	}

	recs, err := h.Uploads.Upload(r.Context(), files)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *UploadHandler) Resize(w http.ResponseWriter, r *http.Request) {
	var req services.ResizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.Uploads.Resize(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *UploadHandler) Crop(w http.ResponseWriter, r *http.Request) {
	var req services.CropRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.Uploads.Crop(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *UploadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req services.DeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.Uploads.Delete(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
