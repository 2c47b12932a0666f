package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jmaka/jmakabackend/services"
)

type CompositeHandler struct {
	Composites *services.CompositeService
	Logger     *slog.Logger
}

// ListComposites serves GET /composites.
func (h *CompositeHandler) ListComposites(w http.ResponseWriter, r *http.Request) {
	items, err := h.Composites.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// compose decodes a request of type T and runs op on it.
func compose[T any](h *CompositeHandler, op func(context.Context, T) (services.CompositeResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if !decodeJSON(w, r, &req) {
			return
		}
		res, err := op(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, h.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *CompositeHandler) Split() http.HandlerFunc {
	return compose(h, h.Composites.Split)
}

func (h *CompositeHandler) Split3() http.HandlerFunc {
	return compose(h, h.Composites.Split3)
}

func (h *CompositeHandler) TrashImg() http.HandlerFunc {
	return compose(h, h.Composites.TrashImg)
}

func (h *CompositeHandler) OknoScale() http.HandlerFunc {
	return compose(h, h.Composites.OknoScale)
}

func (h *CompositeHandler) DeleteComposite(w http.ResponseWriter, r *http.Request) {
	var req services.DeleteCompositeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.Composites.DeleteComposite(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
