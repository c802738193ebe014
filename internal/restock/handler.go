package restock

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gondolapp/gondolapp/internal/platform/httpx"
)

// Handler exposes the restock list over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers restock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.add)
	r.Delete("/restocked", h.clearRestocked)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.remove)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	var input AddInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, err)
		return
	}
	item, err := h.service.Add(r.Context(), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var input UpdateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, err)
		return
	}
	item, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearRestocked(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ClearRestocked(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.logger.Warn("restock request failed", slog.Any("error", err))
	httpx.RespondError(w, err,
		httpx.Mapping{Err: ErrValidation, Status: http.StatusBadRequest},
		httpx.Mapping{Err: ErrNotFound, Status: http.StatusNotFound},
	)
}
