package expiration

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gondolapp/gondolapp/internal/platform/httpx"
)

// Handler exposes expiration tracking over HTTP.
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

// MountRoutes registers expiration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.add)
	r.Get("/summary", h.summary)
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

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.Summary(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, counts)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.logger.Warn("expiration request failed", slog.Any("error", err))
	httpx.RespondError(w, err,
		httpx.Mapping{Err: ErrValidation, Status: http.StatusBadRequest},
		httpx.Mapping{Err: ErrNotFound, Status: http.StatusNotFound},
	)
}
