package integrity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/gondolapp/gondolapp/internal/platform/httpx"
)

// AdminTokenHeader carries the admin token when no bearer token is sent.
const AdminTokenHeader = "X-Admin-Token"

// Handler exposes scan and repair to administrators.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	tokenHash []byte
}

// NewHandler constructs Handler. tokenHash is a bcrypt hash; when empty
// every admin request is rejected.
func NewHandler(logger *slog.Logger, service *Service, tokenHash string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, tokenHash: []byte(strings.TrimSpace(tokenHash))}
}

// MountRoutes registers admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/", h.scan)
		r.Post("/repair", h.repair)
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(AdminTokenHeader)
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
		if len(h.tokenHash) == 0 || token == "" ||
			bcrypt.CompareHashAndPassword(h.tokenHash, []byte(token)) != nil {
			h.logger.Warn("admin request rejected", slog.String("path", r.URL.Path))
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Scan(r.Context())
	if err != nil {
		h.logger.Error("integrity scan failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) repair(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Repair(r.Context())
	if err != nil {
		h.logger.Error("integrity repair failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
