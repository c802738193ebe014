package catalog

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gondolapp/gondolapp/internal/catalog/normalize"
	"github.com/gondolapp/gondolapp/internal/platform/httpx"
)

// Handler exposes product resolution over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *ProductService
	local   *LocalSource
}

// NewHandler constructs Handler. The lookup endpoint answers from store
// only, so chained nodes never cascade into each other.
func NewHandler(logger *slog.Logger, service *ProductService, store Store) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, local: NewLocalSource(store)}
}

// MountLookup registers the node-to-node lookup endpoint under /api/productos.
func (h *Handler) MountLookup(r chi.Router) {
	r.Head("/buscar", h.probe)
	r.Get("/buscar", h.lookupLocal)
}

// MountRoutes registers product routes under /api/products.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/lookup/{barcode}", h.lookup)
	r.Post("/manual", h.createManual)
	r.Post("/normalize", h.normalize)
	r.Get("/search", h.search)
	r.Get("/{baseID}/variants", h.variants)
}

func (h *Handler) probe(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) lookupLocal(w http.ResponseWriter, r *http.Request) {
	barcode := strings.TrimSpace(r.URL.Query().Get("ean"))
	if barcode == "" {
		httpx.JSON(w, http.StatusBadRequest, LookupResponse{Error: "ean is required"})
		return
	}
	product, err := h.local.FetchProduct(r.Context(), barcode)
	if err != nil {
		h.logger.Error("local lookup failed", slog.String("barcode", barcode), slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, LookupResponse{Error: "lookup failed"})
		return
	}
	if product == nil {
		httpx.JSON(w, http.StatusNotFound, LookupResponse{Error: "product not found"})
		return
	}
	httpx.JSON(w, http.StatusOK, LookupResponse{Success: true, Producto: product})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")
	product := h.service.GetOrCreateProduct(r.Context(), barcode)
	if product == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no source knows barcode "+barcode)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

type manualRequest struct {
	Barcode string                `json:"ean"`
	Product *ManualDescriptor     `json:"producto,omitempty"`
	Raw     *normalize.RawProduct `json:"raw,omitempty"`
}

func (h *Handler) createManual(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	var (
		product *Product
		err     error
	)
	switch {
	case req.Raw != nil:
		product, err = h.service.CreateFromRaw(r.Context(), req.Barcode, *req.Raw)
	case req.Product != nil:
		product, err = h.service.CreateManualProduct(r.Context(), req.Barcode, *req.Product)
	default:
		err = httpx.ErrValidation
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) normalize(w http.ResponseWriter, r *http.Request) {
	var raw normalize.RawProduct
	if err := httpx.DecodeJSON(r, &raw); err != nil {
		h.fail(w, err)
		return
	}
	result := h.service.NormalizeProduct(r.Context(), raw)
	if result == nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", "description could not be normalized")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	bases, err := h.service.SearchProducts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": bases})
}

func (h *Handler) variants(w http.ResponseWriter, r *http.Request) {
	variants, err := h.service.GetVariants(r.Context(), chi.URLParam(r, "baseID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": variants})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.logger.Warn("catalog request failed", slog.Any("error", err))
	httpx.RespondError(w, err,
		httpx.Mapping{Err: ErrValidation, Status: http.StatusBadRequest},
		httpx.Mapping{Err: ErrNotFound, Status: http.StatusNotFound},
	)
}
