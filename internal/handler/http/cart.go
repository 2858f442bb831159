package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Dugo220203tg/storefront/internal/cart"
	apperrors "github.com/Dugo220203tg/storefront/pkg/errors"
	"github.com/Dugo220203tg/storefront/pkg/httputil"
	"github.com/Dugo220203tg/storefront/pkg/validator"
)

// CartHandler handles cart endpoints.
type CartHandler struct {
	carts  *cart.Aggregator
	logger *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(carts *cart.Aggregator, logger *slog.Logger) *CartHandler {
	return &CartHandler{carts: carts, logger: logger}
}

// AddItemRequest is the JSON request body for adding a product to the
// cart.
type AddItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gte=1"`
}

// CartResponse is the full cart view.
type CartResponse struct {
	Lines []cart.Line `json:"lines"`
	Count int         `json:"count"`
	Total int64       `json:"total"`
}

// GetCart handles GET /api/v1/cart. It refetches from the backend so
// the response reflects authoritative server state.
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.carts.Load(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeCart(w, lines)
}

// Summary handles GET /api/v1/cart/summary. It serves the in-memory
// snapshot without touching the network; badges poll this.
func (h *CartHandler) Summary(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.carts.Snapshot()})
}

// AddItem handles POST /api/v1/cart/items.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.carts.Add(r.Context(), req.ProductID, req.Quantity); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeCart(w, h.carts.Lines())
}

// Increase handles PUT /api/v1/cart/items/{productId}/increase.
func (h *CartHandler) Increase(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.carts.Increment)
}

// Decrease handles PUT /api/v1/cart/items/{productId}/decrease.
func (h *CartHandler) Decrease(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.carts.Decrement)
}

// Remove handles DELETE /api/v1/cart/items/{productId}.
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.carts.Remove)
}

func (h *CartHandler) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, productID int64) error) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil || productID <= 0 {
		httputil.WriteError(w, r, apperrors.Invalid("productId must be a positive integer"), h.logger)
		return
	}

	if err := op(r.Context(), productID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeCart(w, h.carts.Lines())
}

func (h *CartHandler) writeCart(w http.ResponseWriter, lines []cart.Line) {
	if lines == nil {
		lines = []cart.Line{}
	}
	snap := h.carts.Snapshot()
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: CartResponse{
		Lines: lines,
		Count: snap.Count,
		Total: snap.Total,
	}})
}
