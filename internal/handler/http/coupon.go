package http

import (
	"log/slog"
	"net/http"

	"github.com/Dugo220203tg/storefront/internal/coupon"
	"github.com/Dugo220203tg/storefront/pkg/httputil"
	"github.com/Dugo220203tg/storefront/pkg/validator"
)

// CouponHandler handles coupon endpoints.
type CouponHandler struct {
	coupons *coupon.Engine
	logger  *slog.Logger
}

// NewCouponHandler creates a new coupon HTTP handler.
func NewCouponHandler(coupons *coupon.Engine, logger *slog.Logger) *CouponHandler {
	return &CouponHandler{coupons: coupons, logger: logger}
}

// ApplyCouponRequest is the JSON request body for applying a code.
type ApplyCouponRequest struct {
	Code string `json:"code" validate:"required"`
}

// CouponResponse is the active coupon view.
type CouponResponse struct {
	Active bool           `json:"active"`
	Coupon *coupon.Coupon `json:"coupon,omitempty"`
}

// Get handles GET /api/v1/coupon.
func (h *CouponHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := CouponResponse{}
	if active, ok := h.coupons.Active(); ok {
		resp.Active = true
		resp.Coupon = &active
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}

// Apply handles POST /api/v1/coupon.
func (h *CouponHandler) Apply(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ApplyCouponRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	applied, err := h.coupons.Apply(r.Context(), req.Code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: CouponResponse{Active: true, Coupon: applied}})
}

// Clear handles DELETE /api/v1/coupon.
func (h *CouponHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.coupons.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
