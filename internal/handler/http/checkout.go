package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Dugo220203tg/storefront/internal/checkout"
	"github.com/Dugo220203tg/storefront/pkg/httputil"
	"github.com/Dugo220203tg/storefront/pkg/validator"
)

// CheckoutHandler handles checkout endpoints.
type CheckoutHandler struct {
	orchestrator *checkout.Orchestrator
	logger       *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(o *checkout.Orchestrator, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{orchestrator: o, logger: logger}
}

// Submit handles POST /api/v1/checkout. A terminal or redirect
// outcome is a 200 with the resulting state; only requests that moved
// nothing (bad input, empty cart, checkout already running) are
// errors.
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req checkout.SubmitInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.orchestrator.Submit(r.Context(), req)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

// Status handles GET /api/v1/checkout/state.
func (h *CheckoutHandler) Status(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.orchestrator.Status()})
}

// Reset handles DELETE /api/v1/checkout: the user abandoned the
// checkout flow.
func (h *CheckoutHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.Reset(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Callback handles GET /api/v1/checkout/{method}/callback, the return
// leg of a redirect-based payment.
func (h *CheckoutHandler) Callback(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")

	res, err := h.orchestrator.HandleCallback(r.Context(), method, r.URL.Query())
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

func (h *CheckoutHandler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *validator.ValidationError
	switch {
	case errors.As(err, &vErr):
		httputil.WriteValidationError(w, err)
	case errors.Is(err, checkout.ErrSuperseded):
		httputil.WriteJSON(w, http.StatusConflict, httputil.Response{Error: &httputil.ErrorResponse{
			Code:    "SUPERSEDED",
			Message: "a newer checkout replaced this one",
		}})
	default:
		httputil.WriteError(w, r, err, h.logger)
	}
}
