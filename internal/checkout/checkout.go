// Package checkout drives order submission as an explicit state
// machine. A submission snapshots the cart, coupon, and buyer fields
// into an immutable draft; redirect-based payments persist the draft
// so the outcome can be reconciled after the browser returns from the
// external provider.
package checkout

import (
	"time"

	"github.com/Dugo220203tg/storefront/internal/cart"
)

// State is the orchestrator's position in the checkout lifecycle.
type State string

const (
	StateIdle             State = "idle"
	StateSubmitting       State = "submitting"
	StateAwaitingRedirect State = "awaiting_external_redirect"
	StateConfirmed        State = "confirmed"
	StateFailed           State = "failed"
)

// Terminal reports whether the state ends a checkout flow.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// Supported payment methods. COD settles in one synchronous call;
// VNPay hands the browser to an external provider and returns via
// callback.
const (
	PaymentMethodCOD   = "cod"
	PaymentMethodVNPay = "vnpay"
)

// draftKey is the fixed session key a pending draft is persisted
// under while the browser is away at the payment provider.
const draftKey = "checkout:draft"

// SubmitInput carries the buyer-entered fields of a checkout.
type SubmitInput struct {
	FullName      string `json:"fullName" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	PhoneNumber   string `json:"phoneNumber" validate:"required"`
	Address       string `json:"address" validate:"required"`
	PaymentMethod string `json:"paymentMethod" validate:"required"`
}

// Draft is the immutable snapshot assembled at submission time.
// Amounts are in cents; Amount is subtotal minus discount plus
// shipping.
type Draft struct {
	ID            string      `json:"id"`
	BuyerID       string      `json:"buyerId"`
	FullName      string      `json:"fullName"`
	Email         string      `json:"email"`
	PhoneNumber   string      `json:"phoneNumber"`
	Address       string      `json:"address"`
	PaymentMethod string      `json:"paymentMethod"`
	Lines         []cart.Line `json:"lines"`
	Subtotal      int64       `json:"subtotal"`
	Discount      int64       `json:"discount"`
	ShippingFee   int64       `json:"shippingFee"`
	Amount        int64       `json:"amount"`
	CouponCode    string      `json:"couponCode,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Result is the outcome of a submit or callback that moved the state
// machine. Reason is human-readable and set on Failed outcomes;
// RedirectURL is set when the browser must visit the payment
// provider.
type Result struct {
	State       State  `json:"state"`
	OrderID     string `json:"orderId,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// checkoutRequest is the order payload sent to the backend.
type checkoutRequest struct {
	MaKh          string      `json:"maKh"`
	FullName      string      `json:"fullName"`
	Email         string      `json:"email"`
	PhoneNumber   string      `json:"phoneNumber"`
	Address       string      `json:"address"`
	PaymentMethod string      `json:"paymentMethod"`
	CouponCode    string      `json:"couponCode,omitempty"`
	Amount        int64       `json:"amount"`
	Items         []orderItem `json:"items"`
}

type orderItem struct {
	MaHh     int64 `json:"maHh"`
	Quantity int64 `json:"quantity"`
	DonGia   int64 `json:"donGia"`
}

// checkoutResponse is the backend's answer to a checkout submission.
// Direct settlement fills orderId; redirect methods fill paymentUrl.
type checkoutResponse struct {
	OrderID    string `json:"orderId"`
	PaymentURL string `json:"paymentUrl"`
	Message    string `json:"message"`
}

// verifyResponse is the backend's answer to a payment callback
// verification.
type verifyResponse struct {
	IsSuccess bool   `json:"isSuccess"`
	OrderID   string `json:"orderId"`
	Message   string `json:"message"`
}

func buildRequest(d *Draft) checkoutRequest {
	items := make([]orderItem, 0, len(d.Lines))
	for _, l := range d.Lines {
		items = append(items, orderItem{MaHh: l.ProductID, Quantity: l.Quantity, DonGia: l.UnitPrice})
	}
	return checkoutRequest{
		MaKh:          d.BuyerID,
		FullName:      d.FullName,
		Email:         d.Email,
		PhoneNumber:   d.PhoneNumber,
		Address:       d.Address,
		PaymentMethod: d.PaymentMethod,
		CouponCode:    d.CouponCode,
		Amount:        d.Amount,
		Items:         items,
	}
}
