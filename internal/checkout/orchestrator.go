package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dugo220203tg/storefront/internal/cart"
	"github.com/Dugo220203tg/storefront/internal/coupon"
	"github.com/Dugo220203tg/storefront/internal/credential"
	"github.com/Dugo220203tg/storefront/internal/session"
	apperrors "github.com/Dugo220203tg/storefront/pkg/errors"
	"github.com/Dugo220203tg/storefront/pkg/validator"
)

// ErrSuperseded is returned when a checkout completion arrives for a
// draft that is no longer current. The late result is discarded and
// the state machine is left untouched.
var ErrSuperseded = errors.New("checkout: draft superseded")

// Backend issues authenticated JSON calls; the gateway satisfies it.
type Backend interface {
	GetJSON(ctx context.Context, path string, out any) error
	PostJSON(ctx context.Context, path string, body, out any) error
}

// CartSource provides the lines a draft snapshots.
type CartSource interface {
	Lines() []cart.Line
}

// CouponSource provides the active discount and its teardown.
type CouponSource interface {
	Discount(total int64) int64
	Active() (coupon.Coupon, bool)
	Clear(ctx context.Context)
}

// IdentitySource identifies the buyer.
type IdentitySource interface {
	Identity() (credential.Identity, bool)
}

// Orchestrator runs the checkout state machine:
//
//	Idle -> Submitting -> {AwaitingExternalRedirect | Confirmed | Failed}
//	AwaitingExternalRedirect -> {Confirmed | Failed}
//
// Every terminal transition clears the active coupon exactly once, so
// a spent discount cannot be reapplied to the next cart.
type Orchestrator struct {
	api         Backend
	carts       CartSource
	coupons     CouponSource
	creds       IdentitySource
	storage     session.Store
	shippingFee int64
	timeout     time.Duration
	log         *slog.Logger
	now         func() time.Time
	newID       func() string

	mu            sync.Mutex
	state         State
	gen           uint64
	couponCleared bool
	lastResult    Result

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// New creates an orchestrator in the Idle state.
func New(api Backend, carts CartSource, coupons CouponSource, creds IdentitySource, storage session.Store, shippingFee int64, timeout time.Duration, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		api:         api,
		carts:       carts,
		coupons:     coupons,
		creds:       creds,
		storage:     storage,
		shippingFee: shippingFee,
		timeout:     timeout,
		log:         log,
		now:         time.Now,
		newID:       uuid.NewString,
		state:       StateIdle,
		subs:        make(map[int]func(State)),
	}
}

// Submit snapshots the cart, coupon, and buyer fields into a draft
// and dispatches it. A non-nil Result reports the transition the
// submission caused; a non-nil error means nothing transitioned
// (invalid input, empty cart, no session, or a checkout already in
// flight). A completion arriving for a superseded draft returns
// ErrSuperseded and leaves the state machine untouched.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (*Result, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	identity, ok := o.creds.Identity()
	if !ok {
		return nil, apperrors.Unauthenticated("please sign in to check out")
	}

	lines := o.carts.Lines()
	if len(lines) == 0 {
		return nil, apperrors.Invalid("your cart is empty")
	}

	var subtotal int64
	for _, l := range lines {
		subtotal += l.LineTotal
	}
	discount := o.coupons.Discount(subtotal)

	couponCode := ""
	if active, ok := o.coupons.Active(); ok {
		couponCode = active.Code
	}

	method := strings.ToLower(strings.TrimSpace(in.PaymentMethod))

	o.mu.Lock()
	if o.state == StateSubmitting || o.state == StateAwaitingRedirect {
		o.mu.Unlock()
		return nil, apperrors.Invalid("a checkout is already in progress")
	}
	o.gen++
	myGen := o.gen
	o.couponCleared = false

	if method != PaymentMethodCOD && method != PaymentMethodVNPay {
		// Local failure; the unsupported method never reaches the
		// network.
		res := Result{
			State:  StateFailed,
			Reason: fmt.Sprintf("unsupported payment method %q", in.PaymentMethod),
		}
		o.finishLocked(ctx, res)
		return &res, nil
	}

	draft := &Draft{
		ID:            o.newID(),
		BuyerID:       identity.ID,
		FullName:      in.FullName,
		Email:         in.Email,
		PhoneNumber:   in.PhoneNumber,
		Address:       in.Address,
		PaymentMethod: method,
		Lines:         lines,
		Subtotal:      subtotal,
		Discount:      discount,
		ShippingFee:   o.shippingFee,
		Amount:        subtotal - discount + o.shippingFee,
		CouponCode:    couponCode,
		CreatedAt:     o.now().UTC(),
	}
	o.state = StateSubmitting
	o.mu.Unlock()
	o.publish(StateSubmitting)

	o.log.Info("checkout submitted",
		"draft_id", draft.ID,
		"method", method,
		"amount", draft.Amount,
		"lines", len(draft.Lines))

	cctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var resp checkoutResponse
	err := o.api.PostJSON(cctx, "/Checkout", buildRequest(draft), &resp)
	if err != nil && cctx.Err() == context.DeadlineExceeded {
		err = apperrors.Transient("checkout request timed out", err)
	}

	return o.settle(ctx, myGen, draft, resp, err)
}

// settle applies the backend's answer to the state machine, unless a
// newer flow has started in the meantime.
func (o *Orchestrator) settle(ctx context.Context, myGen uint64, draft *Draft, resp checkoutResponse, callErr error) (*Result, error) {
	o.mu.Lock()
	if o.gen != myGen {
		o.mu.Unlock()
		o.log.Info("discarding late checkout completion", "draft_id", draft.ID)
		return nil, ErrSuperseded
	}

	if callErr != nil {
		res := Result{State: StateFailed, Reason: apperrors.Message(callErr)}
		o.finishLocked(ctx, res)
		o.log.Warn("checkout failed", "draft_id", draft.ID, "error", callErr)
		return &res, nil
	}

	if draft.PaymentMethod == PaymentMethodVNPay {
		if resp.PaymentURL == "" {
			res := Result{State: StateFailed, Reason: "Failed to generate payment URL"}
			o.finishLocked(ctx, res)
			return &res, nil
		}
		// The draft must be durable before the browser leaves; the
		// callback on return is the only way to finish this flow.
		if err := session.WriteJSON(ctx, o.storage, draftKey, draft); err != nil {
			o.log.Error("failed to persist checkout draft", "draft_id", draft.ID, "error", err)
			res := Result{State: StateFailed, Reason: "could not save checkout state, please try again"}
			o.finishLocked(ctx, res)
			return &res, nil
		}
		res := Result{State: StateAwaitingRedirect, RedirectURL: resp.PaymentURL}
		o.state = StateAwaitingRedirect
		o.lastResult = res
		o.mu.Unlock()
		o.publish(StateAwaitingRedirect)
		return &res, nil
	}

	res := Result{State: StateConfirmed, OrderID: resp.OrderID}
	o.finishLocked(ctx, res)
	o.log.Info("checkout confirmed", "draft_id", draft.ID, "order_id", resp.OrderID)
	return &res, nil
}

// HandleCallback reconciles a return from an external payment
// provider. The persisted draft is consumed (read and deleted) before
// verification, so a replayed callback finds nothing pending.
func (o *Orchestrator) HandleCallback(ctx context.Context, method string, query url.Values) (*Result, error) {
	var draft Draft
	err := session.ReadJSON(ctx, o.storage, draftKey, &draft)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			o.log.Warn("persisted checkout draft unreadable", "error", err)
			_ = o.storage.Delete(ctx, draftKey)
		}
		res := Result{State: StateFailed, Reason: "No pending checkout found"}
		o.mu.Lock()
		o.gen++
		o.couponCleared = false
		o.finishLocked(ctx, res)
		return &res, nil
	}

	if err := o.storage.Delete(ctx, draftKey); err != nil {
		o.log.Warn("failed to delete checkout draft", "draft_id", draft.ID, "error", err)
	}

	o.mu.Lock()
	o.gen++
	myGen := o.gen
	o.couponCleared = false
	o.state = StateAwaitingRedirect
	o.mu.Unlock()

	var resp verifyResponse
	verifyErr := o.api.GetJSON(ctx, "/Checkout/"+url.PathEscape(method)+"/callback?"+query.Encode(), &resp)

	o.mu.Lock()
	if o.gen != myGen {
		o.mu.Unlock()
		return nil, ErrSuperseded
	}
	if verifyErr != nil || !resp.IsSuccess {
		if verifyErr != nil {
			o.log.Warn("payment verification failed", "draft_id", draft.ID, "error", verifyErr)
		}
		res := Result{State: StateFailed, Reason: "Payment verification failed"}
		o.finishLocked(ctx, res)
		return &res, nil
	}

	orderID := resp.OrderID
	if orderID == "" {
		orderID = draft.ID
	}
	res := Result{State: StateConfirmed, OrderID: orderID}
	o.finishLocked(ctx, res)
	o.log.Info("checkout confirmed via callback", "draft_id", draft.ID, "order_id", orderID)
	return &res, nil
}

// Reset abandons the current flow and returns to Idle. Any in-flight
// completion for the abandoned flow will be discarded, and a
// persisted draft is removed.
func (o *Orchestrator) Reset(ctx context.Context) {
	o.mu.Lock()
	o.gen++
	o.state = StateIdle
	o.lastResult = Result{State: StateIdle}
	o.mu.Unlock()

	if err := o.storage.Delete(ctx, draftKey); err != nil {
		o.log.Warn("failed to delete checkout draft", "error", err)
	}
	o.publish(StateIdle)
}

// State returns the current machine state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Status returns the last transition result with the current state.
func (o *Orchestrator) Status() Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	res := o.lastResult
	res.State = o.state
	return res
}

// Subscribe registers fn to be called synchronously on every state
// transition. The returned function unsubscribes.
func (o *Orchestrator) Subscribe(fn func(State)) func() {
	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.subMu.Unlock()

	return func() {
		o.subMu.Lock()
		delete(o.subs, id)
		o.subMu.Unlock()
	}
}

// finishLocked applies a terminal result. Called with o.mu held;
// releases it. The coupon teardown and subscriber notifications run
// outside the lock.
func (o *Orchestrator) finishLocked(ctx context.Context, res Result) {
	o.state = res.State
	o.lastResult = res
	clearCoupon := !o.couponCleared
	o.couponCleared = true
	o.mu.Unlock()

	if clearCoupon {
		o.coupons.Clear(ctx)
	}
	o.publish(res.State)
}

func (o *Orchestrator) publish(s State) {
	o.subMu.Lock()
	fns := make([]func(State), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.subMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
