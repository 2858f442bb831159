package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Dugo220203tg/storefront/internal/credential"
	apperrors "github.com/Dugo220203tg/storefront/pkg/errors"
)

// Backend issues authenticated JSON calls; the gateway satisfies it.
type Backend interface {
	GetJSON(ctx context.Context, path string, out any) error
	PostJSON(ctx context.Context, path string, body, out any) error
	PutJSON(ctx context.Context, path string, body, out any) error
}

// SessionSource is the slice of the credential store the aggregator
// needs: who the user is, and a signal when the session ends.
type SessionSource interface {
	HasCredential() bool
	Identity() (credential.Identity, bool)
	Subscribe(fn func(loggedIn bool)) func()
}

// CouponClearer drops the active coupon; the coupon engine satisfies
// it. A cart that resets on logout takes the discount with it.
type CouponClearer interface {
	Clear(ctx context.Context)
}

// Aggregator keeps the session's mirror of the backend cart. Every
// mutation is confirmed by a full refetch; concurrent refetches
// resolve by last response installed. All methods are safe for
// concurrent use.
type Aggregator struct {
	api     Backend
	creds   SessionSource
	coupons CouponClearer
	log     *slog.Logger

	mu    sync.RWMutex
	lines []Line

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// New creates an aggregator and wires it to session changes: when the
// session ends the cart resets to empty and the active coupon is
// cleared, synchronously, before the logout returns.
func New(api Backend, creds SessionSource, coupons CouponClearer, log *slog.Logger) *Aggregator {
	a := &Aggregator{
		api:     api,
		creds:   creds,
		coupons: coupons,
		log:     log,
		subs:    make(map[int]func(Snapshot)),
	}
	creds.Subscribe(func(loggedIn bool) {
		if !loggedIn {
			a.log.Info("session ended, resetting cart")
			a.reset()
			a.coupons.Clear(context.Background())
		}
	})
	return a
}

// Load refetches the cart from the backend and installs the response.
// For a guest there is nothing to fetch: the cart is reset to empty
// without touching the network.
func (a *Aggregator) Load(ctx context.Context) ([]Line, error) {
	if !a.creds.HasCredential() {
		a.reset()
		return nil, nil
	}

	var payload []cartItemPayload
	if err := a.api.GetJSON(ctx, "/Cart/GetCartData", &payload); err != nil {
		return nil, err
	}

	lines := make([]Line, 0, len(payload))
	for _, p := range payload {
		lines = append(lines, toLine(p))
	}
	a.install(lines)
	return a.Lines(), nil
}

// Add puts quantity units of a product in the cart and refetches.
func (a *Aggregator) Add(ctx context.Context, productID, quantity int64) error {
	identity, ok := a.creds.Identity()
	if !ok {
		return apperrors.Unauthenticated("please sign in to add items to your cart")
	}
	if quantity < 1 {
		return apperrors.Invalid("quantity must be at least 1")
	}

	body := addItemPayload{
		MaKh:     identity.ID,
		MaHh:     productID,
		Quantity: quantity,
		Ngay:     nowStamp(),
	}
	if err := a.api.PostJSON(ctx, "/Cart/AddToCart", body, nil); err != nil {
		return err
	}

	_, err := a.Load(ctx)
	return err
}

// Increment raises a line's quantity by one and refetches.
func (a *Aggregator) Increment(ctx context.Context, productID int64) error {
	identity, ok := a.creds.Identity()
	if !ok {
		return apperrors.Unauthenticated("please sign in to update your cart")
	}

	path := fmt.Sprintf("/Cart/increase-quantity/%s/%d", identity.ID, productID)
	if err := a.api.PutJSON(ctx, path, nil, nil); err != nil {
		return err
	}

	_, err := a.Load(ctx)
	return err
}

// Decrement lowers a line's quantity by one and refetches. At quantity
// one it is a local no-op: a line leaves the cart only through Remove,
// never by counting down.
func (a *Aggregator) Decrement(ctx context.Context, productID int64) error {
	identity, ok := a.creds.Identity()
	if !ok {
		return apperrors.Unauthenticated("please sign in to update your cart")
	}

	if line, ok := a.line(productID); ok && line.Quantity <= 1 {
		return nil
	}

	path := fmt.Sprintf("/Cart/minus-quantity/%s/%d", identity.ID, productID)
	if err := a.api.PutJSON(ctx, path, nil, nil); err != nil {
		return err
	}

	_, err := a.Load(ctx)
	return err
}

// Remove deletes a line from the cart and refetches.
func (a *Aggregator) Remove(ctx context.Context, productID int64) error {
	identity, ok := a.creds.Identity()
	if !ok {
		return apperrors.Unauthenticated("please sign in to update your cart")
	}

	path := fmt.Sprintf("/Cart/Remove/%s/%d", identity.ID, productID)
	if err := a.api.PostJSON(ctx, path, nil, nil); err != nil {
		return err
	}

	_, err := a.Load(ctx)
	return err
}

// Lines returns a copy of the current cart lines.
func (a *Aggregator) Lines() []Line {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Line, len(a.lines))
	copy(out, a.lines)
	return out
}

// Snapshot returns the line count and summed total in one consistent
// read.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var total int64
	for _, l := range a.lines {
		total += l.LineTotal
	}
	return Snapshot{Count: len(a.lines), Total: total}
}

// Subscribe registers fn to be called synchronously with the new
// snapshot after every cart change. The returned function
// unsubscribes.
func (a *Aggregator) Subscribe(fn func(Snapshot)) func() {
	a.subMu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	a.subMu.Unlock()

	return func() {
		a.subMu.Lock()
		delete(a.subs, id)
		a.subMu.Unlock()
	}
}

func (a *Aggregator) line(productID int64) (Line, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, l := range a.lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return Line{}, false
}

func (a *Aggregator) install(lines []Line) {
	a.mu.Lock()
	a.lines = lines
	a.mu.Unlock()
	a.notify()
}

func (a *Aggregator) reset() {
	a.mu.Lock()
	emptied := len(a.lines) > 0
	a.lines = nil
	a.mu.Unlock()
	if emptied {
		a.notify()
	}
}

func (a *Aggregator) notify() {
	snap := a.Snapshot()
	a.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
