// Package coupon validates discount codes against the backend and
// applies the resulting percentage discount to cart totals. At most
// one coupon is active per session; it is persisted so a reload keeps
// the discount.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Dugo220203tg/storefront/internal/session"
	apperrors "github.com/Dugo220203tg/storefront/pkg/errors"
)

// storageKey is the fixed session key the active coupon lives under.
const storageKey = "coupon"

// Fetcher issues authenticated GETs against the backend. The gateway
// satisfies it.
type Fetcher interface {
	GetJSON(ctx context.Context, path string, out any) error
}

// Coupon is a validated discount code.
type Coupon struct {
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Percentage int64     `json:"percentage"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the coupon's end date has passed at now.
// Coupons without an end date never expire.
func (c *Coupon) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// couponPayload is the backend's validation response. Status 1 means
// the code is accepted; price carries the discount percentage.
type couponPayload struct {
	Status  int    `json:"status"`
	Name    string `json:"name"`
	Price   int64  `json:"price"`
	DateEnd string `json:"dateEnd"`
}

// Engine holds the session's active coupon. All methods are safe for
// concurrent use.
type Engine struct {
	api     Fetcher
	storage session.Store
	log     *slog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	active *Coupon

	subMu   sync.Mutex
	subs    map[int]func(*Coupon)
	nextSub int
}

// New creates a coupon engine and restores any persisted coupon. An
// expired stored coupon is restored as-is; it simply contributes no
// discount until replaced or cleared. A malformed document is deleted.
func New(api Fetcher, storage session.Store, log *slog.Logger) *Engine {
	e := &Engine{
		api:     api,
		storage: storage,
		log:     log,
		now:     time.Now,
		subs:    make(map[int]func(*Coupon)),
	}
	e.restore()
	return e
}

func (e *Engine) restore() {
	ctx := context.Background()
	var c Coupon
	err := session.ReadJSON(ctx, e.storage, storageKey, &c)
	switch {
	case err == nil:
		if c.Code == "" {
			_ = e.storage.Delete(ctx, storageKey)
			return
		}
		e.active = &c
	case errors.Is(err, session.ErrNotFound):
	default:
		e.log.Warn("stored coupon unreadable, discarding", "error", err)
		_ = e.storage.Delete(ctx, storageKey)
	}
}

// Apply validates code against the backend and installs it as the
// active coupon. On any failure the previously active coupon is
// cleared: a rejected code never leaves a stale discount behind.
func (e *Engine) Apply(ctx context.Context, code string) (*Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.Invalid("please enter a coupon code")
	}

	var payload couponPayload
	if err := e.api.GetJSON(ctx, "/Coupon/UseCoupon/"+url.PathEscape(code), &payload); err != nil {
		e.clear(ctx)
		return nil, err
	}
	if payload.Status != 1 {
		e.clear(ctx)
		return nil, apperrors.Rejected("coupon is not valid")
	}

	expiresAt, err := parseEndDate(payload.DateEnd)
	if err != nil {
		e.log.Warn("coupon end date unreadable", "code", code, "value", payload.DateEnd)
	}

	c := &Coupon{
		Code:       code,
		Name:       payload.Name,
		Percentage: payload.Price,
		ExpiresAt:  expiresAt,
	}

	e.mu.Lock()
	e.active = c
	e.mu.Unlock()

	if err := session.WriteJSON(ctx, e.storage, storageKey, c); err != nil {
		e.log.Warn("failed to persist coupon", "error", err)
	}
	e.log.Info("coupon applied", "code", c.Code, "percentage", c.Percentage)

	applied := *c
	e.notify(&applied)
	return &applied, nil
}

// Clear removes the active coupon and its persisted document.
func (e *Engine) Clear(ctx context.Context) {
	e.clear(ctx)
}

func (e *Engine) clear(ctx context.Context) {
	e.mu.Lock()
	had := e.active != nil
	e.active = nil
	e.mu.Unlock()

	if err := e.storage.Delete(ctx, storageKey); err != nil {
		e.log.Warn("failed to delete persisted coupon", "error", err)
	}
	if had {
		e.notify(nil)
	}
}

// Discount returns the discount in cents the active coupon grants on
// total. A coupon discovered to be expired is dropped on the spot and
// grants nothing.
func (e *Engine) Discount(total int64) int64 {
	e.mu.RLock()
	c := e.active
	e.mu.RUnlock()

	if c == nil || total <= 0 {
		return 0
	}
	if c.Expired(e.now()) {
		e.log.Info("coupon expired, dropping", "code", c.Code)
		e.clear(context.Background())
		return 0
	}
	return total * c.Percentage / 100
}

// Active returns a copy of the active coupon, if any. An expired but
// not yet dropped coupon is still reported; Discount is the authority
// on what it is worth.
func (e *Engine) Active() (Coupon, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.active == nil {
		return Coupon{}, false
	}
	return *e.active, true
}

// Subscribe registers fn to be called synchronously with the new
// active coupon (nil on clear). The returned function unsubscribes.
func (e *Engine) Subscribe(fn func(*Coupon)) func() {
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

func (e *Engine) notify(c *Coupon) {
	e.subMu.Lock()
	fns := make([]func(*Coupon), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// parseEndDate accepts the timestamp formats the backend emits for
// coupon end dates.
func parseEndDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse("2006-01-02", value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized end date %q", value)
}
