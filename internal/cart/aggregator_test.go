package cart

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dugo220203tg/storefront/internal/credential"
	apperrors "github.com/Dugo220203tg/storefront/pkg/errors"
)

// fakeBackend records every call and serves a scripted cart.
type fakeBackend struct {
	cart    []cartItemPayload
	err     error
	calls   []string
	lastAdd addItemPayload
}

func (f *fakeBackend) GetJSON(_ context.Context, path string, out any) error {
	f.calls = append(f.calls, "GET "+path)
	if f.err != nil {
		return f.err
	}
	*out.(*[]cartItemPayload) = f.cart
	return nil
}

func (f *fakeBackend) PostJSON(_ context.Context, path string, body, _ any) error {
	f.calls = append(f.calls, "POST "+path)
	if add, ok := body.(addItemPayload); ok {
		f.lastAdd = add
	}
	return f.err
}

func (f *fakeBackend) PutJSON(_ context.Context, path string, _, _ any) error {
	f.calls = append(f.calls, "PUT "+path)
	return f.err
}

// fakeSession is a scriptable SessionSource.
type fakeSession struct {
	signedIn bool
	userID   string
	subs     []func(bool)
}

func (f *fakeSession) HasCredential() bool { return f.signedIn }

func (f *fakeSession) Identity() (credential.Identity, bool) {
	if !f.signedIn {
		return credential.Identity{}, false
	}
	return credential.Identity{ID: f.userID}, true
}

func (f *fakeSession) Subscribe(fn func(bool)) func() {
	f.subs = append(f.subs, fn)
	return func() {}
}

func (f *fakeSession) logout() {
	f.signedIn = false
	for _, fn := range f.subs {
		fn(false)
	}
}

type fakeCoupons struct{ clears int }

func (f *fakeCoupons) Clear(context.Context) { f.clears++ }

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAggregator(backend *fakeBackend, signedIn bool) (*Aggregator, *fakeSession, *fakeCoupons) {
	creds := &fakeSession{signedIn: signedIn, userID: "user-42"}
	coupons := &fakeCoupons{}
	return New(backend, creds, coupons, newTestLogger()), creds, coupons
}

func TestLoadGuestSkipsNetwork(t *testing.T) {
	backend := &fakeBackend{}
	a, _, _ := newAggregator(backend, false)

	lines, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Empty(t, backend.calls)
	assert.Equal(t, Snapshot{}, a.Snapshot())
}

func TestLoadComputesLineTotalsLocally(t *testing.T) {
	backend := &fakeBackend{cart: []cartItemPayload{
		// The backend's total field is stale on purpose; local math
		// must win.
		{MaHh: 1, TenHH: "Keyboard", DonGia: 100, Quantity: 2, Total: 999},
		{MaHh: 2, TenHH: "Mouse", DonGia: 50, Quantity: 1, Total: 999},
	}}
	a, _, _ := newAggregator(backend, true)

	lines, err := a.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(200), lines[0].LineTotal)
	assert.Equal(t, int64(50), lines[1].LineTotal)

	snap := a.Snapshot()
	assert.Equal(t, 2, snap.Count)
	assert.Equal(t, int64(250), snap.Total)
}

func TestAddRoundTripsThenRefetches(t *testing.T) {
	backend := &fakeBackend{cart: []cartItemPayload{
		{MaHh: 7, TenHH: "Lamp", DonGia: 300, Quantity: 1},
	}}
	a, _, _ := newAggregator(backend, true)

	require.NoError(t, a.Add(context.Background(), 7, 1))

	require.Equal(t, []string{"POST /Cart/AddToCart", "GET /Cart/GetCartData"}, backend.calls)
	assert.Equal(t, "user-42", backend.lastAdd.MaKh)
	assert.Equal(t, int64(7), backend.lastAdd.MaHh)
	assert.Equal(t, int64(1), backend.lastAdd.Quantity)
	assert.NotEmpty(t, backend.lastAdd.Ngay)
	assert.Equal(t, 1, a.Snapshot().Count)
}

func TestAddRequiresSession(t *testing.T) {
	backend := &fakeBackend{}
	a, _, _ := newAggregator(backend, false)

	err := a.Add(context.Background(), 7, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	assert.Empty(t, backend.calls)
}

func TestAddRejectsNonPositiveQuantity(t *testing.T) {
	backend := &fakeBackend{}
	a, _, _ := newAggregator(backend, true)

	err := a.Add(context.Background(), 7, 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Empty(t, backend.calls)
}

func TestIncrementUsesUserScopedPath(t *testing.T) {
	backend := &fakeBackend{cart: []cartItemPayload{
		{MaHh: 7, DonGia: 300, Quantity: 2},
	}}
	a, _, _ := newAggregator(backend, true)

	require.NoError(t, a.Increment(context.Background(), 7))
	require.Equal(t, []string{"PUT /Cart/increase-quantity/user-42/7", "GET /Cart/GetCartData"}, backend.calls)
}

func TestDecrementAtOneIsLocalNoOp(t *testing.T) {
	backend := &fakeBackend{cart: []cartItemPayload{
		{MaHh: 7, DonGia: 300, Quantity: 1},
	}}
	a, _, _ := newAggregator(backend, true)
	ctx := context.Background()

	_, err := a.Load(ctx)
	require.NoError(t, err)
	backend.calls = nil

	require.NoError(t, a.Decrement(ctx, 7))
	assert.Empty(t, backend.calls)
	assert.Equal(t, int64(1), a.Lines()[0].Quantity)
}

func TestDecrementAboveOneRoundTrips(t *testing.T) {
	backend := &fakeBackend{cart: []cartItemPayload{
		{MaHh: 7, DonGia: 300, Quantity: 2},
	}}
	a, _, _ := newAggregator(backend, true)
	ctx := context.Background()

	_, err := a.Load(ctx)
	require.NoError(t, err)
	backend.calls = nil
	backend.cart[0].Quantity = 1

	require.NoError(t, a.Decrement(ctx, 7))
	require.Equal(t, []string{"PUT /Cart/minus-quantity/user-42/7", "GET /Cart/GetCartData"}, backend.calls)
	assert.Equal(t, int64(1), a.Lines()[0].Quantity)
}

func TestRemoveRoundTripsThenRefetches(t *testing.T) {
	backend := &fakeBackend{cart: []cartItemPayload{
		{MaHh: 7, DonGia: 300, Quantity: 1},
	}}
	a, _, _ := newAggregator(backend, true)
	ctx := context.Background()

	_, err := a.Load(ctx)
	require.NoError(t, err)
	backend.calls = nil
	backend.cart = nil

	require.NoError(t, a.Remove(ctx, 7))
	require.Equal(t, []string{"POST /Cart/Remove/user-42/7", "GET /Cart/GetCartData"}, backend.calls)
	assert.Zero(t, a.Snapshot().Count)
}

func TestMutationFailureLeavesMirrorUntouched(t *testing.T) {
	backend := &fakeBackend{cart: []cartItemPayload{
		{MaHh: 7, DonGia: 300, Quantity: 2},
	}}
	a, _, _ := newAggregator(backend, true)
	ctx := context.Background()

	_, err := a.Load(ctx)
	require.NoError(t, err)

	backend.err = apperrors.Transient("network error", assert.AnError)
	err = a.Increment(ctx, 7)
	assert.ErrorIs(t, err, apperrors.ErrTransient)
	assert.Equal(t, int64(2), a.Lines()[0].Quantity)
}

func TestLogoutResetsCartAndClearsCoupon(t *testing.T) {
	backend := &fakeBackend{cart: []cartItemPayload{
		{MaHh: 7, DonGia: 300, Quantity: 1},
	}}
	a, creds, coupons := newAggregator(backend, true)
	ctx := context.Background()

	_, err := a.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, a.Snapshot().Count)

	var last Snapshot
	a.Subscribe(func(s Snapshot) { last = s })

	creds.logout()

	assert.Equal(t, Snapshot{}, a.Snapshot())
	assert.Equal(t, Snapshot{}, last)
	assert.Equal(t, 1, coupons.clears)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	backend := &fakeBackend{cart: []cartItemPayload{
		{MaHh: 7, DonGia: 300, Quantity: 1},
	}}
	a, _, _ := newAggregator(backend, true)
	ctx := context.Background()

	calls := 0
	unsubscribe := a.Subscribe(func(Snapshot) { calls++ })

	_, err := a.Load(ctx)
	require.NoError(t, err)
	unsubscribe()
	_, err = a.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}
