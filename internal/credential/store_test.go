package credential

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dugo220203tg/storefront/internal/session"
	apperrors "github.com/Dugo220203tg/storefront/pkg/errors"
	"github.com/Dugo220203tg/storefront/pkg/httpclient"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient() *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = 2 * time.Second
	return httpclient.New(cfg)
}

func signToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"nameid": "user-42",
		"name":   "Ada Lovelace",
		"email":  "ada@example.com",
		"role":   "Customer",
		"phone":  "0123456789",
		"exp":    expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func authOK(t *testing.T, token string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"isSuccess":    true,
			"token":        token,
			"refreshToken": "refresh-1",
		})
	}
}

func TestLoginInstallsAndPersistsCredential(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	token := signToken(t, exp)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /Login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@example.com", body["email"])
		assert.Equal(t, "secret", body["password"])
		authOK(t, token)(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	storage := session.NewMemoryStore()
	store := New(newTestClient(), storage, srv.URL, newTestLogger())

	var events []bool
	store.Subscribe(func(loggedIn bool) { events = append(events, loggedIn) })

	require.NoError(t, store.Login(context.Background(), "ada@example.com", "secret"))

	identity, ok := store.Identity()
	require.True(t, ok)
	assert.Equal(t, "user-42", identity.ID)
	assert.Equal(t, "Ada Lovelace", identity.FullName)
	assert.Equal(t, "Customer", identity.Role)
	assert.Equal(t, "0123456789", identity.PhoneNumber)
	assert.Equal(t, token, store.Token())
	assert.True(t, store.IsAuthenticated())
	assert.Equal(t, []bool{true}, events)

	// The credential survives a restart: a fresh store restores it.
	restored := New(newTestClient(), storage, srv.URL, newTestLogger())
	assert.Equal(t, token, restored.Token())
	id, ok := restored.Identity()
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", id.Email)
}

func TestLoginRejectedSurfacesBackendMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /Login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"isSuccess": false,
			"message":   "account is locked",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := New(newTestClient(), session.NewMemoryStore(), srv.URL, newTestLogger())

	err := store.Login(context.Background(), "ada@example.com", "secret")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRejected)
	assert.Equal(t, "account is locked", apperrors.Message(err))
	assert.False(t, store.HasCredential())
}

func TestRestoreDeletesMalformedDocument(t *testing.T) {
	storage := session.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, storage.Write(ctx, "credential", []byte("{not json")))

	store := New(newTestClient(), storage, "http://backend", newTestLogger())
	assert.False(t, store.HasCredential())

	_, err := storage.Read(ctx, "credential")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRefreshReplacesTokenPair(t *testing.T) {
	oldToken := signToken(t, time.Now().Add(-time.Minute))
	newToken := signToken(t, time.Now().Add(time.Hour))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /Login", authOK(t, oldToken))
	mux.HandleFunc("POST /refresh-token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, oldToken, body["token"])
		assert.Equal(t, "refresh-1", body["refreshToken"])
		assert.Equal(t, "ada@example.com", body["email"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"isSuccess":    true,
			"token":        newToken,
			"refreshToken": "refresh-2",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	storage := session.NewMemoryStore()
	store := New(newTestClient(), storage, srv.URL, newTestLogger())
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, "ada@example.com", "secret"))

	assert.True(t, store.HasCredential())
	assert.False(t, store.IsAuthenticated(), "expired token is held but not authenticated")

	require.NoError(t, store.Refresh(ctx))
	assert.Equal(t, newToken, store.Token())
	assert.True(t, store.IsAuthenticated())

	// The persisted document carries the new pair.
	var stored Credential
	require.NoError(t, session.ReadJSON(ctx, storage, "credential", &stored))
	assert.Equal(t, newToken, stored.AccessToken)
	assert.Equal(t, "refresh-2", stored.RefreshToken)
}

func TestRefreshDenied(t *testing.T) {
	token := signToken(t, time.Now().Add(time.Hour))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /Login", authOK(t, token))
	mux.HandleFunc("POST /refresh-token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := New(newTestClient(), session.NewMemoryStore(), srv.URL, newTestLogger())
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, "ada@example.com", "secret"))

	err := store.Refresh(ctx)
	assert.ErrorIs(t, err, ErrRefreshDenied)

	// The old pair is kept; the caller decides whether to log out.
	assert.Equal(t, token, store.Token())
}

func TestRefreshWithoutCredential(t *testing.T) {
	store := New(newTestClient(), session.NewMemoryStore(), "http://backend", newTestLogger())
	assert.ErrorIs(t, store.Refresh(context.Background()), ErrRefreshDenied)
}

func TestLogoutClearsStateAndNotifiesSynchronously(t *testing.T) {
	token := signToken(t, time.Now().Add(time.Hour))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /Login", authOK(t, token))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	storage := session.NewMemoryStore()
	store := New(newTestClient(), storage, srv.URL, newTestLogger())
	ctx := context.Background()
	require.NoError(t, store.Login(ctx, "ada@example.com", "secret"))

	var sawLoggedOut atomic.Bool
	store.Subscribe(func(loggedIn bool) {
		if !loggedIn {
			// The credential must already be gone when subscribers run.
			assert.False(t, store.HasCredential())
			sawLoggedOut.Store(true)
		}
	})

	store.Logout(ctx)

	assert.True(t, sawLoggedOut.Load())
	assert.Empty(t, store.Token())
	_, ok := store.Identity()
	assert.False(t, ok)

	_, err := storage.Read(ctx, "credential")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	store := New(newTestClient(), session.NewMemoryStore(), "http://backend", newTestLogger())

	calls := 0
	unsubscribe := store.Subscribe(func(bool) { calls++ })
	store.Logout(context.Background())
	unsubscribe()
	store.Logout(context.Background())

	assert.Equal(t, 1, calls)
}

func TestDecodeTokenDefaultsRole(t *testing.T) {
	claims := jwt.MapClaims{
		"nameid": "user-7",
		"name":   "No Role",
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	identity, expiresAt, err := decodeToken(token)
	require.NoError(t, err)
	assert.Equal(t, "Guest", identity.Role)
	assert.False(t, expiresAt.IsZero())
}

func TestAccountDetailUsesProvidedDoer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /GetAccountDetail", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(AccountDetail{
			ID:       "user-42",
			FullName: "Ada Lovelace",
			Email:    "ada@example.com",
			Address:  "12 Analytical Way",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := New(newTestClient(), session.NewMemoryStore(), srv.URL, newTestLogger())

	detail, err := store.AccountDetail(context.Background(), newTestClient())
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", detail.FullName)
	assert.Equal(t, "12 Analytical Way", detail.Address)
}
