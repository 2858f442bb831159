package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Dugo220203tg/storefront/internal/session"
	apperrors "github.com/Dugo220203tg/storefront/pkg/errors"
	"github.com/Dugo220203tg/storefront/pkg/httpclient"
)

// storageKey is the fixed session key the credential document lives
// under.
const storageKey = "credential"

// ErrRefreshDenied is returned by Refresh when the backend rejects the
// refresh token. The session cannot be extended; callers should log
// out.
var ErrRefreshDenied = errors.New("credential: refresh token rejected")

// authResponse is the backend's envelope for login and refresh calls.
type authResponse struct {
	IsSuccess    bool   `json:"isSuccess"`
	Message      string `json:"message"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// RegisterInput holds the fields for account creation.
type RegisterInput struct {
	FullName    string `json:"fullName" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	PhoneNumber string `json:"phoneNumber" validate:"required"`
}

// ResetPasswordInput carries the emailed reset token and the new
// password.
type ResetPasswordInput struct {
	Email       string `json:"email" validate:"required,email"`
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

// ChangePasswordInput is the authenticated password change payload.
type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

// AccountDetail is the profile record the backend returns for the
// signed-in account.
type AccountDetail struct {
	ID          string `json:"id"`
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Address     string `json:"address"`
}

// Store holds the session credential, keeps it durably persisted, and
// notifies subscribers when the signed-in state changes. All methods
// are safe for concurrent use.
type Store struct {
	client  httpclient.Doer
	storage session.Store
	baseURL string
	log     *slog.Logger
	now     func() time.Time

	mu   sync.RWMutex
	cred *Credential

	subMu   sync.Mutex
	subs    map[int]func(bool)
	nextSub int
}

// New creates a credential store and restores any persisted credential
// from storage. A malformed stored document is deleted rather than
// surfaced: a broken blob must not brick the session.
func New(client httpclient.Doer, storage session.Store, baseURL string, log *slog.Logger) *Store {
	s := &Store{
		client:  client,
		storage: storage,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
		now:     time.Now,
		subs:    make(map[int]func(bool)),
	}
	s.restore()
	return s
}

func (s *Store) restore() {
	ctx := context.Background()
	var cred Credential
	err := session.ReadJSON(ctx, s.storage, storageKey, &cred)
	switch {
	case err == nil:
		if cred.AccessToken == "" {
			s.log.Warn("stored credential has no access token, discarding")
			_ = s.storage.Delete(ctx, storageKey)
			return
		}
		s.cred = &cred
	case errors.Is(err, session.ErrNotFound):
	default:
		s.log.Warn("stored credential unreadable, discarding", "error", err)
		_ = s.storage.Delete(ctx, storageKey)
	}
}

// Login authenticates against the backend and, on success, installs
// and persists the returned credential.
func (s *Store) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}

	var auth authResponse
	if err := s.post(ctx, "/Login", body, &auth); err != nil {
		return err
	}
	if !auth.IsSuccess {
		msg := auth.Message
		if msg == "" {
			msg = "invalid email or password"
		}
		return apperrors.Rejected(msg)
	}

	cred, err := buildCredential(auth)
	if err != nil {
		return apperrors.Unrecoverable("login response could not be decoded", err)
	}

	s.install(ctx, cred)
	s.log.Info("login succeeded", "user_id", cred.Identity.ID)
	s.notify(true)
	return nil
}

// Refresh exchanges the current refresh token for a new token pair.
// The replacement is atomic: readers see either the old pair or the
// new one. A backend denial returns ErrRefreshDenied; the caller
// decides whether to log out.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.RLock()
	cred := s.cred
	s.mu.RUnlock()
	if cred == nil {
		return ErrRefreshDenied
	}

	body := map[string]string{
		"email":        cred.Identity.Email,
		"token":        cred.AccessToken,
		"refreshToken": cred.RefreshToken,
	}

	var auth authResponse
	if err := s.post(ctx, "/refresh-token", body, &auth); err != nil {
		if errors.Is(err, apperrors.ErrUnauthenticated) || errors.Is(err, apperrors.ErrRejected) {
			return fmt.Errorf("%w: %w", ErrRefreshDenied, err)
		}
		return err
	}
	if !auth.IsSuccess {
		return ErrRefreshDenied
	}

	next, err := buildCredential(auth)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRefreshDenied, err)
	}

	s.install(ctx, next)
	s.log.Info("token refreshed", "user_id", next.Identity.ID)
	s.notify(true)
	return nil
}

// Logout discards the credential, removes the persisted document, and
// notifies subscribers synchronously, so dependent state (cart, coupon)
// is already reset when Logout returns.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	hadCred := s.cred != nil
	s.cred = nil
	s.mu.Unlock()

	if err := s.storage.Delete(ctx, storageKey); err != nil {
		s.log.Warn("failed to delete persisted credential", "error", err)
	}
	if hadCred {
		s.log.Info("logged out")
	}
	s.notify(false)
}

// Register creates a new account. It does not log the account in.
func (s *Store) Register(ctx context.Context, in RegisterInput) error {
	return s.post(ctx, "/RegisterAccount", in, nil)
}

// ForgotPassword asks the backend to email a password reset token.
func (s *Store) ForgotPassword(ctx context.Context, email string) error {
	return s.post(ctx, "/ForgotPassword", map[string]string{"email": email}, nil)
}

// ResetPassword redeems an emailed reset token for a new password.
func (s *Store) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	return s.post(ctx, "/ResetPassword", in, nil)
}

// ChangePassword changes the signed-in account's password. The request
// goes through d so it carries authentication; pass the gateway.
func (s *Store) ChangePassword(ctx context.Context, d httpclient.Doer, in ChangePasswordInput) error {
	return s.request(ctx, d, http.MethodPost, "/ChangePassword", in, nil)
}

// AccountDetail fetches the signed-in account's profile through d;
// pass the gateway so the request carries authentication.
func (s *Store) AccountDetail(ctx context.Context, d httpclient.Doer) (AccountDetail, error) {
	var detail AccountDetail
	err := s.request(ctx, d, http.MethodGet, "/GetAccountDetail", nil, &detail)
	return detail, err
}

// Token returns the current access token, or "" when signed out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return ""
	}
	return s.cred.AccessToken
}

// HasCredential reports whether a token pair is held, expired or not.
// An expired access token still counts: the gateway can refresh it.
func (s *Store) HasCredential() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred != nil
}

// IsExpired reports whether the held access token is past its expiry.
// False when no credential is held.
func (s *Store) IsExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil || s.cred.ExpiresAt.IsZero() {
		return false
	}
	return !s.now().Before(s.cred.ExpiresAt)
}

// IsAuthenticated reports whether a non-expired access token is held.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return false
	}
	if !s.cred.ExpiresAt.IsZero() && !s.now().Before(s.cred.ExpiresAt) {
		return false
	}
	return true
}

// Identity returns the decoded profile and whether a credential is
// held.
func (s *Store) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return Identity{}, false
	}
	return s.cred.Identity, true
}

// Subscribe registers fn to be called synchronously with the new
// signed-in state on every login, refresh, and logout. The returned
// function unsubscribes.
func (s *Store) Subscribe(fn func(loggedIn bool)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(loggedIn bool) {
	s.subMu.Lock()
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(loggedIn)
	}
}

// install atomically replaces the credential and persists it. A
// persistence failure is logged but does not fail the operation; the
// in-memory session stays usable for its lifetime.
func (s *Store) install(ctx context.Context, cred *Credential) {
	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()

	if err := session.WriteJSON(ctx, s.storage, storageKey, cred); err != nil {
		s.log.Warn("failed to persist credential", "error", err)
	}
}

func buildCredential(auth authResponse) (*Credential, error) {
	identity, expiresAt, err := decodeToken(auth.Token)
	if err != nil {
		return nil, err
	}
	return &Credential{
		AccessToken:  auth.Token,
		RefreshToken: auth.RefreshToken,
		Identity:     identity,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Store) post(ctx context.Context, path string, body, out any) error {
	return s.request(ctx, s.client, http.MethodPost, path, body, out)
}

// request performs one JSON round trip against the backend and maps
// failures into the engine's error taxonomy.
func (s *Store) request(ctx context.Context, d httpclient.Doer, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Unrecoverable("encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return apperrors.Unrecoverable("build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.Do(ctx, req)
	if err != nil {
		return httpclient.ClassifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return httpclient.ParseResponseError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.Unrecoverable("decode response body", err)
		}
	}
	return nil
}
