// Package gateway is the single path every authenticated request to
// the storefront backend takes. It attaches the current access token,
// and on a 401 it refreshes the token pair and replays the request
// exactly once. A request is never replayed twice, and a failed
// refresh ends the session.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	apperrors "github.com/Dugo220203tg/storefront/pkg/errors"
	"github.com/Dugo220203tg/storefront/pkg/httpclient"
)

// CredentialSource is the slice of the credential store the gateway
// needs. Refresh must atomically install a new token pair; Logout must
// clear the session.
type CredentialSource interface {
	Token() string
	Refresh(ctx context.Context) error
	Logout(ctx context.Context)
}

// requestState tracks where a request is in its lifecycle. The only
// legal path through the machine is sent, then at most one refresh,
// then at most one replay.
type requestState int

const (
	stateSent requestState = iota
	stateWaitingRefresh
	stateReplayed
)

// Gateway decorates an HTTP client with token attachment and
// refresh-and-replay. It satisfies httpclient.Doer so callers that
// only need raw requests can use it directly.
type Gateway struct {
	client  httpclient.Doer
	creds   CredentialSource
	baseURL string
	log     *slog.Logger

	// refreshMu single-flights the refresh: when several requests hit
	// 401 at once, one refreshes and the rest reuse the result.
	refreshMu sync.Mutex
}

// New creates a gateway in front of client using creds for tokens.
func New(client httpclient.Doer, creds CredentialSource, baseURL string, log *slog.Logger) *Gateway {
	return &Gateway{
		client:  client,
		creds:   creds,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// Do executes req with the current access token attached. On a 401 the
// token pair is refreshed and the request replayed once with the new
// token; a second 401, or a failed refresh, ends the session and
// returns an unauthenticated error. Requests sent without any token
// pass through untouched, so a 401 for a guest is surfaced, not
// retried.
//
// For non-GET replays the request body must be rewindable (GetBody
// set); requests built from byte slices qualify.
func (g *Gateway) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	token := g.creds.Token()
	if token == "" {
		return g.client.Do(ctx, req)
	}

	state := stateSent
	for {
		switch state {
		case stateSent, stateReplayed:
			attempt, err := cloneRequest(req)
			if err != nil {
				return nil, apperrors.Unrecoverable("rebuild request for replay", err)
			}
			attempt.Header.Set("Authorization", "Bearer "+token)

			resp, err := g.client.Do(ctx, attempt)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusUnauthorized {
				return resp, nil
			}
			drainBody(resp)

			if state == stateReplayed {
				// The refreshed token was rejected too. Nothing more
				// to try.
				g.log.Warn("request rejected after token refresh", "path", req.URL.Path)
				g.creds.Logout(ctx)
				return nil, apperrors.Unauthenticated("session expired, please sign in again")
			}
			state = stateWaitingRefresh

		case stateWaitingRefresh:
			refreshed, err := g.refresh(ctx, token)
			if err != nil {
				g.log.Warn("token refresh failed", "error", err)
				g.creds.Logout(ctx)
				return nil, apperrors.Unauthenticated("session expired, please sign in again")
			}
			token = refreshed
			state = stateReplayed
		}
	}
}

// refresh obtains a token newer than staleToken. If a concurrent
// request already refreshed while this one waited on the lock, that
// result is reused instead of refreshing again.
func (g *Gateway) refresh(ctx context.Context, staleToken string) (string, error) {
	g.refreshMu.Lock()
	defer g.refreshMu.Unlock()

	if current := g.creds.Token(); current != "" && current != staleToken {
		return current, nil
	}
	if err := g.creds.Refresh(ctx); err != nil {
		return "", err
	}
	return g.creds.Token(), nil
}

// GetJSON performs an authenticated GET against path and decodes the
// response into out.
func (g *Gateway) GetJSON(ctx context.Context, path string, out any) error {
	return g.roundTrip(ctx, http.MethodGet, path, nil, out)
}

// PostJSON performs an authenticated POST with a JSON body.
func (g *Gateway) PostJSON(ctx context.Context, path string, body, out any) error {
	return g.roundTrip(ctx, http.MethodPost, path, body, out)
}

// PutJSON performs an authenticated PUT with a JSON body.
func (g *Gateway) PutJSON(ctx context.Context, path string, body, out any) error {
	return g.roundTrip(ctx, http.MethodPut, path, body, out)
}

func (g *Gateway) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Unrecoverable("encode request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return apperrors.Unrecoverable("build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.Do(ctx, req)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return err
		}
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

// cloneRequest produces a fresh request with a rewound body, so a
// replay carries the same payload as the original send.
func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.GetBody == nil {
		return clone, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

// drainBody releases a response that will not be returned to the
// caller, keeping the underlying connection reusable.
func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}
