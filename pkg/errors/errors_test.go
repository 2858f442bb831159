package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelMatching(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"unauthenticated", Unauthenticated("please log in"), ErrUnauthenticated},
		{"forbidden", Forbidden("admin only"), ErrForbidden},
		{"validation", Invalid("blank coupon code"), ErrValidation},
		{"rejected", Rejected("coupon is not valid"), ErrRejected},
		{"transient", Transient("request timed out", errors.New("deadline exceeded")), ErrTransient},
		{"unrecoverable", Unrecoverable("draft missing", nil), ErrUnrecoverable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
		})
	}
}

func TestSentinelMatchingThroughWrap(t *testing.T) {
	err := fmt.Errorf("load cart: %w", Rejected("cart unavailable"))
	assert.ErrorIs(t, err, ErrRejected)

	var appErr *AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, "REMOTE_REJECTED", appErr.Code)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Transient("timeout", errors.New("timeout"))))
	assert.False(t, Retryable(Rejected("invalid coupon")))
	assert.False(t, Retryable(Unauthenticated("no session")))
	assert.False(t, Retryable(errors.New("plain")))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "coupon is not valid", Message(Rejected("coupon is not valid")))
	assert.Equal(t, "plain failure", Message(errors.New("plain failure")))
	// The wrapped cause stays out of the user-facing message.
	err := Transient("request timed out", errors.New("dial tcp: i/o timeout"))
	assert.Equal(t, "request timed out", Message(err))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(Unauthenticated("no session")))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(Forbidden("admin only")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Invalid("bad input")))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(Rejected("declined")))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(Transient("down", errors.New("refused"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("unclassified")))
}

func TestErrorString(t *testing.T) {
	err := Transient("backend unreachable", errors.New("connection refused"))
	assert.Contains(t, err.Error(), "TRANSIENT")
	assert.Contains(t, err.Error(), "backend unreachable")
	assert.Contains(t, err.Error(), "connection refused")
}
