package httpclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/Dugo220203tg/storefront/pkg/errors"
)

func fakeResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseResponseErrorUnauthorized(t *testing.T) {
	err := ParseResponseError(fakeResponse(http.StatusUnauthorized, `{}`))
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestParseResponseErrorForbidden(t *testing.T) {
	err := ParseResponseError(fakeResponse(http.StatusForbidden, `{}`))
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestParseResponseErrorBusinessRejection(t *testing.T) {
	err := ParseResponseError(fakeResponse(http.StatusBadRequest, `{"message":"Coupon has expired"}`))
	assert.ErrorIs(t, err, apperrors.ErrRejected)
	assert.Equal(t, "Coupon has expired", apperrors.Message(err))
}

func TestParseResponseErrorServerError(t *testing.T) {
	err := ParseResponseError(fakeResponse(http.StatusInternalServerError, `boom`))
	assert.ErrorIs(t, err, apperrors.ErrTransient)
	assert.True(t, apperrors.Retryable(err))
}

func TestParseResponseErrorUnstructuredBody(t *testing.T) {
	err := ParseResponseError(fakeResponse(http.StatusBadRequest, `not json`))
	assert.ErrorIs(t, err, apperrors.ErrRejected)
}

func TestClassifyTransportErrorTimeout(t *testing.T) {
	err := ClassifyTransportError(context.DeadlineExceeded)
	assert.ErrorIs(t, err, apperrors.ErrTransient)
	assert.Equal(t, "request timed out", apperrors.Message(err))
}

func TestClassifyTransportErrorCanceledPassesThrough(t *testing.T) {
	err := ClassifyTransportError(context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, apperrors.Retryable(err))
}
