package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	apperrors "github.com/Dugo220203tg/storefront/pkg/errors"
)

// backendErrorBody is the error envelope the storefront backend returns
// on non-2xx responses.
type backendErrorBody struct {
	Message string `json:"message"`
}

// ClassifyTransportError translates a transport-level failure (dial
// error, timeout, canceled context) into the engine's error taxonomy.
func ClassifyTransportError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Transient("request timed out", err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			return apperrors.Transient("network error, please check your connection", err)
		}
		return apperrors.Transient("request failed", err)
	}
}

// ParseResponseError reads the body of a non-2xx response and maps it
// into a classified error. The backend's {message} envelope is preserved
// as the user-facing message when present. The response body is fully
// consumed and closed.
func ParseResponseError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.Transient(
			fmt.Sprintf("backend returned status %d", resp.StatusCode),
			fmt.Errorf("read error body: %w", err),
		)
	}

	message := ""
	var envelope backendErrorBody
	if json.Unmarshal(bodyBytes, &envelope) == nil {
		message = envelope.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if message == "" {
			message = "session expired, please log in again"
		}
		return apperrors.Unauthenticated(message)
	case resp.StatusCode == http.StatusForbidden:
		if message == "" {
			message = "you don't have permission to access this resource"
		}
		return apperrors.Forbidden(message)
	case resp.StatusCode >= 500:
		return apperrors.Transient("server error, please try again later",
			fmt.Errorf("backend status %d: %s", resp.StatusCode, string(bodyBytes)))
	default:
		// 4xx other than auth failures is an explicit business
		// rejection (invalid coupon, empty cart, bad request).
		if message == "" {
			message = fmt.Sprintf("request rejected with status %d", resp.StatusCode)
		}
		return apperrors.Rejected(message)
	}
}
