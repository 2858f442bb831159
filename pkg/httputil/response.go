package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/Dugo220203tg/storefront/pkg/errors"
	"github.com/Dugo220203tg/storefront/pkg/logger"
	"github.com/Dugo220203tg/storefront/pkg/validator"
)

// Response is the standard JSON response envelope of the local API.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
// Retryable tells the UI whether offering a retry is meaningful.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a classified error response. AppError codes and
// messages are preserved; anything unclassified becomes a 500 and is
// logged with the request-scoped logger when one is present.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() {
		l = fallback
	}

	requestID := logger.CorrelationIDFromContext(r.Context())

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		WriteJSON(w, appErr.Status, Response{
			Error: &ErrorResponse{
				Code:      appErr.Code,
				Message:   appErr.Message,
				Retryable: apperrors.Retryable(err),
				RequestID: requestID,
			},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		WriteJSON(w, status, Response{
			Error: &ErrorResponse{
				Code:      "INTERNAL_ERROR",
				Message:   "an internal error occurred",
				RequestID: requestID,
			},
		})
		return
	}

	WriteJSON(w, status, Response{
		Error: &ErrorResponse{
			Code:      "ERROR",
			Message:   apperrors.Message(err),
			Retryable: apperrors.Retryable(err),
			RequestID: requestID,
		},
	})
}

// WriteValidationError writes a field-level validation error response.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "VALIDATION_REJECTED",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: "VALIDATION_REJECTED", Message: err.Error()},
	})
}
