package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy shared by the ledger, the order state machine, the payment
// tracker and the callback pipeline. Wrap with fmt.Errorf("%w: ...") and
// test with errors.Is.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrConflict            = errors.New("conflict")
	ErrInvalidTransition   = fmt.Errorf("%w: invalid order status transition", ErrConflict)
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyProcessed    = errors.New("already processed")
	ErrAmountMismatch      = errors.New("payment amount mismatch")
	ErrRetryable           = errors.New("retryable failure")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// HTTPStatus maps an error from the engine to the status code returned by the API.
func HTTPStatus(err error) int {
	switch {
	case err == nil, errors.Is(err, ErrAlreadyProcessed):
		return http.StatusOK
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrProviderUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrRetryable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a short machine readable code for an error, used in API bodies.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrRetryable):
		return "retryable"
	default:
		return "internal"
	}
}
