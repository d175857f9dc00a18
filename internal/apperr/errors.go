package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Business and transport error classes. Callers wrap these with %w and
// classify with errors.Is.
var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrInsufficientLockedStock = errors.New("insufficient locked stock")
	ErrAlreadyExists           = errors.New("already exists")
	ErrUpstreamUnavailable     = errors.New("upstream unavailable")
	ErrValidation              = errors.New("validation error")

	// ErrProductOffShelf is a validation failure with its own envelope code.
	ErrProductOffShelf = fmt.Errorf("%w: product off shelf", ErrValidation)
)

// Envelope codes. 200 is success; the 3xxx/4xxx business codes follow the
// ledger/order numbering the other services already understand.
const (
	CodeOK                      = 200
	CodeBadRequest              = 400
	CodeNotFound                = 404
	CodeInternal                = 500
	CodeUnavailable             = 503
	CodeProductNotFound         = 2001
	CodeProductOffShelf         = 2002
	CodeInsufficientStock       = 3001
	CodeInventoryNotFound       = 3003
	CodeInsufficientLockedStock = 3004
	CodeInventoryExists         = 3005
	CodeOrderNotFound           = 4001
	CodeInvalidTransition       = 4002
)

// Code maps err to an envelope code.
func Code(err error) int {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrProductOffShelf):
		return CodeProductOffShelf
	case errors.Is(err, ErrValidation):
		return CodeBadRequest
	case errors.Is(err, ErrInsufficientStock):
		return CodeInsufficientStock
	case errors.Is(err, ErrInsufficientLockedStock):
		return CodeInsufficientLockedStock
	case errors.Is(err, ErrAlreadyExists):
		return CodeInventoryExists
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUpstreamUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// CodeIn is Code with the generic 404 replaced by the caller's own
// not-found code (inventory, order or product).
func CodeIn(err error, notFound int) int {
	c := Code(err)
	if c == CodeNotFound {
		return notFound
	}
	return c
}

// HTTPStatus is the transport status that accompanies an envelope code.
func HTTPStatus(code int) int {
	switch {
	case code == CodeOK:
		return http.StatusOK
	case code == CodeBadRequest:
		return http.StatusBadRequest
	case code == CodeNotFound, code == CodeProductNotFound, code == CodeInventoryNotFound, code == CodeOrderNotFound:
		return http.StatusNotFound
	case code == CodeInventoryExists, code == CodeInvalidTransition:
		return http.StatusConflict
	case code == CodeInsufficientStock, code == CodeInsufficientLockedStock, code == CodeProductOffShelf:
		return http.StatusUnprocessableEntity
	case code == CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromCode rebuilds a classified error from an envelope received over RPC.
func FromCode(code int, message string) error {
	var base error
	switch code {
	case CodeOK:
		return nil
	case CodeBadRequest:
		base = ErrValidation
	case CodeProductOffShelf:
		base = ErrProductOffShelf
	case CodeNotFound, CodeProductNotFound, CodeInventoryNotFound, CodeOrderNotFound:
		base = ErrNotFound
	case CodeInsufficientStock:
		base = ErrInsufficientStock
	case CodeInsufficientLockedStock:
		base = ErrInsufficientLockedStock
	case CodeInventoryExists:
		base = ErrAlreadyExists
	case CodeInvalidTransition:
		base = ErrInvalidTransition
	case CodeUnavailable:
		base = ErrUpstreamUnavailable
	default:
		return fmt.Errorf("remote error %d: %s", code, message)
	}
	if message == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, message)
}

// Retryable reports whether err came from a failed or timed-out remote call.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}

// Validationf builds a ValidationError with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
