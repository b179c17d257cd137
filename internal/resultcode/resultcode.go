// Package resultcode defines the error taxonomy shared by detection, matching,
// search and the identity store, and maps errors onto wire result codes.
package resultcode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code is the structured result code returned to API clients.
type Code int

const (
	OK                Code = 0
	DecodeError       Code = 1
	NoFaceDetected    Code = 2
	DimensionMismatch Code = 3
	NotFound          Code = 4
	ValidationError   Code = 5
	Timeout           Code = 6
	Internal          Code = 7
)

var (
	ErrDecode            = errors.New("image cannot be decoded")
	ErrNoFace            = errors.New("no face detected")
	ErrDimensionMismatch = errors.New("embedding dimensions differ")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("invalid request")
	ErrTimeout           = errors.New("operation timed out")
	ErrInternal          = errors.New("internal error")
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case DecodeError:
		return "decode_error"
	case NoFaceDetected:
		return "no_face_detected"
	case DimensionMismatch:
		return "dimension_mismatch"
	case NotFound:
		return "not_found"
	case ValidationError:
		return "validation_error"
	case Timeout:
		return "timeout"
	case Internal:
		return "internal_error"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// Retryable reports whether a client may retry a request that failed with c.
func (c Code) Retryable() bool {
	return c == Timeout || c == Internal
}

// HTTPStatus maps a code to the status used by CRUD endpoints.
func (c Code) HTTPStatus() int {
	switch c {
	case OK:
		return http.StatusOK
	case DecodeError, ValidationError:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case NoFaceDetected, DimensionMismatch:
		return http.StatusUnprocessableEntity
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Of classifies err. A nil error is OK; unknown errors are Internal.
func Of(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ErrDecode):
		return DecodeError
	case errors.Is(err, ErrNoFace):
		return NoFaceDetected
	case errors.Is(err, ErrDimensionMismatch):
		return DimensionMismatch
	case errors.Is(err, ErrNotFound):
		return NotFound
	case errors.Is(err, ErrValidation):
		return ValidationError
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return Timeout
	default:
		return Internal
	}
}

// Validationf returns a ValidationError carrying a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf returns a NotFound error carrying a formatted reason.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
