// Package apperr defines the error taxonomy shared by the store, ledger and
// HTTP layers, and the single place where errors become JSON responses.
package apperr

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies a failure for the caller.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindUpstream      Kind = "upstream"
)

// Error is a business failure with a message that is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	// Status overrides the default HTTP status of Kind when non-zero.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status code the error maps to.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }

func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

func QuotaExceeded(msg string) *Error { return &Error{Kind: KindQuotaExceeded, Message: msg} }

// Upstream wraps a failure of the generative service. The cause is kept for
// logging but never rendered.
func Upstream(msg string, cause error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: cause}
}

// UpstreamUnavailable reports a generative service that is not configured.
func UpstreamUnavailable(msg string) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Status: http.StatusServiceUnavailable}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// Respond aborts the request with a JSON error body. Errors outside the
// taxonomy become a generic 500 and are logged.
func Respond(c *gin.Context, log *slog.Logger, err error) {
	e, ok := As(err)
	if !ok {
		log.Error("Unhandled error", "error", err, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if e.Kind == KindUpstream {
		log.Error("Upstream failure", "error", err, "path", c.Request.URL.Path)
	}
	c.AbortWithStatusJSON(e.HTTPStatus(), gin.H{"error": e.Message})
}
