package apierror

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Kind classifies an error for the HTTP surface.
type Kind string

const (
	KindBadRequest      Kind = "bad_request"
	KindUnauthorized    Kind = "unauthorized"
	KindNotFound        Kind = "not_found"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindRateLimited     Kind = "rate_limited"
	KindStorage         Kind = "storage"
	KindDatabase        Kind = "database"
	KindInternal        Kind = "internal"
)

// Error is the error type surfaced by the service layers. Message is shown to
// the caller; Err is kept for logs and errors.Is/As.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// RetryAfterSeconds rounds the retry hint up to whole seconds, minimum 1.
func (e *Error) RetryAfterSeconds() int64 {
	secs := int64(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func BadRequest(msg string) *Error { return &Error{Kind: KindBadRequest, Message: msg} }

func Unauthorized() *Error { return &Error{Kind: KindUnauthorized} }

func NotFound() *Error { return &Error{Kind: KindNotFound} }

func PayloadTooLarge() *Error { return &Error{Kind: KindPayloadTooLarge} }

func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, RetryAfter: retryAfter}
}

func Storage(err error) *Error { return &Error{Kind: KindStorage, Err: err} }

func Database(err error) *Error { return &Error{Kind: KindDatabase, Err: err} }

func Internal(msg string) *Error { return &Error{Kind: KindInternal, Message: msg} }

// As extracts an *Error from err, wrapping anything else as internal.
func As(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{Kind: KindInternal, Err: err}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// Respond writes err as the JSON error body {error, message} and aborts the
// handler chain. Storage, database and internal causes are not echoed.
func Respond(c *gin.Context, err error) {
	apiErr := As(err)
	body := gin.H{"error": string(apiErr.Kind)}
	if apiErr.Message != "" {
		body["message"] = apiErr.Message
	}
	if apiErr.Kind == KindRateLimited {
		c.Header("Retry-After", strconv.FormatInt(apiErr.RetryAfterSeconds(), 10))
	}
	c.AbortWithStatusJSON(apiErr.Status(), body)
}
