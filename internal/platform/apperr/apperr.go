// Package apperr defines the error kinds shared by the domain services and the
// mapping from those kinds to HTTP responses.
package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Error is a classified error with a user-facing message. Err holds the
// underlying cause, if any, and is never shown for non-5xx responses.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

func Unauthenticated(msg string) error { return &Error{Kind: KindAuthentication, Message: msg} }

func Forbidden(msg string) error { return &Error{Kind: KindAuthorization, Message: msg} }

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

func Conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

// Store wraps a persistence failure.
func Store(msg string, err error) error {
	return &Error{Kind: KindStore, Message: msg, Err: err}
}

// Wrap classifies an unclassified err as a store failure reported with msg.
// Already classified errors and nil pass through unchanged.
func Wrap(msg string, err error) error {
	if err == nil || KindOf(err) != KindUnknown {
		return err
	}
	return Store(msg, err)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to its response status. Conflicts are reported as
// 400 to match what existing clients expect.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts err into an *echo.HTTPError. fallback is used as the
// message for unclassified errors.
func ToHTTP(err error, fallback string) *echo.HTTPError {
	var e *Error
	if errors.As(err, &e) {
		he := echo.NewHTTPError(HTTPStatus(e.Kind), e.Message)
		if e.Err != nil {
			he = he.SetInternal(e.Err)
		}
		return he
	}
	return echo.NewHTTPError(http.StatusInternalServerError, fallback).SetInternal(err)
}

// ErrBodyTooLarge is returned by body reads once the request exceeds the
// server's body limit.
var ErrBodyTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Request body too large")

// BadBody maps a failure to read or bind a request body. Oversized bodies
// keep their 413; anything else is a 400.
func BadBody(err error) *echo.HTTPError {
	if errors.Is(err, ErrBodyTooLarge) {
		return ErrBodyTooLarge
	}
	return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// HTTPErrorHandler renders errors as {"message": ...}. Server errors also
// carry the internal cause under "error" and are logged.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if !errors.As(err, &he) {
			he = ToHTTP(err, "internal server error")
		}

		body := ErrorResponse{Message: http.StatusText(he.Code)}
		if msg, ok := he.Message.(string); ok {
			body.Message = msg
		}
		if he.Code >= http.StatusInternalServerError {
			if he.Internal != nil {
				body.Error = he.Internal.Error()
			}
			rid, _ := c.Get("request_id").(string)
			logger.Error().
				Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(he.Code)
		} else {
			werr = c.JSON(he.Code, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
