// Package oops defines the error taxonomy shared by every coordinator
// subsystem. An error carries a Kind that maps onto an HTTP status; handlers
// wrap causes with fmt.Errorf and the kind survives the wrapping.
package oops

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for dispatch and HTTP mapping.
type Kind string

const (
	AuthMissing      Kind = "auth_missing"
	AuthInvalid      Kind = "auth_invalid"
	PermissionDenied Kind = "permission_denied"
	NotFound         Kind = "not_found"
	AlreadyExists    Kind = "already_exists"
	InvalidConfig    Kind = "invalid_config"
	Busy             Kind = "busy"
	Upstream         Kind = "upstream"
	Storage          Kind = "storage"
	Internal         Kind = "internal"
)

// E is a kind-tagged error.
type E struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *E) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return e.Msg + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	return e.Msg
}

func (e *E) Unwrap() error { return e.Err }

// New creates a kind-tagged error from a format string.
func New(kind Kind, format string, args ...any) error {
	return &E{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message. Returns nil if err is nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &E{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the innermost *E in err's chain,
// or Internal if none is found.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *E
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// HTTPStatus maps an error kind to its HTTP response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case AuthMissing, AuthInvalid:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case AlreadyExists, Busy:
		return http.StatusConflict
	case InvalidConfig:
		return http.StatusBadRequest
	case Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
