package goSession

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthorized is returned when a request carries no acceptable identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPermissionDenied is returned when an identity is valid but its role is not admitted.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInternal is returned when the request could not be served for server-side reasons.
	ErrInternal = errors.New("internal error")
	// ErrUserNotFound is returned by an [IdentityStore] for an unknown username.
	ErrUserNotFound = errors.New("user not found")
	// ErrStoreUnavailable is returned by an [IdentityStore] when its backend cannot answer.
	ErrStoreUnavailable = errors.New("identity store unavailable")
	// ErrEngineNotReady is returned when a nil or unbuilt Engine or Namespace is used.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrEmptyUsername is returned by [Login] for a user without a username.
	ErrEmptyUsername = errors.New("user has no username")
)

const (
	bodyUnauthorized = "unauthorized"
	bodyForbidden    = "forbidden"
	bodyInternal     = "An internal error occurred. Try again later"
)

// StatusCode maps an error to the HTTP status the middleware answers with.
// Unknown errors map to 500.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrUserNotFound):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes the generic response for err. The body never includes err's text.
func WriteError(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	switch code {
	case http.StatusUnauthorized:
		http.Error(w, bodyUnauthorized, code)
	case http.StatusForbidden:
		http.Error(w, bodyForbidden, code)
	default:
		http.Error(w, bodyInternal, http.StatusInternalServerError)
	}
}
