package oauth2filter

import (
	"errors"
	"net/http"

	"github.com/oauth2preauth/go-oauth2-filter/core"
)

var (
	// ErrConfigNil is returned by New when no configuration was given.
	ErrConfigNil = errors.New("filter configuration is required (use WithConfig)")

	// ErrTokenMalformed is returned when a token was supplied in a shape the
	// TokenExtractor could not read.
	ErrTokenMalformed = errors.New("supplied access token is malformed")
)

// ErrorHandler is called when authenticating a request fails. The filter
// writes nothing itself on failure, so the handler owns the response.
//
// The err can be checked with errors.Is against core.ErrValidationFailed,
// core.ErrAuthServerUnreachable, core.ErrRoleSourceUnavailable and
// ErrTokenMalformed.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// DefaultErrorHandler is used when no ErrorHandler is configured. It
// responds with JSON:
//   - 503 when the authorization server or the role source is unavailable,
//   - 401 when the token failed validation or was malformed,
//   - 500 for anything else.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case core.IsUnreachable(err), errors.Is(err, core.ErrRoleSourceUnavailable):
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"Authentication is temporarily unavailable."}`))
	case errors.Is(err, core.ErrValidationFailed), errors.Is(err, ErrTokenMalformed):
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Access token is invalid."}`))
	default:
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"Something went wrong while authenticating the request."}`))
	}
}
