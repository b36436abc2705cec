package core

import (
	"strings"
	"time"
)

// TokenTypeBearer is the OAuth2 bearer token type.
const TokenTypeBearer = "Bearer"

// AccessToken is an OAuth2 access token held on behalf of a client.
type AccessToken struct {
	Value  string
	Type   string
	Expiry time.Time
}

// NewBearerToken wraps a raw token value supplied with a request.
func NewBearerToken(value string) *AccessToken {
	return &AccessToken{Value: value, Type: TokenTypeBearer}
}

// IsBearer reports whether the token is a bearer token. An empty type counts
// as bearer, the OAuth2 default.
func (t *AccessToken) IsBearer() bool {
	if t == nil {
		return false
	}
	return t.Type == "" || strings.EqualFold(t.Type, TokenTypeBearer)
}

// Expired reports whether the token has a known expiry at or before now.
func (t *AccessToken) Expired(now time.Time) bool {
	if t == nil || t.Expiry.IsZero() {
		return false
	}
	return !now.Before(t.Expiry)
}

// RedirectState is the pending authorization-redirect state of a client. It
// exists between the redirect to the authorization server and the callback
// carrying the authorization code.
type RedirectState struct {
	StateKey     string
	PreservedURL string
	CreatedAt    time.Time
}

// ClientContext holds the OAuth2 client state across requests of one user
// session: the current access token and any pending redirect state.
//
// Implementations are not required to be safe for concurrent use; each
// request works on its own ClientContext value.
type ClientContext interface {
	AccessToken() *AccessToken
	SetAccessToken(token *AccessToken)
	RedirectState() *RedirectState
	SetRedirectState(state *RedirectState)
	// RemoveRedirectState drops the pending redirect state when its key
	// matches stateKey. An empty stateKey removes any pending state.
	RemoveRedirectState(stateKey string)
}
