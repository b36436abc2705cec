package validator

import (
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ValidatedClaims are the claims of a token that passed validation.
type ValidatedClaims struct {
	RegisteredClaims RegisteredClaims
	// Principal is the value of the configured principal claim, or empty
	// when the token does not carry it.
	Principal string
	// Private holds every non-registered claim.
	Private map[string]any
}

// RegisteredClaims represents public claim
// values (as specified in RFC 7519).
type RegisteredClaims struct {
	Issuer    string   `json:"iss,omitempty"`
	Subject   string   `json:"sub,omitempty"`
	Audience  []string `json:"aud,omitempty"`
	Expiry    int64    `json:"exp,omitempty"`
	NotBefore int64    `json:"nbf,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	ID        string   `json:"jti,omitempty"`
}

func registeredClaims(tok jwt.Token) RegisteredClaims {
	rc := RegisteredClaims{
		Issuer:   tok.Issuer(),
		Subject:  tok.Subject(),
		Audience: tok.Audience(),
		ID:       tok.JwtID(),
	}
	if t := tok.Expiration(); !t.IsZero() {
		rc.Expiry = t.Unix()
	}
	if t := tok.NotBefore(); !t.IsZero() {
		rc.NotBefore = t.Unix()
	}
	if t := tok.IssuedAt(); !t.IsZero() {
		rc.IssuedAt = t.Unix()
	}
	return rc
}
