package validator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Option is how options for the Validator are set up.
// Options return errors to enable validation during construction.
type Option func(*Validator) error

// New sets up a Validator. WithKeyFunc or WithKeySet is required.
//
// Example:
//
//	provider, err := jwks.NewCachingProvider(jwks.WithIssuerURL(issuerURL))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	v, err := validator.New(
//	    validator.WithKeyFunc(provider.KeySet),
//	    validator.WithIssuer(issuerURL.String()),
//	    validator.WithAudience("my-api"),
//	)
func New(opts ...Option) (*Validator, error) {
	v := &Validator{
		principalClaims: DefaultPrincipalClaims,
		now:             time.Now,
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if v.keyFunc == nil {
		return nil, errors.New("keyFunc is required (use WithKeyFunc or WithKeySet)")
	}
	return v, nil
}

// WithKeyFunc sets the function that provides the verification keys.
// For JWKS-based validation, use jwks.CachingProvider.KeySet.
func WithKeyFunc(keyFunc KeyFunc) Option {
	return func(v *Validator) error {
		if keyFunc == nil {
			return errors.New("keyFunc cannot be nil")
		}
		v.keyFunc = keyFunc
		return nil
	}
}

// WithKeySet verifies tokens against a fixed key set.
func WithKeySet(set jwk.Set) Option {
	return func(v *Validator) error {
		if set == nil {
			return errors.New("key set cannot be nil")
		}
		v.keyFunc = func(context.Context) (jwk.Set, error) { return set, nil }
		return nil
	}
}

// WithAlgorithm restricts tokens to one signature algorithm.
//
// Supported algorithms: RS256, RS384, RS512, ES256, ES384, ES512,
// PS256, PS384, PS512, HS256, HS384, HS512, EdDSA.
func WithAlgorithm(algorithm jwa.SignatureAlgorithm) Option {
	return func(v *Validator) error {
		if !allowedSigningAlgorithms[algorithm] {
			return fmt.Errorf("unsupported signature algorithm: %s", algorithm)
		}
		v.algorithm = algorithm
		return nil
	}
}

// WithIssuer sets the expected issuer claim (iss).
func WithIssuer(issuerURL string) Option {
	return func(v *Validator) error {
		if issuerURL == "" {
			return errors.New("issuer cannot be empty")
		}
		if _, err := url.Parse(issuerURL); err != nil {
			return fmt.Errorf("invalid issuer URL: %w", err)
		}
		v.issuer = issuerURL
		return nil
	}
}

// WithAudience sets the accepted audiences. A token is accepted when its aud
// claim names at least one of them.
func WithAudience(audiences ...string) Option {
	return func(v *Validator) error {
		if len(audiences) == 0 {
			return errors.New("audience cannot be empty")
		}
		for _, aud := range audiences {
			if aud == "" {
				return errors.New("audience cannot contain empty strings")
			}
		}
		v.audiences = audiences
		return nil
	}
}

// WithAllowedClockSkew tolerates clock differences when checking exp, nbf
// and iat.
func WithAllowedClockSkew(skew time.Duration) Option {
	return func(v *Validator) error {
		if skew < 0 {
			return errors.New("clock skew cannot be negative")
		}
		v.skew = skew
		return nil
	}
}

// WithPrincipalClaims sets the claims searched, in order, for the principal.
// Default: "sub".
func WithPrincipalClaims(claims ...string) Option {
	return func(v *Validator) error {
		if len(claims) == 0 {
			return errors.New("principal claims cannot be empty")
		}
		v.principalClaims = claims
		return nil
	}
}

// WithClock overrides time.Now for time-based claims.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		v.now = now
		return nil
	}
}
