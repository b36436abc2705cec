package jwks

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Option is how options for the CachingProvider are set up.
type Option func(*CachingProvider) error

// WithIssuerURL sets the issuer whose discovery document names the JWKS URI.
func WithIssuerURL(issuerURL *url.URL) Option {
	return func(p *CachingProvider) error {
		if issuerURL == nil {
			return errors.New("issuer URL cannot be nil")
		}
		p.issuerURL = issuerURL
		return nil
	}
}

// WithJWKSURI fetches keys from jwksURI directly, skipping discovery.
func WithJWKSURI(jwksURI string) Option {
	return func(p *CachingProvider) error {
		u, err := url.Parse(jwksURI)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("JWKS URI must be an absolute URL: %q", jwksURI)
		}
		p.jwksURI = jwksURI
		return nil
	}
}

// WithCustomClient sets the HTTP client used for discovery and key fetches.
// If not specified, a default client with 30s timeout is used.
func WithCustomClient(c *http.Client) Option {
	return func(p *CachingProvider) error {
		if c == nil {
			return errors.New("HTTP client cannot be nil")
		}
		p.client = c
		return nil
	}
}

// WithCacheTTL sets how long a key set is cached when the JWKS response has
// no Cache-Control max-age. Default: 15 minutes.
func WithCacheTTL(ttl time.Duration) Option {
	return func(p *CachingProvider) error {
		if ttl <= 0 {
			return errors.New("cache TTL must be positive")
		}
		p.ttl = ttl
		return nil
	}
}
