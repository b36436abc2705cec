package jwks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/sync/singleflight"

	"github.com/oauth2preauth/go-oauth2-filter/internal/oidc"
)

// DefaultCacheTTL is how long a key set is cached when the JWKS response
// carries no usable Cache-Control max-age.
const DefaultCacheTTL = 15 * time.Minute

const maxJWKSSize = 1 << 20

// CachingProvider fetches a JSON Web Key Set and caches it.
//
// The JWKS URI is either configured directly or discovered once from the
// issuer's .well-known/openid-configuration. Concurrent misses for the same
// URI share one fetch.
type CachingProvider struct {
	issuerURL *url.URL
	client    *http.Client
	ttl       time.Duration

	uriMu   sync.Mutex
	jwksURI string

	cache *ttlcache.Cache[string, jwk.Set]
	group singleflight.Group
}

// NewCachingProvider builds a CachingProvider. Either WithIssuerURL or
// WithJWKSURI is required.
//
//	provider, err := jwks.NewCachingProvider(
//	    jwks.WithIssuerURL(issuerURL),
//	    jwks.WithCacheTTL(5*time.Minute),
//	)
func NewCachingProvider(opts ...Option) (*CachingProvider, error) {
	p := &CachingProvider{
		client: &http.Client{Timeout: 30 * time.Second},
		ttl:    DefaultCacheTTL,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if p.issuerURL == nil && p.jwksURI == "" {
		return nil, fmt.Errorf("issuer URL or JWKS URI is required (use WithIssuerURL or WithJWKSURI)")
	}

	p.cache = ttlcache.New[string, jwk.Set](
		ttlcache.WithTTL[string, jwk.Set](p.ttl),
		ttlcache.WithDisableTouchOnHit[string, jwk.Set](),
	)
	return p, nil
}

// KeySet returns the cached key set, fetching it when missing or expired.
// It matches validator.KeyFunc.
func (p *CachingProvider) KeySet(ctx context.Context) (jwk.Set, error) {
	uri, err := p.uri(ctx)
	if err != nil {
		return nil, err
	}

	if item := p.cache.Get(uri); item != nil {
		return item.Value(), nil
	}

	v, err, _ := p.group.Do(uri, func() (any, error) {
		set, ttl, err := p.fetch(ctx, uri)
		if err != nil {
			return nil, err
		}
		if ttl == 0 {
			ttl = ttlcache.DefaultTTL
		}
		p.cache.Set(uri, set, ttl)
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(jwk.Set), nil
}

// Invalidate drops the cached key set so the next KeySet call refetches it.
func (p *CachingProvider) Invalidate() {
	p.cache.DeleteAll()
}

// uri returns the JWKS URI, discovering it on first use. Failed discoveries
// are retried on the next call.
func (p *CachingProvider) uri(ctx context.Context) (string, error) {
	p.uriMu.Lock()
	defer p.uriMu.Unlock()

	if p.jwksURI != "" {
		return p.jwksURI, nil
	}

	wk, err := oidc.GetWellKnownEndpointsFromIssuerURL(ctx, p.client, *p.issuerURL, p.issuerURL.String())
	if err != nil {
		return "", fmt.Errorf("failed to discover JWKS URI: %w", err)
	}
	if wk.JWKSURI == "" {
		return "", fmt.Errorf("discovery document of %s has no jwks_uri", p.issuerURL)
	}
	p.jwksURI = wk.JWKSURI
	return p.jwksURI, nil
}

// fetch downloads the key set and the TTL its Cache-Control header asks
// for, or 0 when there is none.
func (p *CachingProvider) fetch(ctx context.Context, uri string) (jwk.Set, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("GET %s returned status %d, expected 200", uri, resp.StatusCode)
	}

	set, err := jwk.ParseReader(io.LimitReader(resp.Body, maxJWKSSize))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	return set, parseCacheControl(resp.Header.Get("Cache-Control")), nil
}

// parseCacheControl extracts max-age from a Cache-Control header. Values
// outside [1s, 7d] are ignored.
func parseCacheControl(cacheControl string) time.Duration {
	const (
		maxAgePrefix = "max-age="
		minTTL       = time.Second
		maxTTL       = 7 * 24 * time.Hour
	)

	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if !strings.HasPrefix(directive, maxAgePrefix) {
			continue
		}
		seconds, err := strconv.ParseInt(strings.TrimPrefix(directive, maxAgePrefix), 10, 64)
		if err != nil || seconds <= 0 {
			continue
		}
		ttl := time.Duration(seconds) * time.Second
		if ttl < minTTL || ttl > maxTTL {
			return 0
		}
		return ttl
	}
	return 0
}
