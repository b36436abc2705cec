/*
Package jwks fetches and caches JSON Web Key Sets for local JWT validation.

A CachingProvider resolves its JWKS URI either from configuration or from
the issuer's .well-known/openid-configuration, fetches the key set with
lestrrat-go/jwx and keeps it in a ttlcache. The TTL comes from the
response's Cache-Control max-age when present and WithCacheTTL otherwise.

	provider, err := jwks.NewCachingProvider(
	    jwks.WithIssuerURL(issuerURL),
	    jwks.WithCacheTTL(5*time.Minute),
	)
	if err != nil {
	    log.Fatal(err)
	}

	v, err := validator.New(validator.WithKeyFunc(provider.KeySet))
*/
package jwks
