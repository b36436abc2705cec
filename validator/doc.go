/*
Package validator verifies JWT access tokens locally with the lestrrat-go/jwx
library.

A Validator checks the signature against a key set, the registered claims
(exp and nbf always, iss and aud when configured) and reads the principal
from the configured claims. It implements introspect.Inspector, so a filter
can validate self-contained tokens without a round trip to a check-token
endpoint:

	provider, err := jwks.NewCachingProvider(jwks.WithJWKSURI(jwksURL))
	if err != nil {
	    log.Fatal(err)
	}

	v, err := validator.New(
	    validator.WithKeyFunc(provider.KeySet),
	    validator.WithAlgorithm(validator.RS256),
	    validator.WithIssuer("https://auth.example.com/"),
	    validator.WithAudience("my-api"),
	    validator.WithPrincipalClaims("preferred_username", "sub"),
	)
	if err != nil {
	    log.Fatal(err)
	}

	tv, err := introspect.New(
	    introspect.WithConfig(cfg),
	    introspect.WithInspector(v),
	)

Key set failures wrap core.ErrAuthServerUnreachable so that fail-open mode
treats them like an unreachable introspection endpoint. Every other failure
is a *core.ValidationError.
*/
package validator
