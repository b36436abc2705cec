/*
Package oidc provides OpenID Connect discovery.

It fetches the .well-known/openid-configuration document of an issuer so the
filter configuration can be completed from it: authorization and token
endpoints, the introspection endpoint, the end-session endpoint used for
logout, and the JWKS URI used by local JWT validation.

	issuerURL, _ := url.Parse("https://auth.example.com/")
	client := &http.Client{Timeout: 10 * time.Second}

	endpoints, err := oidc.GetWellKnownEndpointsFromIssuerURL(ctx, client, *issuerURL, "https://auth.example.com/")
	if err != nil {
	    return err
	}

The issuer in the document must match the expected issuer exactly; an empty
expected issuer only requires the field to be present.
*/
package oidc
