package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
)

// WellKnownEndpoints holds the endpoints of an OpenID provider's discovery
// document that the filter can use.
type WellKnownEndpoints struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	IntrospectionEndpoint string `json:"introspection_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// GetWellKnownEndpointsFromIssuerURL fetches the discovery document of
// issuerURL. When expectedIssuer is not empty the document's issuer must
// match it exactly.
func GetWellKnownEndpointsFromIssuerURL(
	ctx context.Context,
	client *http.Client,
	issuerURL url.URL,
	expectedIssuer string,
) (*WellKnownEndpoints, error) {
	issuerURL.Path = path.Join(issuerURL.Path, ".well-known/openid-configuration")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuerURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not build request to get well-known endpoints: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch well-known endpoints from %s: %w", issuerURL.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching well-known endpoints from %s", resp.StatusCode, issuerURL.String())
	}

	var wk WellKnownEndpoints
	if err := json.NewDecoder(resp.Body).Decode(&wk); err != nil {
		return nil, fmt.Errorf("failed to decode JSON from well-known endpoints: %w", err)
	}

	if wk.Issuer == "" {
		return nil, fmt.Errorf("discovery document is missing required 'issuer' field")
	}
	if expectedIssuer != "" && wk.Issuer != expectedIssuer {
		return nil, fmt.Errorf("issuer mismatch: expected %q, discovery document has %q", expectedIssuer, wk.Issuer)
	}

	return &wk, nil
}
