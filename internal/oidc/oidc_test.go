package oidc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// setupTestServer creates a test HTTP server that returns the specified response code and body.
func setupTestServer(responseCode int, responseBody string, headers map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		for key, value := range headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(responseCode)
		_, _ = w.Write([]byte(responseBody))
	}))
}

const fullDocument = `{
	"issuer": "https://auth.example.com/",
	"authorization_endpoint": "https://auth.example.com/oauth/authorize",
	"token_endpoint": "https://auth.example.com/oauth/token",
	"introspection_endpoint": "https://auth.example.com/oauth/introspect",
	"end_session_endpoint": "https://auth.example.com/logout",
	"jwks_uri": "https://auth.example.com/.well-known/jwks.json"
}`

func TestGetWellKnownEndpointsFromIssuerURL(t *testing.T) {
	tests := []struct {
		name           string
		responseCode   int
		responseBody   string
		expectedIssuer string
		errorContains  string
	}{
		{
			name:           "full document",
			responseCode:   http.StatusOK,
			responseBody:   fullDocument,
			expectedIssuer: "https://auth.example.com/",
		},
		{
			name:         "no expected issuer",
			responseCode: http.StatusOK,
			responseBody: fullDocument,
		},
		{
			name:          "404 Not Found response",
			responseCode:  http.StatusNotFound,
			responseBody:  `{"error": "not found"}`,
			errorContains: "unexpected status 404",
		},
		{
			name:          "500 Internal Server Error response",
			responseCode:  http.StatusInternalServerError,
			responseBody:  `Internal Server Error`,
			errorContains: "unexpected status 500",
		},
		{
			name:          "Malformed JSON response",
			responseCode:  http.StatusOK,
			responseBody:  `{"issuer": "https://auth.example.com/"`,
			errorContains: "failed to decode JSON",
		},
		{
			name:          "Empty response",
			responseCode:  http.StatusOK,
			responseBody:  ``,
			errorContains: "failed to decode JSON",
		},
		{
			name:          "missing issuer",
			responseCode:  http.StatusOK,
			responseBody:  `{"token_endpoint":"https://auth.example.com/oauth/token"}`,
			errorContains: "missing required 'issuer' field",
		},
		{
			name:           "issuer mismatch",
			responseCode:   http.StatusOK,
			responseBody:   `{"issuer":"https://attacker.example/"}`,
			expectedIssuer: "https://auth.example.com/",
			errorContains:  "issuer mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestServer(tt.responseCode, tt.responseBody, map[string]string{"Content-Type": "application/json"})
			defer server.Close()

			issuerURL, _ := url.Parse(server.URL)
			endpoints, err := GetWellKnownEndpointsFromIssuerURL(context.Background(), server.Client(), *issuerURL, tt.expectedIssuer)

			if tt.errorContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorContains) {
					t.Fatalf("expected error containing %q, got %v", tt.errorContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if endpoints.TokenEndpoint != "https://auth.example.com/oauth/token" {
				t.Errorf("unexpected token endpoint %q", endpoints.TokenEndpoint)
			}
			if endpoints.IntrospectionEndpoint != "https://auth.example.com/oauth/introspect" {
				t.Errorf("unexpected introspection endpoint %q", endpoints.IntrospectionEndpoint)
			}
			if endpoints.EndSessionEndpoint != "https://auth.example.com/logout" {
				t.Errorf("unexpected end session endpoint %q", endpoints.EndSessionEndpoint)
			}
		})
	}
}

func TestGetWellKnownEndpoints_IssuerPath(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"issuer":"x"}`))
	}))
	defer server.Close()

	issuerURL, _ := url.Parse(server.URL + "/realms/main")
	if _, err := GetWellKnownEndpointsFromIssuerURL(context.Background(), server.Client(), *issuerURL, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/realms/main/.well-known/openid-configuration" {
		t.Errorf("unexpected discovery path %q", gotPath)
	}
}

func TestGetWellKnownEndpoints_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	client := &http.Client{Timeout: 50 * time.Millisecond}
	issuerURL, _ := url.Parse(server.URL)
	_, err := GetWellKnownEndpointsFromIssuerURL(context.Background(), client, *issuerURL, "")

	if err == nil || !strings.Contains(err.Error(), "could not fetch well-known endpoints") {
		t.Errorf("expected fetch error, got: %v", err)
	}
}

func TestGetWellKnownEndpoints_InvalidRequest(t *testing.T) {
	invalidURL := url.URL{Scheme: ":", Host: ""}

	_, err := GetWellKnownEndpointsFromIssuerURL(context.Background(), nil, invalidURL, "")

	if err == nil || !strings.Contains(err.Error(), "could not build request to get well-known endpoints") {
		t.Errorf("expected request creation error, got: %v", err)
	}
}
