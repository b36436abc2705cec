package oauth2filter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconstructRequestURL(t *testing.T) {
	testCases := []struct {
		name    string
		target  string
		headers map[string]string
		config  *TrustedProxyConfig
		want    string
	}{
		{
			name:   "no proxy config uses the request URL",
			target: "http://backend:8080/api/resource?page=1",
			headers: map[string]string{
				"X-Forwarded-Proto": "https",
				"X-Forwarded-Host":  "app.example",
			},
			want: "http://backend:8080/api/resource?page=1",
		},
		{
			name:   "all flags false ignores forwarded headers",
			target: "http://backend:8080/api/resource",
			headers: map[string]string{
				"X-Forwarded-Proto": "https",
			},
			config: &TrustedProxyConfig{},
			want:   "http://backend:8080/api/resource",
		},
		{
			name:   "trusts X-Forwarded-Proto and X-Forwarded-Host",
			target: "http://backend:8080/api/resource",
			headers: map[string]string{
				"X-Forwarded-Proto": "https",
				"X-Forwarded-Host":  "app.example",
			},
			config: &TrustedProxyConfig{TrustXForwardedProto: true, TrustXForwardedHost: true},
			want:   "https://app.example/api/resource",
		},
		{
			name:   "uses the leftmost value of a proxy chain",
			target: "http://backend/api",
			headers: map[string]string{
				"X-Forwarded-Proto": "https, http",
				"X-Forwarded-Host":  "app.example, proxy.internal",
			},
			config: &TrustedProxyConfig{TrustXForwardedProto: true, TrustXForwardedHost: true},
			want:   "https://app.example/api",
		},
		{
			name:   "adds a trusted path prefix",
			target: "http://backend/users",
			headers: map[string]string{
				"X-Forwarded-Prefix": "api/v1/",
			},
			config: &TrustedProxyConfig{TrustXForwardedPrefix: true},
			want:   "http://backend/api/v1/users",
		},
		{
			name:   "ignores a root prefix",
			target: "http://backend/users",
			headers: map[string]string{
				"X-Forwarded-Prefix": "/",
			},
			config: &TrustedProxyConfig{TrustXForwardedPrefix: true},
			want:   "http://backend/users",
		},
		{
			name:   "Forwarded takes precedence over X-Forwarded-*",
			target: "http://backend/api",
			headers: map[string]string{
				"Forwarded":         `for=192.0.2.60;proto=https;host="app.example"`,
				"X-Forwarded-Proto": "http",
				"X-Forwarded-Host":  "other.example",
			},
			config: &TrustedProxyConfig{TrustForwarded: true, TrustXForwardedProto: true, TrustXForwardedHost: true},
			want:   "https://app.example/api",
		},
		{
			name:   "strips default ports",
			target: "http://backend/api",
			headers: map[string]string{
				"X-Forwarded-Proto": "https",
				"X-Forwarded-Host":  "app.example:443",
			},
			config: &TrustedProxyConfig{TrustXForwardedProto: true, TrustXForwardedHost: true},
			want:   "https://app.example/api",
		},
		{
			name:   "keeps non-default ports of IPv6 hosts",
			target: "http://[::1]:8443/api",
			want:   "http://[::1]:8443/api",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, reconstructRequestURL(req, tc.config))
		})
	}
}

func TestNormalizePort(t *testing.T) {
	assert.Equal(t, "app.example", normalizePort("app.example:80", "http"))
	assert.Equal(t, "app.example:80", normalizePort("app.example:80", "https"))
	assert.Equal(t, "[::1]", normalizePort("[::1]:443", "https"))
	assert.Equal(t, "[::1]", normalizePort("[::1]", "https"))
	assert.Equal(t, "app.example", normalizePort("app.example", "https"))
}

func TestProxyPresets(t *testing.T) {
	testCases := []struct {
		name string
		opt  Option
		want TrustedProxyConfig
	}{
		{
			name: "standard",
			opt:  WithStandardProxy(),
			want: TrustedProxyConfig{TrustXForwardedProto: true, TrustXForwardedHost: true},
		},
		{
			name: "api gateway",
			opt:  WithAPIGatewayProxy(),
			want: TrustedProxyConfig{TrustXForwardedProto: true, TrustXForwardedHost: true, TrustXForwardedPrefix: true},
		},
		{
			name: "rfc 7239",
			opt:  WithRFC7239Proxy(),
			want: TrustedProxyConfig{TrustForwarded: true},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &Filter{}
			assert.NoError(t, tc.opt(f))
			if assert.NotNil(t, f.proxies) {
				assert.Equal(t, tc.want, *f.proxies)
			}
		})
	}
}
