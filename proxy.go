package oauth2filter

import (
	"net/http"
	"strings"
)

// TrustedProxyConfig defines which reverse proxy headers to trust when
// reconstructing the URL a browser originally requested. The URL is
// preserved in the redirect state so the user can be sent back to it after
// authorization.
//
// Only enable headers your reverse proxy sets and strips from client input.
// A nil config trusts no headers.
type TrustedProxyConfig struct {
	// TrustXForwardedProto enables X-Forwarded-Proto (original scheme).
	TrustXForwardedProto bool

	// TrustXForwardedHost enables X-Forwarded-Host (original host).
	TrustXForwardedHost bool

	// TrustXForwardedPrefix enables X-Forwarded-Prefix (gateway path prefix).
	TrustXForwardedPrefix bool

	// TrustForwarded enables the RFC 7239 Forwarded header. It takes
	// precedence over X-Forwarded-Proto and X-Forwarded-Host.
	TrustForwarded bool
}

func (c *TrustedProxyConfig) trustsAny() bool {
	return c != nil &&
		(c.TrustXForwardedProto || c.TrustXForwardedHost || c.TrustXForwardedPrefix || c.TrustForwarded)
}

// WithTrustedProxies configures trusted proxy headers for URL reconstruction.
//
// Example:
//
//	f, err := oauth2filter.New(
//	    oauth2filter.WithConfig(cfg),
//	    oauth2filter.WithTrustedProxies(&oauth2filter.TrustedProxyConfig{
//	        TrustXForwardedProto: true,
//	        TrustXForwardedHost:  true,
//	    }),
//	)
func WithTrustedProxies(config *TrustedProxyConfig) Option {
	return func(f *Filter) error {
		f.proxies = config
		return nil
	}
}

// WithStandardProxy trusts X-Forwarded-Proto and X-Forwarded-Host, as set by
// Nginx, Apache or HAProxy.
func WithStandardProxy() Option {
	return WithTrustedProxies(&TrustedProxyConfig{
		TrustXForwardedProto: true,
		TrustXForwardedHost:  true,
	})
}

// WithAPIGatewayProxy additionally trusts X-Forwarded-Prefix for gateways
// that mount the application under a path prefix.
func WithAPIGatewayProxy() Option {
	return WithTrustedProxies(&TrustedProxyConfig{
		TrustXForwardedProto:  true,
		TrustXForwardedHost:   true,
		TrustXForwardedPrefix: true,
	})
}

// WithRFC7239Proxy trusts only the structured Forwarded header.
func WithRFC7239Proxy() Option {
	return WithTrustedProxies(&TrustedProxyConfig{TrustForwarded: true})
}

// reconstructRequestURL returns the absolute URL of r as the client saw it.
// Default ports are dropped (RFC 3986 section 6.2.3).
func reconstructRequestURL(r *http.Request, config *TrustedProxyConfig) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	host := r.Host
	prefix := ""

	if config.trustsAny() {
		var fwdScheme, fwdHost string
		if config.TrustForwarded {
			fwdScheme, fwdHost = parseForwardedHeader(r.Header.Get("Forwarded"))
		}

		switch {
		case fwdScheme != "":
			scheme = fwdScheme
		case config.TrustXForwardedProto && r.Header.Get("X-Forwarded-Proto") != "":
			scheme = leftmost(r.Header.Get("X-Forwarded-Proto"))
		}

		switch {
		case fwdHost != "":
			host = fwdHost
		case config.TrustXForwardedHost && r.Header.Get("X-Forwarded-Host") != "":
			host = leftmost(r.Header.Get("X-Forwarded-Host"))
		}

		if config.TrustXForwardedPrefix {
			if p := strings.Trim(leftmost(r.Header.Get("X-Forwarded-Prefix")), "/"); p != "" {
				prefix = "/" + p
			}
		}
	}

	u := scheme + "://" + normalizePort(host, scheme) + prefix + r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		u += "?" + r.URL.RawQuery
	}
	return u
}

// leftmost returns the value closest to the client in a comma-separated
// proxy chain.
func leftmost(header string) string {
	first, _, _ := strings.Cut(header, ",")
	return strings.TrimSpace(first)
}

// parseForwardedHeader reads proto and host from the first element of an
// RFC 7239 Forwarded header, e.g. "for=192.0.2.60;proto=https;host=app.example".
func parseForwardedHeader(forwarded string) (scheme, host string) {
	if forwarded == "" {
		return "", ""
	}
	for _, pair := range strings.Split(leftmost(forwarded), ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		v = strings.Trim(v, `"`)
		switch strings.ToLower(k) {
		case "proto":
			scheme = v
		case "host":
			host = v
		}
	}
	return scheme, host
}

// normalizePort strips the default port of scheme from host.
func normalizePort(host, scheme string) string {
	i := strings.LastIndex(host, ":")
	if i == -1 || strings.LastIndex(host, "]") > i {
		return host
	}
	port := host[i+1:]
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		return host[:i]
	}
	return host
}
