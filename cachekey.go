package oauth2filter

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// TokenCacheKey is the authentication cache key of a supplied token: its
// hex SHA-256 digest, so raw tokens never become map keys.
func TokenCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CacheKey returns the authentication cache key of r, or "" when r is not
// cacheable. Only requests supplying a token without a session cookie are
// cacheable; session-bound requests carry state a cache entry cannot
// reflect. Headers the roles depend on (see WithCacheVaryHeaders) are part
// of the key.
func (f *Filter) CacheKey(r *http.Request) string {
	token, err := f.extractor(r)
	if err != nil {
		return ""
	}
	return f.cacheKey(r, token)
}

func (f *Filter) cacheKey(r *http.Request, token string) string {
	if token == "" {
		return ""
	}
	if _, err := r.Cookie(f.cfg.SessionCookieName); err == nil {
		return ""
	}

	var vary []string
	for _, name := range f.cacheVary {
		if values := r.Header.Values(name); len(values) > 0 {
			vary = append(vary, name+":"+strings.Join(values, ","))
		}
	}
	if len(vary) == 0 {
		return TokenCacheKey(token)
	}
	return TokenCacheKey(token + "\n" + strings.Join(vary, "\n"))
}
