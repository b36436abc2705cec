package oauth2filter

import (
	"fmt"
	"net/http"
	"strings"
)

// AccessTokenParam is the request parameter a token may be supplied in.
const AccessTokenParam = "access_token"

// TokenExtractor returns the access token supplied with a request. A request
// without a token yields an empty string and no error; an error means a
// token was present but malformed.
type TokenExtractor func(r *http.Request) (string, error)

// DefaultTokenExtractor reads the access_token parameter, then a Bearer
// Authorization header.
var DefaultTokenExtractor = MultiTokenExtractor(
	ParameterTokenExtractor(AccessTokenParam),
	AuthHeaderTokenExtractor,
)

// AuthHeaderTokenExtractor reads a Bearer token from the Authorization
// header. Other schemes are ignored.
func AuthHeaderTokenExtractor(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", nil
	}

	parts := strings.Fields(authHeader)
	if len(parts) == 0 || !strings.EqualFold(parts[0], "bearer") {
		return "", nil
	}
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: Authorization header format must be Bearer {token}", ErrTokenMalformed)
	}
	return parts[1], nil
}

// ParameterTokenExtractor reads the token from the query string parameter
// param, or from the form body of a POST.
func ParameterTokenExtractor(param string) TokenExtractor {
	return func(r *http.Request) (string, error) {
		if v := r.URL.Query().Get(param); v != "" {
			return v, nil
		}
		if r.Method == http.MethodPost &&
			strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
			return r.PostFormValue(param), nil
		}
		return "", nil
	}
}

// CookieTokenExtractor reads the token from the cookie cookieName.
func CookieTokenExtractor(cookieName string) TokenExtractor {
	return func(r *http.Request) (string, error) {
		cookie, err := r.Cookie(cookieName)
		if err != nil {
			return "", nil
		}
		return cookie.Value, nil
	}
}

// MultiTokenExtractor runs extractors in order and returns the first
// non-empty token. An error stops the chain.
func MultiTokenExtractor(extractors ...TokenExtractor) TokenExtractor {
	return func(r *http.Request) (string, error) {
		for _, ex := range extractors {
			token, err := ex(r)
			if err != nil {
				return "", err
			}
			if token != "" {
				return token, nil
			}
		}
		return "", nil
	}
}
