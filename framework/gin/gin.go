// Package oauth2gin adapts an oauth2filter.Filter to Gin.
package oauth2gin

import (
	"errors"

	"github.com/gin-gonic/gin"

	oauth2filter "github.com/oauth2preauth/go-oauth2-filter"
	"github.com/oauth2preauth/go-oauth2-filter/core"
)

// DefaultAuthenticationKey is the gin.Context key the authentication is
// stored under.
const DefaultAuthenticationKey = "oauth2.authentication"

var (
	ErrMissingAuthentication = errors.New("no authentication found in context")
	ErrInvalidAuthentication = errors.New("invalid authentication type")
)

type middlewareConfig struct {
	errorHandler func(*gin.Context, error)
	contextKey   string
}

// New returns a Gin middleware that pre-authenticates every request with f.
//
// An authenticated request continues with the authentication in both the
// request context and the gin.Context. A request redirected to the
// authorization server, or one that failed authentication, is aborted.
func New(f *oauth2filter.Filter, opts ...Option) gin.HandlerFunc {
	config := &middlewareConfig{
		errorHandler: defaultErrorHandler,
		contextKey:   DefaultAuthenticationKey,
	}
	for _, opt := range opts {
		opt(config)
	}

	return func(c *gin.Context) {
		res, err := f.Handle(c.Writer, c.Request)
		if err != nil {
			config.errorHandler(c, err)
			c.Abort()
			return
		}
		if res.Redirected {
			c.Abort()
			return
		}

		c.Request = res.Request
		if res.Authentication != nil {
			c.Set(config.contextKey, res.Authentication)
		}
		c.Next()
	}
}

// Logout returns a handler running f.Logout. It answers 204 and aborts the
// chain.
func Logout(f *oauth2filter.Filter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = f.Logout(c.Writer, c.Request)
		c.Abort()
	}
}

func defaultErrorHandler(c *gin.Context, err error) {
	oauth2filter.DefaultErrorHandler(c.Writer, c.Request, err)
}

// GetAuthentication returns the authentication stored by New under
// contextKey, or DefaultAuthenticationKey when contextKey is empty.
func GetAuthentication(c *gin.Context, contextKey string) (*core.Authentication, error) {
	if contextKey == "" {
		contextKey = DefaultAuthenticationKey
	}
	v, exists := c.Get(contextKey)
	if !exists {
		return nil, ErrMissingAuthentication
	}

	auth, ok := v.(*core.Authentication)
	if !ok {
		return nil, ErrInvalidAuthentication
	}
	return auth, nil
}
