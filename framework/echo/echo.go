// Package oauth2echo adapts an oauth2filter.Filter to Echo.
package oauth2echo

import (
	"github.com/labstack/echo/v4"

	oauth2filter "github.com/oauth2preauth/go-oauth2-filter"
	"github.com/oauth2preauth/go-oauth2-filter/core"
)

var DefaultAuthenticationKey = "oauth2.authentication"

// middlewareConfig holds all configuration for the middleware
type middlewareConfig struct {
	errorHandler func(echo.Context, error)
	contextKey   string
}

// New returns an Echo middleware that pre-authenticates every request with
// f. Redirected and failed requests do not reach next.
func New(f *oauth2filter.Filter, opts ...Option) echo.MiddlewareFunc {
	config := &middlewareConfig{
		errorHandler: defaultErrorHandler,
		contextKey:   DefaultAuthenticationKey,
	}
	for _, opt := range opts {
		opt(config)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res, err := f.Handle(c.Response(), c.Request())
			if err != nil {
				config.errorHandler(c, err)
				return nil
			}
			if res.Redirected {
				return nil
			}

			c.SetRequest(res.Request)
			if res.Authentication != nil {
				c.Set(config.contextKey, res.Authentication)
			}
			return next(c)
		}
	}
}

// Logout returns a handler running f.Logout.
func Logout(f *oauth2filter.Filter) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.SetRequest(f.Logout(c.Response(), c.Request()))
		return nil
	}
}

func defaultErrorHandler(c echo.Context, err error) {
	oauth2filter.DefaultErrorHandler(c.Response(), c.Request(), err)
}

// GetAuthentication extracts the authentication from the Echo context
func GetAuthentication(c echo.Context, contextKey string) (*core.Authentication, bool) {
	v := c.Get(contextKey)
	if v == nil {
		return nil, false
	}

	auth, ok := v.(*core.Authentication)
	return auth, ok
}
