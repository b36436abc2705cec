package oauth2gin

import (
	"github.com/gin-gonic/gin"
)

// Option defines a functional option for configuring the middleware
type Option func(*middlewareConfig)

// WithErrorHandler sets a custom error handler for the middleware
func WithErrorHandler(handler func(*gin.Context, error)) Option {
	return func(config *middlewareConfig) {
		config.errorHandler = handler
	}
}

// WithContextKey sets the gin.Context key the authentication is stored under
func WithContextKey(key string) Option {
	return func(config *middlewareConfig) {
		config.contextKey = key
	}
}
