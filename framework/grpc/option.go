package oauth2grpc

import (
	"github.com/oauth2preauth/go-oauth2-filter/core"
)

// Option configures the Interceptor.
type Option func(*Interceptor)

// WithTokenExtractor sets how the token is read from the call metadata.
func WithTokenExtractor(extractor TokenExtractor) Option {
	return func(i *Interceptor) {
		i.tokenExtractor = extractor
	}
}

// WithCredentialsOptional lets calls without a token, or with a token that
// names no principal, through unauthenticated.
func WithCredentialsOptional(optional bool) Option {
	return func(i *Interceptor) {
		i.credentialsOptional = optional
	}
}

// WithExcludedMethods skips authentication for the given full method names.
func WithExcludedMethods(methods ...string) Option {
	methodSet := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		methodSet[m] = struct{}{}
	}
	return WithExclusionChecker(func(method string) bool {
		_, ok := methodSet[method]
		return ok
	})
}

// WithExclusionChecker allows configuring a custom exclusion checker.
func WithExclusionChecker(checker func(method string) bool) Option {
	return func(i *Interceptor) {
		i.exclusionChecker = checker
	}
}

// WithLogger sets an optional logger.
func WithLogger(logger core.Logger) Option {
	return func(i *Interceptor) {
		i.logger = logger
	}
}
