package core

import (
	"context"
	"sync"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	authenticationKey contextKey = iota
	memoKey
)

// WithAuthentication installs auth as the security context of ctx. Passing
// nil clears it.
func WithAuthentication(ctx context.Context, auth *Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey, auth)
}

// ClearAuthentication returns a context with an empty security context.
func ClearAuthentication(ctx context.Context) context.Context {
	return WithAuthentication(ctx, nil)
}

// AuthenticationFrom retrieves the authentication installed in ctx.
func AuthenticationFrom(ctx context.Context) (*Authentication, error) {
	auth, _ := ctx.Value(authenticationKey).(*Authentication)
	if auth == nil {
		return nil, ErrAuthenticationNotFound
	}
	return auth, nil
}

// HasAuthentication checks if an authentication exists in ctx.
func HasAuthentication(ctx context.Context) bool {
	auth, _ := ctx.Value(authenticationKey).(*Authentication)
	return auth != nil
}

// memo records the principal resolved for one request so the token
// validator runs at most once per request.
type memo struct {
	mu        sync.Mutex
	done      bool
	principal string
}

// WithMemo installs a request-local principal memo. It is a no-op when ctx
// already carries one. Without a memo every call to ResolvePrincipal
// re-validates.
func WithMemo(ctx context.Context) context.Context {
	if memoFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, memoKey, &memo{})
}

func memoFrom(ctx context.Context) *memo {
	m, _ := ctx.Value(memoKey).(*memo)
	return m
}
