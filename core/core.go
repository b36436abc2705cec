package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oauth2preauth/go-oauth2-filter/usergroup"
)

// TokenValidator drives the OAuth2 flow for one client context: it acquires
// a token (exchanging an authorization code when one was delivered),
// validates it and resolves the principal it belongs to.
type TokenValidator interface {
	AttemptAuthentication(ctx context.Context, req ValidationRequest) Result
}

// ValidationRequest is the input of TokenValidator.AttemptAuthentication.
// Code and State are only set on the authorization callback.
type ValidationRequest struct {
	Client ClientContext
	Code   string
	State  string
}

// RoleResolver maps a principal to role names.
type RoleResolver interface {
	ResolveRoles(ctx context.Context, principal string, details Details) ([]string, error)
}

// RoleResolverFunc adapts a function to RoleResolver.
type RoleResolverFunc func(ctx context.Context, principal string, details Details) ([]string, error)

// ResolveRoles implements RoleResolver.
func (f RoleResolverFunc) ResolveRoles(ctx context.Context, principal string, details Details) ([]string, error) {
	return f(ctx, principal, details)
}

// DisabledUserHandler is notified when a resolved principal belongs to a
// disabled user.
type DisabledUserHandler func(ctx context.Context, user *usergroup.User)

// Logger defines an optional logging interface for the core.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Attempt is one authentication attempt for one request.
type Attempt struct {
	// Client is the request's client context. Required.
	Client ClientContext
	// SuppliedToken is a raw access token supplied with the request. It is
	// adopted only when Client holds no token.
	SuppliedToken string
	// Code and State are the authorization callback parameters, if any.
	Code  string
	State string
	// Details describe the request and end up in the Authentication.
	Details Details
}

// Outcome is the result of Authenticate. At most one of Authentication and
// RedirectRequired is set; neither means the request stays unauthenticated.
type Outcome struct {
	Authentication   *Authentication
	RedirectRequired bool
}

// Core is the framework-agnostic pre-authentication engine.
type Core struct {
	validator    TokenValidator
	roles        RoleResolver
	users        usergroup.Service
	onDisabled   DisabledUserHandler
	rootUsername string
	failOpen     bool
	logger       Logger
}

// IsRoot reports whether principal is the root identity.
func (c *Core) IsRoot(principal string) bool {
	return principal == c.rootUsername
}

// RootUsername returns the root identity.
func (c *Core) RootUsername() string { return c.rootUsername }

// ResolvePrincipal returns the pre-authenticated principal of the request.
//
// The result is memoized in the request memo (see WithMemo): once resolved,
// later calls return the same principal without contacting the validator
// again. redirect is true only on the call that asked for the redirect.
// Errors are not memoized.
func (c *Core) ResolvePrincipal(ctx context.Context, a Attempt) (principal string, redirect bool, err error) {
	m := memoFrom(ctx)
	if m != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.done {
			return m.principal, false, nil
		}
	}

	principal, redirect, err = c.resolve(ctx, a)
	if err != nil {
		return "", false, err
	}

	if m != nil {
		m.done = true
		m.principal = principal
	}
	return principal, redirect, nil
}

func (c *Core) resolve(ctx context.Context, a Attempt) (string, bool, error) {
	if a.Client == nil {
		return "", false, NewValidationError(ErrorCodeClientContextMissing, "no client context for request", nil)
	}

	if a.Client.AccessToken() == nil && a.SuppliedToken != "" {
		a.Client.SetAccessToken(NewBearerToken(a.SuppliedToken))
		if c.logger != nil {
			c.logger.Debug("Adopted access token supplied with request")
		}
	}

	start := time.Now()
	res := c.validator.AttemptAuthentication(ctx, ValidationRequest{
		Client: a.Client,
		Code:   a.Code,
		State:  a.State,
	})
	duration := time.Since(start)

	switch res.Kind() {
	case ResultRedirectRequired:
		if c.logger != nil {
			c.logger.Debug("Authorization redirect required", "duration", duration)
		}
		return "", true, nil

	case ResultFailed:
		err := res.Err()
		if c.failOpen && IsUnreachable(err) {
			if c.logger != nil {
				c.logger.Warn("Authorization server unreachable, continuing unauthenticated", "error", err)
			}
			return "", false, nil
		}
		if c.logger != nil {
			c.logger.Error("Token validation failed", "error", err, "duration", duration)
		}
		return "", false, err

	case ResultResolved:

	default:
		return "", false, NewValidationError(ErrorCodeUnknownResult, "validator returned no result", nil)
	}

	principal := strings.TrimSpace(res.Principal())
	if principal == "" {
		if c.logger != nil {
			c.logger.Debug("Token validated without a principal", "duration", duration)
		}
		return "", false, nil
	}

	if c.users != nil {
		user, err := c.users.GetUserByUsername(ctx, principal)
		if err != nil {
			return "", false, fmt.Errorf("%w: %w", ErrUserLookupFailed, err)
		}
		if user != nil && !user.Enabled {
			if c.logger != nil {
				c.logger.Info("Rejected disabled user", "principal", principal)
			}
			if c.onDisabled != nil {
				c.onDisabled(ctx, user)
			}
			return "", false, nil
		}
	}

	if c.logger != nil {
		c.logger.Debug("Principal resolved", "principal", principal, "duration", duration)
	}
	return principal, false, nil
}

// Authenticate runs the full sequence: resolve the principal, then grant
// roles. The root identity gets exactly RoleAdministrator and skips the role
// source; every other principal gets the resolved roles plus
// RoleAuthenticated.
func (c *Core) Authenticate(ctx context.Context, a Attempt) (Outcome, error) {
	principal, redirect, err := c.ResolvePrincipal(ctx, a)
	if err != nil {
		return Outcome{}, err
	}
	if redirect {
		return Outcome{RedirectRequired: true}, nil
	}
	if principal == "" {
		return Outcome{}, nil
	}

	roles, err := c.grant(ctx, principal, a.Details)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Authentication: NewAuthentication(principal, roles, a.Details)}, nil
}

func (c *Core) grant(ctx context.Context, principal string, details Details) (RoleSet, error) {
	if c.IsRoot(principal) {
		return NewRoleSet(RoleAdministrator), nil
	}

	var roles RoleSet
	if c.roles != nil {
		resolved, err := c.roles.ResolveRoles(ctx, principal, details)
		if err != nil {
			if c.logger != nil {
				c.logger.Error("Role resolution failed", "principal", principal, "error", err)
			}
			return RoleSet{}, fmt.Errorf("%w: %w", ErrRoleSourceUnavailable, err)
		}
		roles = NewRoleSet(resolved...)
	}
	roles.Add(RoleAuthenticated)
	return roles, nil
}
