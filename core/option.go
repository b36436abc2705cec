package core

import (
	"errors"

	"github.com/oauth2preauth/go-oauth2-filter/usergroup"
)

// Option is a function that configures the Core.
// Options return errors to enable validation during construction.
type Option func(*Core) error

// New creates a new Core instance with the provided options.
//
// The Core must be configured with at least a TokenValidator using
// WithValidator. Without a RoleResolver principals only receive
// RoleAuthenticated.
//
// Example:
//
//	c, err := core.New(
//	    core.WithValidator(introspector),
//	    core.WithRoleResolver(rolesource.Static("ROLE_USER")),
//	    core.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
func New(opts ...Option) (*Core, error) {
	c := &Core{
		rootUsername: DefaultRootUsername,
		failOpen:     false, // Secure default: validation failures fail the request
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// validate ensures all required fields are set.
func (c *Core) validate() error {
	if c.validator == nil {
		return NewValidationError(
			ErrorCodeValidatorNotSet,
			"validator is required but not set (use WithValidator option)",
			nil,
		)
	}
	return nil
}

// WithValidator sets the token validator. This is a required option.
func WithValidator(validator TokenValidator) Option {
	return func(c *Core) error {
		if validator == nil {
			return errors.New("validator cannot be nil")
		}
		c.validator = validator
		return nil
	}
}

// WithRoleResolver sets the role source consulted for non-root principals.
func WithRoleResolver(resolver RoleResolver) Option {
	return func(c *Core) error {
		if resolver == nil {
			return errors.New("role resolver cannot be nil")
		}
		c.roles = resolver
		return nil
	}
}

// WithUserGroupService enables the disabled-user check: a principal whose
// user record is disabled is treated as no principal.
func WithUserGroupService(svc usergroup.Service) Option {
	return func(c *Core) error {
		if svc == nil {
			return errors.New("user-group service cannot be nil")
		}
		c.users = svc
		return nil
	}
}

// WithDisabledUserHandler sets the hook invoked once per request whose
// principal belongs to a disabled user.
func WithDisabledUserHandler(h DisabledUserHandler) Option {
	return func(c *Core) error {
		if h == nil {
			return errors.New("disabled user handler cannot be nil")
		}
		c.onDisabled = h
		return nil
	}
}

// WithRootUsername overrides the root identity (default "admin").
func WithRootUsername(name string) Option {
	return func(c *Core) error {
		if name == "" {
			return errors.New("root username cannot be empty")
		}
		c.rootUsername = name
		return nil
	}
}

// WithFailOpen configures how I/O failures talking to the authorization
// server are handled.
//
// When set to true, such failures leave the request unauthenticated and the
// chain continues. When set to false (default), they fail the request.
// Rejected or inactive tokens always fail the request.
func WithFailOpen(failOpen bool) Option {
	return func(c *Core) error {
		c.failOpen = failOpen
		return nil
	}
}

// WithLogger sets an optional logger for the Core.
func WithLogger(logger Logger) Option {
	return func(c *Core) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}
