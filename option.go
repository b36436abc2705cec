package oauth2filter

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/oauth2preauth/go-oauth2-filter/authcache"
	"github.com/oauth2preauth/go-oauth2-filter/config"
	"github.com/oauth2preauth/go-oauth2-filter/core"
	"github.com/oauth2preauth/go-oauth2-filter/introspect"
	"github.com/oauth2preauth/go-oauth2-filter/jwks"
	"github.com/oauth2preauth/go-oauth2-filter/rolesource"
	"github.com/oauth2preauth/go-oauth2-filter/session"
	"github.com/oauth2preauth/go-oauth2-filter/usergroup"
	"github.com/oauth2preauth/go-oauth2-filter/validator"
)

// Option configures the Filter.
// Returns error for validation failures.
type Option func(*Filter) error

// New constructs a Filter. WithConfig is required; everything else has a
// default derived from the configuration:
//
//   - the token validator exchanges codes at tokenUri and inspects tokens at
//     checkTokenEndpoint, or verifies JWTs against jwksUri,
//   - roles come from the configured roleSource, with named services looked
//     up in the WithRegistry registry,
//   - sessions live in memory.
//
// Example:
//
//	cfg, err := config.Load("filter.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	f, err := oauth2filter.New(
//	    oauth2filter.WithConfig(cfg),
//	    oauth2filter.WithRegistry(registry),
//	    oauth2filter.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatalf("failed to create filter: %v", err)
//	}
//	http.Handle("/", f.Middleware(app))
//	http.Handle("/logout", f.HandleLogout())
func New(opts ...Option) (*Filter, error) {
	f := &Filter{now: time.Now}

	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("invalid filter configuration: %w", err)
	}

	f.applyDefaults()

	if err := f.createCore(); err != nil {
		return nil, fmt.Errorf("failed to create core: %w", err)
	}
	return f, nil
}

func (f *Filter) validate() error {
	if f.cfg == nil {
		return ErrConfigNil
	}
	f.cfg.ApplyDefaults()
	return f.cfg.Validate()
}

func (f *Filter) applyDefaults() {
	if f.name == "" {
		f.name = f.cfg.Name
	}
	if f.rootUsername == "" {
		f.rootUsername = f.cfg.RootUsername
	}
	f.callbackPath = f.cfg.RedirectPath()
	if f.callbackPath == "" {
		f.callbackPath = "/"
	}
	if f.sessions == nil {
		f.sessions = session.NewMemoryStore()
	}
	if f.extractor == nil {
		f.extractor = DefaultTokenExtractor
	}
	if f.errorHandler == nil {
		f.errorHandler = DefaultErrorHandler
	}
	if f.tracer == nil {
		f.tracer = NoopTracer{}
	}
	if f.metrics == nil {
		f.metrics = NoopMetrics{}
	}
}

func (f *Filter) createCore() error {
	if f.validator == nil {
		v, err := f.defaultValidator()
		if err != nil {
			return err
		}
		f.validator = v
	}
	if f.roles == nil {
		roles, err := rolesource.FromConfig(f.cfg, f.registry)
		if err != nil {
			return err
		}
		f.roles = roles
		if f.cfg.RoleSource == config.RoleSourceHeader {
			f.cacheVary = append(f.cacheVary, f.cfg.RolesHeader)
		}
	}

	coreOpts := []core.Option{
		core.WithValidator(f.validator),
		core.WithRoleResolver(f.roles),
		core.WithRootUsername(f.rootUsername),
		core.WithFailOpen(f.failOpen),
	}
	if f.cfg.RoleSource == config.RoleSourceUserGroupService && f.registry != nil {
		users, err := f.registry.UserGroupService(f.cfg.UserGroupServiceName)
		if err != nil {
			return err
		}
		coreOpts = append(coreOpts, core.WithUserGroupService(users))
	}
	if f.onDisabled != nil {
		coreOpts = append(coreOpts, core.WithDisabledUserHandler(f.onDisabled))
	}
	if f.logger != nil {
		coreOpts = append(coreOpts, core.WithLogger(f.logger))
	}

	c, err := core.New(coreOpts...)
	if err != nil {
		return err
	}
	f.core = c
	return nil
}

// defaultValidator runs the authorization-code flow against the configured
// endpoints. Tokens are inspected at the check-token endpoint when there is
// one and verified locally against the JWKS otherwise.
func (f *Filter) defaultValidator() (core.TokenValidator, error) {
	opts := []introspect.Option{introspect.WithClock(f.now)}
	if f.httpClient != nil {
		opts = append(opts, introspect.WithHTTPClient(f.httpClient))
	}
	if f.logger != nil {
		opts = append(opts, introspect.WithLogger(f.logger))
	}
	if f.cfg.CheckTokenEndpoint == "" && f.cfg.JWKSURI != "" {
		jwt, err := f.jwtValidator()
		if err != nil {
			return nil, err
		}
		opts = append(opts, introspect.WithInspector(jwt))
	}
	opts = append(opts, introspect.WithConfig(f.cfg))
	return introspect.New(opts...)
}

func (f *Filter) jwtValidator() (*validator.Validator, error) {
	providerOpts := []jwks.Option{jwks.WithJWKSURI(f.cfg.JWKSURI)}
	if f.httpClient != nil {
		providerOpts = append(providerOpts, jwks.WithCustomClient(f.httpClient))
	}
	provider, err := jwks.NewCachingProvider(providerOpts...)
	if err != nil {
		return nil, err
	}

	opts := []validator.Option{
		validator.WithKeyFunc(provider.KeySet),
		validator.WithClock(f.now),
	}
	if f.cfg.Issuer != "" {
		opts = append(opts, validator.WithIssuer(f.cfg.Issuer))
	}
	if len(f.cfg.Audience) > 0 {
		opts = append(opts, validator.WithAudience(f.cfg.Audience...))
	}
	if len(f.cfg.PrincipalClaims) > 0 {
		opts = append(opts, validator.WithPrincipalClaims(f.cfg.PrincipalClaims...))
	}
	return validator.New(opts...)
}

// WithConfig sets the filter configuration (REQUIRED). The filter keeps its
// own copy with defaults applied.
func WithConfig(cfg *config.FilterConfig) Option {
	return func(f *Filter) error {
		if cfg == nil {
			return ErrConfigNil
		}
		c := *cfg
		f.cfg = &c
		return nil
	}
}

// WithName overrides the configured filter name.
func WithName(name string) Option {
	return func(f *Filter) error {
		if name == "" {
			return errors.New("name cannot be empty")
		}
		f.name = name
		return nil
	}
}

// WithTokenValidator replaces the token validator built from the
// configuration.
func WithTokenValidator(v core.TokenValidator) Option {
	return func(f *Filter) error {
		if v == nil {
			return errors.New("token validator cannot be nil")
		}
		f.validator = v
		return nil
	}
}

// WithRoleResolver replaces the role source selected by the configuration.
func WithRoleResolver(r core.RoleResolver) Option {
	return func(f *Filter) error {
		if r == nil {
			return errors.New("role resolver cannot be nil")
		}
		f.roles = r
		return nil
	}
}

// WithRegistry sets where the user-group and role services named in the
// configuration are looked up.
func WithRegistry(registry usergroup.Registry) Option {
	return func(f *Filter) error {
		if registry == nil {
			return errors.New("registry cannot be nil")
		}
		f.registry = registry
		return nil
	}
}

// WithDisabledUserHandler sets the hook invoked when a principal belongs to
// a disabled user.
func WithDisabledUserHandler(h core.DisabledUserHandler) Option {
	return func(f *Filter) error {
		if h == nil {
			return errors.New("disabled user handler cannot be nil")
		}
		f.onDisabled = h
		return nil
	}
}

// WithSessionStore sets where client contexts are kept between requests.
// Default: an in-memory store.
func WithSessionStore(s session.Store) Option {
	return func(f *Filter) error {
		if s == nil {
			return errors.New("session store cannot be nil")
		}
		f.sessions = s
		return nil
	}
}

// WithAuthenticationCache enables caching of authentications for requests
// that supply a token without a session.
func WithAuthenticationCache(c authcache.Cache) Option {
	return func(f *Filter) error {
		if c == nil {
			return errors.New("authentication cache cannot be nil")
		}
		f.cache = c
		return nil
	}
}

// WithCacheVaryHeaders names request headers a custom role resolver reads.
// Their values become part of the authentication cache key, so a cached
// authentication is only reused for requests granting the same roles. The
// Header role source adds its header automatically.
func WithCacheVaryHeaders(names ...string) Option {
	return func(f *Filter) error {
		for _, name := range names {
			if strings.TrimSpace(name) == "" {
				return errors.New("cache vary header cannot be blank")
			}
			f.cacheVary = append(f.cacheVary, http.CanonicalHeaderKey(name))
		}
		return nil
	}
}

// WithTokenExtractor sets how a supplied token is read from the request.
// Default: DefaultTokenExtractor.
func WithTokenExtractor(e TokenExtractor) Option {
	return func(f *Filter) error {
		if e == nil {
			return errors.New("token extractor cannot be nil")
		}
		f.extractor = e
		return nil
	}
}

// WithErrorHandler sets the handler called when authentication fails.
// Default: DefaultErrorHandler.
func WithErrorHandler(h ErrorHandler) Option {
	return func(f *Filter) error {
		if h == nil {
			return errors.New("errorHandler cannot be nil")
		}
		f.errorHandler = h
		return nil
	}
}

// WithLogger sets an optional logger, e.g. a *slog.Logger or one of the
// adapters in this package.
func WithLogger(logger Logger) Option {
	return func(f *Filter) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		f.logger = logger
		return nil
	}
}

// WithTracer sets the tracer. Default: NoopTracer.
func WithTracer(t Tracer) Option {
	return func(f *Filter) error {
		if t == nil {
			return errors.New("tracer cannot be nil")
		}
		f.tracer = t
		return nil
	}
}

// WithMetrics sets the metrics sink. Default: NoopMetrics.
func WithMetrics(m Metrics) Option {
	return func(f *Filter) error {
		if m == nil {
			return errors.New("metrics cannot be nil")
		}
		f.metrics = m
		return nil
	}
}

// WithStateParameter appends the redirect state key to the authorization
// request as the state parameter.
//
// Default: false, which keeps the authorization URL exactly as
// BuildRedirectURL returns it.
func WithStateParameter(enabled bool) Option {
	return func(f *Filter) error {
		f.stateParam = enabled
		return nil
	}
}

// WithReturnToOriginalURL redirects the browser back to the URL it first
// requested once the authorization callback authenticated it.
//
// Default: false, the callback request continues down the chain.
func WithReturnToOriginalURL(enabled bool) Option {
	return func(f *Filter) error {
		f.returnToOriginal = enabled
		return nil
	}
}

// WithRootUsername overrides the configured root identity.
func WithRootUsername(name string) Option {
	return func(f *Filter) error {
		if name == "" {
			return errors.New("root username cannot be empty")
		}
		f.rootUsername = name
		return nil
	}
}

// WithFailOpen leaves requests unauthenticated, instead of failing them,
// when the authorization server is unreachable.
//
// Default: false (fail closed).
func WithFailOpen(failOpen bool) Option {
	return func(f *Filter) error {
		f.failOpen = failOpen
		return nil
	}
}

// WithHTTPClient sets the client used to reach the authorization server by
// the default token validator.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Filter) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		f.httpClient = c
		return nil
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		f.now = now
		return nil
	}
}
