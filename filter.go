package oauth2filter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oauth2preauth/go-oauth2-filter/authcache"
	"github.com/oauth2preauth/go-oauth2-filter/config"
	"github.com/oauth2preauth/go-oauth2-filter/core"
	"github.com/oauth2preauth/go-oauth2-filter/session"
	"github.com/oauth2preauth/go-oauth2-filter/usergroup"
)

// ErrNoPrincipal is returned by AuthenticateToken when the token is valid
// but yields no principal, or when no token was given.
var ErrNoPrincipal = errors.New("no authenticated principal")

// Values of the outcome metric label and span attribute.
const (
	OutcomeAuthenticated   = "authenticated"
	OutcomeCached          = "cached"
	OutcomeExisting        = "existing"
	OutcomeRedirect        = "redirect"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeError           = "error"
)

// Filter is an OAuth2 pre-authentication filter. It resolves the remote
// principal of a request from its access token, redirects browsers without
// a token to the authorization server, grants roles and installs the
// resulting core.Authentication in the request context.
//
// A Filter is safe for concurrent use.
type Filter struct {
	cfg              *config.FilterConfig
	name             string
	callbackPath     string
	core             *core.Core
	sessions         session.Store
	cache            authcache.Cache
	cacheVary        []string
	extractor        TokenExtractor
	errorHandler     ErrorHandler
	proxies          *TrustedProxyConfig
	stateParam       bool
	returnToOriginal bool
	logger           Logger
	tracer           Tracer
	metrics          Metrics
	now              func() time.Time

	// Used during construction only.
	validator    core.TokenValidator
	roles        core.RoleResolver
	registry     usergroup.Registry
	onDisabled   core.DisabledUserHandler
	rootUsername string
	failOpen     bool
	httpClient   *http.Client
}

// HandleResult is the outcome of Filter.Handle.
type HandleResult struct {
	// Request is the request to pass down the chain. Its context carries
	// the authentication, if any.
	Request *http.Request
	// Authentication is the installed authentication, or nil.
	Authentication *core.Authentication
	// Redirected reports that a redirect was written to the response. The
	// chain must not continue.
	Redirected bool
}

// Authenticated reports whether the request ends up authenticated.
func (r HandleResult) Authenticated() bool { return r.Authentication != nil }

// Config returns the configuration the filter was built with.
func (f *Filter) Config() config.FilterConfig { return *f.cfg }

// Name identifies the filter in the authentication cache.
func (f *Filter) Name() string { return f.name }

// Middleware runs Handle for every request. The chain continues unless a
// redirect was sent or authentication failed, in which case the
// ErrorHandler writes the response.
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := f.Handle(w, r)
		if err != nil {
			f.errorHandler(w, res.Request, err)
			return
		}
		if res.Redirected {
			return
		}
		next.ServeHTTP(w, res.Request)
	})
}

// Handle pre-authenticates one request.
//
// A request that already carries an authentication in its context is left
// as is. A request supplying a token without a session cookie is looked up
// in the authentication cache first. Otherwise the core sequence runs
// against the request's session. Unauthenticated requests are not an error;
// the chain decides what they may access.
func (f *Filter) Handle(w http.ResponseWriter, r *http.Request) (HandleResult, error) {
	start := f.now()
	ctx, span := f.tracer.StartSpan(r.Context(), SpanAuthenticate)
	defer span.End()

	r = r.WithContext(core.WithMemo(ctx))
	res, outcome, err := f.handle(w, r)
	if res.Request == nil {
		res.Request = r
	}

	span.SetAttribute("auth.outcome", outcome)
	if err != nil {
		span.RecordError(err)
	}
	f.metrics.IncCounter(MetricAuthentications, map[string]string{"outcome": outcome})
	f.metrics.ObserveHistogram(MetricAuthenticationDuration, f.now().Sub(start).Seconds(), map[string]string{})
	return res, err
}

func (f *Filter) handle(w http.ResponseWriter, r *http.Request) (HandleResult, string, error) {
	ctx := r.Context()

	supplied, err := f.extractor(r)
	if err != nil {
		if f.logger != nil {
			f.logger.Warn("Failed to extract access token", "error", err, "path", r.URL.Path)
		}
		if !errors.Is(err, ErrTokenMalformed) {
			err = fmt.Errorf("%w: %w", ErrTokenMalformed, err)
		}
		return HandleResult{}, OutcomeError, err
	}

	key := f.cacheKey(r, supplied)
	if key != "" && f.cache != nil && !core.HasAuthentication(ctx) {
		if auth, ok := f.cache.Get(f.name, key); ok {
			if f.logger != nil {
				f.logger.Debug("Authentication served from cache", "principal", auth.Principal())
			}
			return HandleResult{
				Request:        r.WithContext(core.WithAuthentication(ctx, auth)),
				Authentication: auth,
			}, OutcomeCached, nil
		}
	}

	if auth, err := core.AuthenticationFrom(ctx); err == nil {
		return HandleResult{Authentication: auth}, OutcomeExisting, nil
	}

	sess, err := f.loadSession(ctx, r)
	if err != nil {
		return HandleResult{}, OutcomeError, err
	}
	pending := sess.RedirectState()

	attempt := f.attempt(r, sess, supplied)
	outcome, err := f.core.Authenticate(ctx, attempt)
	if err != nil {
		f.persist(w, r, sess, supplied)
		return HandleResult{}, OutcomeError, err
	}

	if outcome.RedirectRequired {
		if err := f.commence(w, r, sess); err != nil {
			return HandleResult{}, OutcomeError, err
		}
		return HandleResult{Redirected: true}, OutcomeRedirect, nil
	}

	f.persist(w, r, sess, supplied)

	auth := outcome.Authentication
	if auth == nil {
		return HandleResult{}, OutcomeUnauthenticated, nil
	}

	r = r.WithContext(core.WithAuthentication(ctx, auth))
	if key != "" && f.cache != nil && !f.core.IsRoot(auth.Principal()) {
		f.cache.Put(f.name, key, auth)
		if f.logger != nil {
			f.logger.Debug("Authentication cached", "principal", auth.Principal())
		}
	}

	if f.returnToOriginal && attempt.Code != "" && pending != nil && pending.PreservedURL != "" &&
		sess.RedirectState() == nil {
		w.Header().Set("Location", pending.PreservedURL)
		w.WriteHeader(http.StatusFound)
		return HandleResult{Request: r, Authentication: auth, Redirected: true}, OutcomeAuthenticated, nil
	}
	return HandleResult{Request: r, Authentication: auth}, OutcomeAuthenticated, nil
}

// PreAuthenticatedPrincipal returns the principal of r, or "" when there is
// none. Within one request (see core.WithMemo) the token is validated at
// most once, however often this is called.
func (f *Filter) PreAuthenticatedPrincipal(r *http.Request) (string, error) {
	supplied, err := f.extractor(r)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	sess, err := f.loadSession(r.Context(), r)
	if err != nil {
		return "", err
	}
	principal, _, err := f.core.ResolvePrincipal(r.Context(), f.attempt(r, sess, supplied))
	return principal, err
}

// AuthenticateToken authenticates a bare access token, for transports
// without sessions or redirects such as gRPC. The authentication cache is
// consulted and filled as for HTTP requests supplying a token.
func (f *Filter) AuthenticateToken(ctx context.Context, token string) (*core.Authentication, error) {
	start := f.now()
	ctx, span := f.tracer.StartSpan(ctx, SpanAuthenticate)
	defer span.End()

	auth, outcome, err := f.authenticateToken(core.WithMemo(ctx), token)

	span.SetAttribute("auth.outcome", outcome)
	if err != nil {
		span.RecordError(err)
	}
	f.metrics.IncCounter(MetricAuthentications, map[string]string{"outcome": outcome})
	f.metrics.ObserveHistogram(MetricAuthenticationDuration, f.now().Sub(start).Seconds(), map[string]string{})
	return auth, err
}

func (f *Filter) authenticateToken(ctx context.Context, token string) (*core.Authentication, string, error) {
	if token == "" {
		return nil, OutcomeUnauthenticated, ErrNoPrincipal
	}

	key := TokenCacheKey(token)
	if f.cache != nil {
		if auth, ok := f.cache.Get(f.name, key); ok {
			return auth, OutcomeCached, nil
		}
	}

	outcome, err := f.core.Authenticate(ctx, core.Attempt{Client: session.New(), SuppliedToken: token})
	if err != nil {
		return nil, OutcomeError, err
	}
	if outcome.Authentication == nil {
		return nil, OutcomeUnauthenticated, ErrNoPrincipal
	}

	auth := outcome.Authentication
	if f.cache != nil && !f.core.IsRoot(auth.Principal()) {
		f.cache.Put(f.name, key, auth)
	}
	return auth, OutcomeAuthenticated, nil
}

func (f *Filter) attempt(r *http.Request, sess *session.Session, supplied string) core.Attempt {
	a := core.Attempt{
		Client:        sess,
		SuppliedToken: supplied,
		Details: core.Details{
			RemoteAddr: r.RemoteAddr,
			RequestURI: r.RequestURI,
			Header:     detailHeader(r.Header),
		},
	}
	if !sess.IsNew() {
		a.Details.SessionID = sess.ID()
	}
	if r.URL.Path == f.callbackPath {
		q := r.URL.Query()
		a.Code = q.Get("code")
		a.State = q.Get("state")
	}
	return a
}

// credentialHeaders never reach an Authentication's details.
var credentialHeaders = []string{"Authorization", "Proxy-Authorization", "Cookie"}

func detailHeader(h http.Header) http.Header {
	out := h.Clone()
	for _, name := range credentialHeaders {
		out.Del(name)
	}
	return out
}

// loadSession returns the session named by the session cookie, or a new
// one.
func (f *Filter) loadSession(ctx context.Context, r *http.Request) (*session.Session, error) {
	cookie, err := r.Cookie(f.cfg.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return session.New(), nil
	}

	sess, err := f.sessions.Load(ctx, cookie.Value)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return session.New(), nil
	case err != nil:
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return sess, nil
}

// persist saves a changed session. A new session is only worth saving when
// it carries state the next request needs: a pending redirect or a token
// the client will not supply again.
func (f *Filter) persist(w http.ResponseWriter, r *http.Request, sess *session.Session, supplied string) {
	if !sess.Dirty() {
		return
	}
	isNew := sess.IsNew()
	if isNew && sess.RedirectState() == nil {
		token := sess.AccessToken()
		if token == nil || token.Value == supplied {
			return
		}
	}

	if err := f.sessions.Save(r.Context(), sess); err != nil {
		if f.logger != nil {
			f.logger.Warn("Failed to save session", "error", err)
		}
		return
	}
	if isNew {
		f.setSessionCookie(w, r, sess)
	}
}

func (f *Filter) setSessionCookie(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     f.cfg.SessionCookieName,
		Value:    sess.ID(),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
