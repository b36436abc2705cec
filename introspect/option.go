package introspect

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/oauth2preauth/go-oauth2-filter/config"
	"github.com/oauth2preauth/go-oauth2-filter/core"
)

// Option is a function that configures the Validator.
type Option func(*Validator) error

// New creates a Validator. An Inspector is required, either directly with
// WithInspector or derived from a configuration with WithConfig.
func New(opts ...Option) (*Validator, error) {
	v := &Validator{now: time.Now}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	if v.inspector == nil {
		return nil, core.NewValidationError(
			core.ErrorCodeValidatorNotSet,
			"inspector is required but not set (use WithInspector or WithConfig)",
			nil,
		)
	}
	return v, nil
}

// OAuth2Config derives the authorization-code client from cfg.
func OAuth2Config(cfg *config.FilterConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.ScopeList(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthorizationURI,
			TokenURL:  cfg.TokenURI,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// WithConfig sets the OAuth2 client from cfg and, unless an inspector was
// already set, a Remote inspector on cfg.CheckTokenEndpoint.
func WithConfig(cfg *config.FilterConfig) Option {
	return func(v *Validator) error {
		if cfg == nil {
			return errors.New("config cannot be nil")
		}
		v.oauth = OAuth2Config(cfg)

		if v.inspector != nil || cfg.CheckTokenEndpoint == "" {
			return nil
		}
		var remoteOpts []RemoteOption
		if v.httpClient != nil {
			remoteOpts = append(remoteOpts, WithRemoteHTTPClient(v.httpClient))
		}
		remoteOpts = append(remoteOpts, WithPrincipalClaims(cfg.PrincipalClaims...))

		remote, err := NewRemote(cfg.CheckTokenEndpoint, cfg.ClientID, cfg.ClientSecret, remoteOpts...)
		if err != nil {
			return err
		}
		v.inspector = remote
		return nil
	}
}

// WithOAuth2Config sets the client used for the authorization-code exchange.
func WithOAuth2Config(c *oauth2.Config) Option {
	return func(v *Validator) error {
		if c == nil {
			return errors.New("oauth2 config cannot be nil")
		}
		v.oauth = c
		return nil
	}
}

// WithInspector sets how access tokens are validated.
func WithInspector(i Inspector) Option {
	return func(v *Validator) error {
		if i == nil {
			return errors.New("inspector cannot be nil")
		}
		v.inspector = i
		return nil
	}
}

// WithHTTPClient sets the client used to reach the token endpoint, and the
// introspection endpoint when it is set before WithConfig.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Validator) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		v.httpClient = c
		return nil
	}
}

// WithClock overrides time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		v.now = now
		return nil
	}
}

// WithLogger sets an optional logger.
func WithLogger(logger core.Logger) Option {
	return func(v *Validator) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		v.logger = logger
		return nil
	}
}
