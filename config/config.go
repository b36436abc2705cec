// Package config holds the configuration of an OAuth2 pre-authentication
// filter and loads it from YAML.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oauth2preauth/go-oauth2-filter/internal/oidc"
)

const (
	DefaultName              = "oauth2"
	DefaultSessionCookieName = "JSESSIONID"
	DefaultRootUsername      = "admin"
)

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid filter configuration")

// RoleSource selects where roles of an authenticated principal come from.
type RoleSource string

const (
	// RoleSourceStatic grants a fixed list of roles.
	RoleSourceStatic RoleSource = "Static"
	// RoleSourceUserGroupService grants the roles of the user and its groups.
	RoleSourceUserGroupService RoleSource = "UserGroupService"
	// RoleSourceRoleService grants the roles a role service has for the user.
	RoleSourceRoleService RoleSource = "RoleService"
	// RoleSourceHeader reads roles from a request header.
	RoleSourceHeader RoleSource = "Header"
)

// UnmarshalText accepts the role source names case-insensitively.
func (r *RoleSource) UnmarshalText(text []byte) error {
	v := strings.TrimSpace(string(text))
	for _, known := range []RoleSource{RoleSourceStatic, RoleSourceUserGroupService, RoleSourceRoleService, RoleSourceHeader} {
		if strings.EqualFold(v, string(known)) {
			*r = known
			return nil
		}
	}
	return fmt.Errorf("unknown role source %q", v)
}

// FilterConfig is the configuration of one filter instance.
type FilterConfig struct {
	// Name identifies the filter; it scopes authentication cache entries.
	Name string `yaml:"name,omitempty"`

	// Issuer is optional. When set, ApplyDiscovery fills empty endpoints
	// from the issuer's discovery document.
	Issuer string `yaml:"issuer,omitempty"`

	AuthorizationURI string `yaml:"authorizationUri"`
	TokenURI         string `yaml:"tokenUri"`
	ClientID         string `yaml:"clientId"`
	ClientSecret     string `yaml:"clientSecret"`
	// Scopes is a comma-separated scope list, e.g. "read,write".
	Scopes      string `yaml:"scopes"`
	RedirectURI string `yaml:"redirectUri"`
	LogoutURI   string `yaml:"logoutUri"`

	// CheckTokenEndpoint is the remote introspection endpoint. Either it or
	// JWKSURI is required.
	CheckTokenEndpoint string `yaml:"checkTokenEndpoint,omitempty"`
	// JWKSURI enables local validation of JWT access tokens.
	JWKSURI string `yaml:"jwksUri,omitempty"`
	// Audience is checked by local JWT validation when set.
	Audience []string `yaml:"audience,omitempty"`
	// PrincipalClaims overrides the claims searched for the principal name.
	PrincipalClaims []string `yaml:"principalClaims,omitempty"`

	RoleSource           RoleSource `yaml:"roleSource"`
	UserGroupServiceName string     `yaml:"userGroupServiceName,omitempty"`
	RoleServiceName      string     `yaml:"roleServiceName,omitempty"`
	RolesHeader          string     `yaml:"rolesHeader,omitempty"`
	StaticRoles          []string   `yaml:"staticRoles,omitempty"`

	SessionCookieName string `yaml:"sessionCookieName,omitempty"`
	RootUsername      string `yaml:"rootUsername,omitempty"`
}

// Load reads, expands and validates the configuration file at path.
func Load(path string) (*FilterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// LoadWithDiscovery is Load for configurations that name an Issuer and
// leave endpoints to its discovery document.
func LoadWithDiscovery(ctx context.Context, client *http.Client, path string) (*FilterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseWithDiscovery(ctx, client, data)
}

// Parse decodes YAML, expanding ${VAR} references from the environment,
// then applies defaults and validates.
func Parse(data []byte) (*FilterConfig, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseWithDiscovery decodes like Parse, fills empty endpoints from the
// Issuer's discovery document and only then validates.
func ParseWithDiscovery(ctx context.Context, client *http.Client, data []byte) (*FilterConfig, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyDiscovery(ctx, client); err != nil {
		return nil, fmt.Errorf("discovering endpoints: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*FilterConfig, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &FilterConfig{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills unset optional fields.
func (c *FilterConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.SessionCookieName == "" {
		c.SessionCookieName = DefaultSessionCookieName
	}
	if c.RootUsername == "" {
		c.RootUsername = DefaultRootUsername
	}
}

// Validate reports every missing or malformed field at once.
func (c *FilterConfig) Validate() error {
	var errs []error
	required := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	absolute := func(name, value string) {
		if value == "" {
			return
		}
		u, err := url.Parse(value)
		if err != nil || !u.IsAbs() {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL", name))
		}
	}

	required("authorizationUri", c.AuthorizationURI)
	required("tokenUri", c.TokenURI)
	required("clientId", c.ClientID)
	required("clientSecret", c.ClientSecret)
	required("scopes", c.Scopes)
	required("redirectUri", c.RedirectURI)
	required("logoutUri", c.LogoutURI)
	if c.CheckTokenEndpoint == "" && c.JWKSURI == "" {
		errs = append(errs, errors.New("checkTokenEndpoint or jwksUri is required"))
	}

	absolute("authorizationUri", c.AuthorizationURI)
	absolute("tokenUri", c.TokenURI)
	absolute("redirectUri", c.RedirectURI)
	absolute("checkTokenEndpoint", c.CheckTokenEndpoint)
	absolute("jwksUri", c.JWKSURI)

	switch c.RoleSource {
	case RoleSourceStatic:
	case RoleSourceUserGroupService:
		required("userGroupServiceName", c.UserGroupServiceName)
	case RoleSourceRoleService:
		required("roleServiceName", c.RoleServiceName)
	case RoleSourceHeader:
		required("rolesHeader", c.RolesHeader)
	case "":
		errs = append(errs, errors.New("roleSource is required"))
	default:
		errs = append(errs, fmt.Errorf("unknown roleSource %q", c.RoleSource))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// ScopeList splits Scopes on commas, dropping blanks.
func (c *FilterConfig) ScopeList() []string {
	var out []string
	for _, s := range strings.Split(c.Scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RedirectPath is the path of RedirectURI, where authorization callbacks
// arrive.
func (c *FilterConfig) RedirectPath() string {
	u, err := url.Parse(c.RedirectURI)
	if err != nil {
		return ""
	}
	return u.Path
}

// ApplyDiscovery fetches the discovery document of Issuer and fills any
// empty endpoint from it. It is a no-op without an issuer.
func (c *FilterConfig) ApplyDiscovery(ctx context.Context, client *http.Client) error {
	if c.Issuer == "" {
		return nil
	}
	issuerURL, err := url.Parse(c.Issuer)
	if err != nil {
		return fmt.Errorf("parsing issuer: %w", err)
	}

	wk, err := oidc.GetWellKnownEndpointsFromIssuerURL(ctx, client, *issuerURL, c.Issuer)
	if err != nil {
		return err
	}

	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&c.AuthorizationURI, wk.AuthorizationEndpoint)
	fill(&c.TokenURI, wk.TokenEndpoint)
	fill(&c.CheckTokenEndpoint, wk.IntrospectionEndpoint)
	fill(&c.LogoutURI, wk.EndSessionEndpoint)
	if c.CheckTokenEndpoint == "" {
		fill(&c.JWKSURI, wk.JWKSURI)
	}
	return nil
}
