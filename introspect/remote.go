package introspect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oauth2preauth/go-oauth2-filter/core"
)

// DefaultTimeout bounds one introspection request.
const DefaultTimeout = 10 * time.Second

// DefaultPrincipalClaims are searched in order for the principal name.
var DefaultPrincipalClaims = []string{"user_name", "username", "preferred_username", "email", "sub"}

// Remote inspects tokens at a remote check-token or RFC 7662 introspection
// endpoint, authenticating with the client credentials.
//
// Concurrent inspections of the same token share a single request.
type Remote struct {
	endpoint     string
	clientID     string
	clientSecret string
	client       *http.Client
	claims       []string
	timeout      time.Duration
	group        singleflight.Group
}

type RemoteOption func(*Remote)

// WithRemoteHTTPClient sets the client used for introspection requests.
func WithRemoteHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// WithTimeout bounds each introspection request. Default: DefaultTimeout.
func WithTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPrincipalClaims overrides DefaultPrincipalClaims.
func WithPrincipalClaims(claims ...string) RemoteOption {
	return func(r *Remote) {
		if len(claims) > 0 {
			r.claims = claims
		}
	}
}

func NewRemote(endpoint, clientID, clientSecret string, opts ...RemoteOption) (*Remote, error) {
	u, err := url.Parse(endpoint)
	if err != nil || !u.IsAbs() {
		return nil, core.NewValidationError(core.ErrorCodeConfigInvalid, "introspection endpoint must be an absolute URL", err)
	}
	r := &Remote{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       http.DefaultClient,
		claims:       DefaultPrincipalClaims,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Inspect implements Inspector.
func (r *Remote) Inspect(ctx context.Context, token string) (string, error) {
	claims, err := r.Introspect(ctx, token)
	if err != nil {
		return "", err
	}
	for _, name := range r.claims {
		if v, ok := claims[name].(string); ok && strings.TrimSpace(v) != "" {
			return v, nil
		}
	}
	return "", nil
}

// Introspect returns the claims the endpoint reports for an active token.
//
// The shared request is not cancelled with any one caller; each caller
// stops waiting when its own ctx is done.
func (r *Remote) Introspect(ctx context.Context, token string) (map[string]any, error) {
	sum := sha256.Sum256([]byte(token))
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(hex.EncodeToString(sum[:]), func() (any, error) {
		callCtx, cancel := context.WithTimeout(shared, r.timeout)
		defer cancel()
		return r.introspect(callCtx, token)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]any), nil
	}
}

func (r *Remote) introspect(ctx context.Context, token string) (map[string]any, error) {
	form := url.Values{
		"token":           {token},
		"token_type_hint": {"access_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, core.NewValidationError(core.ErrorCodeIntrospectionFailed, "building introspection request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(url.QueryEscape(r.clientID), url.QueryEscape(r.clientSecret))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, core.NewValidationError(core.ErrorCodeAuthServerUnreachable,
			fmt.Sprintf("POST %s", r.endpoint), fmt.Errorf("%w: %w", core.ErrAuthServerUnreachable, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, core.NewValidationError(core.ErrorCodeAuthServerUnreachable,
			fmt.Sprintf("unexpected HTTP code %d for POST %s", resp.StatusCode, r.endpoint), core.ErrAuthServerUnreachable)
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusBadRequest:
		// A check-token endpoint reports invalid tokens as 400 with an
		// "error" member.
	default:
		return nil, core.NewValidationError(core.ErrorCodeIntrospectionFailed,
			fmt.Sprintf("unexpected HTTP code %d for POST %s", resp.StatusCode, r.endpoint), nil)
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, core.NewValidationError(core.ErrorCodeIntrospectionFailed, "decoding introspection response", err)
	}

	if e, ok := claims["error"]; ok {
		desc, _ := claims["error_description"].(string)
		return nil, core.NewValidationError(core.ErrorCodeTokenRejected, "token rejected by authorization server",
			errors.New(strings.TrimSpace(fmt.Sprintf("%v %s", e, desc))))
	}
	if active, ok := claims["active"]; ok && !isTrue(active) {
		return nil, core.NewValidationError(core.ErrorCodeTokenInactive, "token is not active", nil)
	}
	return claims, nil
}

func isTrue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return false
	}
}
