// Package introspect implements core.TokenValidator for the OAuth2
// authorization-code flow with opaque or JWT access tokens.
package introspect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/oauth2preauth/go-oauth2-filter/core"
)

// Inspector validates an access token and returns the principal it was
// issued to. A blank principal means the token is valid but names no one.
type Inspector interface {
	Inspect(ctx context.Context, token string) (string, error)
}

// InspectorFunc adapts a function to Inspector.
type InspectorFunc func(ctx context.Context, token string) (string, error)

// Inspect implements Inspector.
func (f InspectorFunc) Inspect(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

var _ core.TokenValidator = (*Validator)(nil)

// Validator acquires the client's access token and inspects it.
//
// A client without a usable token needs a redirect to the authorization
// server, unless the request is the authorization callback carrying a code,
// which is then exchanged for a token.
type Validator struct {
	oauth      *oauth2.Config
	inspector  Inspector
	httpClient *http.Client
	now        func() time.Time
	logger     core.Logger
}

// AttemptAuthentication implements core.TokenValidator.
func (v *Validator) AttemptAuthentication(ctx context.Context, req core.ValidationRequest) core.Result {
	client := req.Client
	token := client.AccessToken()

	if token.Expired(v.now()) {
		if v.logger != nil {
			v.logger.Debug("Held access token expired", "expiry", token.Expiry)
		}
		client.SetAccessToken(nil)
		token = nil
	}

	if token == nil {
		if req.Code == "" {
			return core.RedirectRequired()
		}

		pending := client.RedirectState()
		if pending != nil && req.State != "" && req.State != pending.StateKey {
			return core.Failed(core.NewValidationError(core.ErrorCodeStateMismatch,
				"authorization callback state does not match the pending redirect", nil))
		}

		exchanged, err := v.exchange(ctx, req.Code)
		if err != nil {
			return core.Failed(err)
		}
		client.SetAccessToken(exchanged)
		if pending != nil {
			client.RemoveRedirectState(pending.StateKey)
		}
		token = exchanged

		if v.logger != nil {
			v.logger.Debug("Exchanged authorization code for access token")
		}
	}

	principal, err := v.inspector.Inspect(ctx, token.Value)
	if err != nil {
		return core.Failed(err)
	}
	return core.Resolved(principal)
}

func (v *Validator) exchange(ctx context.Context, code string) (*core.AccessToken, error) {
	if v.oauth == nil {
		return nil, core.NewValidationError(core.ErrorCodeConfigInvalid, "no OAuth2 client configured for code exchange", nil)
	}
	if v.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, v.httpClient)
	}

	t, err := v.oauth.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		var netErr net.Error
		switch {
		case errors.As(err, &netErr),
			errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
				retrieveErr.Response.StatusCode >= http.StatusInternalServerError:
			return nil, core.NewValidationError(core.ErrorCodeAuthServerUnreachable, "token endpoint unavailable",
				fmt.Errorf("%w: %w", core.ErrAuthServerUnreachable, err))
		default:
			return nil, core.NewValidationError(core.ErrorCodeCodeExchangeFailed, "authorization code rejected", err)
		}
	}

	return &core.AccessToken{Value: t.AccessToken, Type: t.Type(), Expiry: t.Expiry}, nil
}
