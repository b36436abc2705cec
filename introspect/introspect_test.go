package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oauth2preauth/go-oauth2-filter/config"
	"github.com/oauth2preauth/go-oauth2-filter/core"
	"github.com/oauth2preauth/go-oauth2-filter/session"
)

// authServer fakes the token and check-token endpoints of an authorization
// server.
type authServer struct {
	*httptest.Server

	mu            sync.Mutex
	introspected  []string
	exchanged     []string
	tokenStatus   int
	tokenBody     string
	checkResponse map[string]map[string]any
	checkStatus   int
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()

	as := &authServer{
		tokenStatus: http.StatusOK,
		tokenBody:   `{"access_token":"exchanged-token","token_type":"bearer","expires_in":3600}`,
		checkStatus: http.StatusOK,
		checkResponse: map[string]map[string]any{
			"good-token":      {"active": true, "user_name": "alice"},
			"exchanged-token": {"active": true, "user_name": "carol"},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "abc" || secret != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		as.mu.Lock()
		as.exchanged = append(as.exchanged, r.PostForm.Get("code"))
		as.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(as.tokenStatus)
		_, _ = w.Write([]byte(as.tokenBody))
	})
	mux.HandleFunc("/check_token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "abc" || secret != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		token := r.PostForm.Get("token")
		assert.Equal(t, "access_token", r.PostForm.Get("token_type_hint"))

		as.mu.Lock()
		as.introspected = append(as.introspected, token)
		as.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if as.checkStatus != http.StatusOK {
			w.WriteHeader(as.checkStatus)
			_, _ = w.Write([]byte(`{}`))
			return
		}
		resp, ok := as.checkResponse[token]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			resp = map[string]any{"error": "invalid_token", "error_description": "Token was not recognised"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	as.Server = httptest.NewServer(mux)
	t.Cleanup(as.Close)
	return as
}

func (as *authServer) config() *config.FilterConfig {
	return &config.FilterConfig{
		AuthorizationURI:   as.URL + "/authorize",
		TokenURI:           as.URL + "/token",
		ClientID:           "abc",
		ClientSecret:       "s3cret",
		Scopes:             "read,write",
		RedirectURI:        "https://app.example/cb",
		CheckTokenEndpoint: as.URL + "/check_token",
	}
}

func newValidator(t *testing.T, as *authServer, opts ...Option) *Validator {
	t.Helper()
	opts = append([]Option{WithHTTPClient(as.Client()), WithConfig(as.config())}, opts...)
	v, err := New(opts...)
	require.NoError(t, err)
	return v
}

func TestNew(t *testing.T) {
	t.Run("inspector required", func(t *testing.T) {
		_, err := New()
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, core.ErrorCodeValidatorNotSet, verr.Code)
	})

	t.Run("config without check token endpoint needs an inspector", func(t *testing.T) {
		_, err := New(WithConfig(&config.FilterConfig{JWKSURI: "https://auth.example/jwks"}))
		assert.ErrorContains(t, err, "inspector is required")
	})

	t.Run("explicit inspector is kept", func(t *testing.T) {
		inspector := InspectorFunc(func(context.Context, string) (string, error) { return "x", nil })
		v, err := New(WithInspector(inspector), WithConfig(&config.FilterConfig{CheckTokenEndpoint: "https://auth.example/check"}))
		require.NoError(t, err)
		assert.NotNil(t, v.oauth)
		_, isRemote := v.inspector.(*Remote)
		assert.False(t, isRemote)
	})

	for name, opt := range map[string]Option{
		"config":      WithConfig(nil),
		"oauth2":      WithOAuth2Config(nil),
		"inspector":   WithInspector(nil),
		"http client": WithHTTPClient(nil),
		"clock":       WithClock(nil),
		"logger":      WithLogger(nil),
	} {
		t.Run("nil "+name, func(t *testing.T) {
			_, err := New(opt)
			assert.ErrorContains(t, err, "cannot be nil")
		})
	}
}

func TestValidator_AttemptAuthentication(t *testing.T) {
	ctx := context.Background()

	t.Run("no token and no code requires redirect", func(t *testing.T) {
		as := newAuthServer(t)
		v := newValidator(t, as)

		res := v.AttemptAuthentication(ctx, core.ValidationRequest{Client: session.New()})
		assert.Equal(t, core.ResultRedirectRequired, res.Kind())
		assert.Empty(t, as.introspected)
	})

	t.Run("held token is introspected", func(t *testing.T) {
		as := newAuthServer(t)
		v := newValidator(t, as)

		client := session.New()
		client.SetAccessToken(core.NewBearerToken("good-token"))

		res := v.AttemptAuthentication(ctx, core.ValidationRequest{Client: client})
		require.Equal(t, core.ResultResolved, res.Kind(), res.Err())
		assert.Equal(t, "alice", res.Principal())
		assert.Equal(t, []string{"good-token"}, as.introspected)
	})

	t.Run("rejected token fails", func(t *testing.T) {
		as := newAuthServer(t)
		v := newValidator(t, as)

		client := session.New()
		client.SetAccessToken(core.NewBearerToken("bad-token"))

		res := v.AttemptAuthentication(ctx, core.ValidationRequest{Client: client})
		require.Equal(t, core.ResultFailed, res.Kind())
		var verr *core.ValidationError
		require.ErrorAs(t, res.Err(), &verr)
		assert.Equal(t, core.ErrorCodeTokenRejected, verr.Code)
		assert.ErrorContains(t, res.Err(), "invalid_token Token was not recognised")
	})

	t.Run("expired token is cleared and treated as missing", func(t *testing.T) {
		as := newAuthServer(t)
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		v := newValidator(t, as, WithClock(func() time.Time { return now }))

		client := session.New()
		client.SetAccessToken(&core.AccessToken{Value: "good-token", Type: "bearer", Expiry: now.Add(-time.Second)})

		res := v.AttemptAuthentication(ctx, core.ValidationRequest{Client: client})
		assert.Equal(t, core.ResultRedirectRequired, res.Kind())
		assert.Nil(t, client.AccessToken())
		assert.Empty(t, as.introspected)
	})

	t.Run("callback code is exchanged", func(t *testing.T) {
		as := newAuthServer(t)
		v := newValidator(t, as)

		client := session.New()
		client.SetRedirectState(&core.RedirectState{StateKey: "state-1", PreservedURL: "/wms"})

		before := time.Now()
		res := v.AttemptAuthentication(ctx, core.ValidationRequest{Client: client, Code: "c0de", State: "state-1"})
		require.Equal(t, core.ResultResolved, res.Kind(), res.Err())
		assert.Equal(t, "carol", res.Principal())

		assert.Equal(t, []string{"c0de"}, as.exchanged)
		require.NotNil(t, client.AccessToken())
		assert.Equal(t, "exchanged-token", client.AccessToken().Value)
		assert.Equal(t, "Bearer", client.AccessToken().Type)
		assert.True(t, client.AccessToken().Expiry.After(before))
		assert.Nil(t, client.RedirectState())
	})

	t.Run("callback without state is accepted", func(t *testing.T) {
		as := newAuthServer(t)
		v := newValidator(t, as)

		client := session.New()
		client.SetRedirectState(&core.RedirectState{StateKey: "state-1"})

		res := v.AttemptAuthentication(ctx, core.ValidationRequest{Client: client, Code: "c0de"})
		require.Equal(t, core.ResultResolved, res.Kind(), res.Err())
		assert.Nil(t, client.RedirectState())
	})

	t.Run("callback state mismatch", func(t *testing.T) {
		as := newAuthServer(t)
		v := newValidator(t, as)

		client := session.New()
		client.SetRedirectState(&core.RedirectState{StateKey: "state-1"})

		res := v.AttemptAuthentication(ctx, core.ValidationRequest{Client: client, Code: "c0de", State: "forged"})
		require.Equal(t, core.ResultFailed, res.Kind())
		var verr *core.ValidationError
		require.ErrorAs(t, res.Err(), &verr)
		assert.Equal(t, core.ErrorCodeStateMismatch, verr.Code)
		assert.Empty(t, as.exchanged)
		assert.NotNil(t, client.RedirectState())
	})

	t.Run("rejected code", func(t *testing.T) {
		as := newAuthServer(t)
		as.tokenStatus = http.StatusBadRequest
		as.tokenBody = `{"error":"invalid_grant"}`
		v := newValidator(t, as)

		res := v.AttemptAuthentication(ctx, core.ValidationRequest{Client: session.New(), Code: "used"})
		require.Equal(t, core.ResultFailed, res.Kind())
		var verr *core.ValidationError
		require.ErrorAs(t, res.Err(), &verr)
		assert.Equal(t, core.ErrorCodeCodeExchangeFailed, verr.Code)
		assert.False(t, core.IsUnreachable(res.Err()))
	})

	t.Run("token endpoint down", func(t *testing.T) {
		as := newAuthServer(t)
		v := newValidator(t, as)
		as.Close()

		res := v.AttemptAuthentication(ctx, core.ValidationRequest{Client: session.New(), Code: "c0de"})
		require.Equal(t, core.ResultFailed, res.Kind())
		assert.True(t, core.IsUnreachable(res.Err()))
		assert.ErrorIs(t, res.Err(), core.ErrValidationFailed)
	})

	t.Run("code exchange without oauth2 client", func(t *testing.T) {
		v, err := New(WithInspector(InspectorFunc(func(context.Context, string) (string, error) { return "x", nil })))
		require.NoError(t, err)

		res := v.AttemptAuthentication(ctx, core.ValidationRequest{Client: session.New(), Code: "c0de"})
		require.Equal(t, core.ResultFailed, res.Kind())
		assert.ErrorContains(t, res.Err(), "no OAuth2 client configured")
	})
}

func TestRemote(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid endpoint", func(t *testing.T) {
		_, err := NewRemote("/relative", "abc", "s3cret")
		assert.ErrorIs(t, err, core.ErrValidationFailed)
	})

	t.Run("principal claims", func(t *testing.T) {
		tests := []struct {
			name   string
			claims map[string]any
			opts   []RemoteOption
			want   string
		}{
			{name: "user_name", claims: map[string]any{"user_name": "alice", "sub": "123"}, want: "alice"},
			{name: "preferred_username", claims: map[string]any{"active": true, "preferred_username": "bob", "sub": "123"}, want: "bob"},
			{name: "falls back to sub", claims: map[string]any{"active": "true", "user_name": " ", "sub": "123"}, want: "123"},
			{name: "no principal", claims: map[string]any{"active": true}, want: ""},
			{name: "custom claim", claims: map[string]any{"upn": "dave@corp", "sub": "123"}, opts: []RemoteOption{WithPrincipalClaims("upn")}, want: "dave@corp"},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				as := newAuthServer(t)
				as.checkResponse["tok"] = tc.claims

				opts := append([]RemoteOption{WithRemoteHTTPClient(as.Client())}, tc.opts...)
				r, err := NewRemote(as.URL+"/check_token", "abc", "s3cret", opts...)
				require.NoError(t, err)

				got, err := r.Inspect(ctx, "tok")
				require.NoError(t, err)
				assert.Equal(t, tc.want, got)
			})
		}
	})

	t.Run("failures", func(t *testing.T) {
		tests := []struct {
			name            string
			token           string
			checkStatus     int
			clientSecret    string
			wantCode        string
			wantUnreachable bool
		}{
			{name: "inactive", token: "inactive", wantCode: core.ErrorCodeTokenInactive},
			{name: "unknown token", token: "unknown", wantCode: core.ErrorCodeTokenRejected},
			{name: "server error", token: "good-token", checkStatus: http.StatusBadGateway, wantCode: core.ErrorCodeAuthServerUnreachable, wantUnreachable: true},
			{name: "bad client credentials", token: "good-token", clientSecret: "wrong", wantCode: core.ErrorCodeIntrospectionFailed},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				as := newAuthServer(t)
				as.checkResponse["inactive"] = map[string]any{"active": false, "user_name": "alice"}
				if tc.checkStatus != 0 {
					as.checkStatus = tc.checkStatus
				}
				secret := "s3cret"
				if tc.clientSecret != "" {
					secret = tc.clientSecret
				}

				r, err := NewRemote(as.URL+"/check_token", "abc", secret, WithRemoteHTTPClient(as.Client()))
				require.NoError(t, err)

				_, err = r.Inspect(ctx, tc.token)
				var verr *core.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tc.wantCode, verr.Code)
				assert.Equal(t, tc.wantUnreachable, core.IsUnreachable(err))
			})
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		as := newAuthServer(t)
		r, err := NewRemote(as.URL+"/check_token", "abc", "s3cret", WithRemoteHTTPClient(as.Client()))
		require.NoError(t, err)
		as.Close()

		_, err = r.Inspect(ctx, "good-token")
		assert.True(t, core.IsUnreachable(err))
		assert.True(t, errors.Is(err, core.ErrAuthServerUnreachable))
	})

	t.Run("concurrent inspections share one request", func(t *testing.T) {
		var hits atomic.Int32
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			<-release
			_, _ = w.Write([]byte(`{"active":true,"user_name":"alice"}`))
		}))
		defer server.Close()

		r, err := NewRemote(server.URL, "abc", "s3cret", WithRemoteHTTPClient(server.Client()))
		require.NoError(t, err)

		const callers = 8
		var wg sync.WaitGroup
		results := make([]string, callers)
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], _ = r.Inspect(ctx, "same-token")
			}()
		}

		time.Sleep(100 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), hits.Load())
		for _, got := range results {
			assert.Equal(t, "alice", got)
		}
	})

	t.Run("a cancelled caller leaves the shared request running", func(t *testing.T) {
		var hits atomic.Int32
		started := make(chan struct{})
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) == 1 {
				close(started)
			}
			<-release
			_, _ = w.Write([]byte(`{"active":true,"user_name":"alice"}`))
		}))
		defer server.Close()

		r, err := NewRemote(server.URL, "abc", "s3cret", WithRemoteHTTPClient(server.Client()))
		require.NoError(t, err)

		firstCtx, cancel := context.WithCancel(ctx)
		firstErr := make(chan error, 1)
		go func() {
			_, err := r.Inspect(firstCtx, "same-token")
			firstErr <- err
		}()
		<-started

		second := make(chan string, 1)
		go func() {
			got, err := r.Inspect(ctx, "same-token")
			assert.NoError(t, err)
			second <- got
		}()
		time.Sleep(100 * time.Millisecond)

		cancel()
		assert.ErrorIs(t, <-firstErr, context.Canceled)

		close(release)
		assert.Equal(t, "alice", <-second)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer server.Close()
		defer close(release)

		r, err := NewRemote(server.URL, "abc", "s3cret",
			WithRemoteHTTPClient(server.Client()), WithTimeout(50*time.Millisecond))
		require.NoError(t, err)

		_, err = r.Inspect(ctx, "slow-token")
		assert.True(t, core.IsUnreachable(err))
	})
}
