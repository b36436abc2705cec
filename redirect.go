package oauth2filter

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/oauth2preauth/go-oauth2-filter/config"
	"github.com/oauth2preauth/go-oauth2-filter/core"
	"github.com/oauth2preauth/go-oauth2-filter/session"
)

// BuildRedirectURL returns the authorization request URL for cfg.
//
// The parameters are concatenated in a fixed order and the scope list is
// joined with %20; no other encoding is applied, so the result is
// byte-for-byte predictable:
//
//	https://auth.example/o?response_type=code&client_id=abc&scope=read%20write&redirect_uri=https://app.example/cb
func BuildRedirectURL(cfg *config.FilterConfig) string {
	return cfg.AuthorizationURI +
		"?response_type=code" +
		"&client_id=" + cfg.ClientID +
		"&scope=" + strings.ReplaceAll(cfg.Scopes, ",", "%20") +
		"&redirect_uri=" + cfg.RedirectURI
}

// Commence starts the authorization-code flow: it remembers the requested
// URL in a new redirect state and redirects to the authorization server.
// It never answers with a 401 challenge.
func (f *Filter) Commence(w http.ResponseWriter, r *http.Request) {
	sess, err := f.loadSession(r.Context(), r)
	if err == nil {
		err = f.commence(w, r, sess)
	}
	if err != nil {
		f.errorHandler(w, r, err)
	}
}

// EntryPoint returns Commence as an http.Handler, for routes that must
// always send the user to log in.
func (f *Filter) EntryPoint() http.Handler {
	return http.HandlerFunc(f.Commence)
}

func (f *Filter) commence(w http.ResponseWriter, r *http.Request, sess *session.Session) error {
	state := &core.RedirectState{
		StateKey:     uuid.NewString(),
		PreservedURL: reconstructRequestURL(r, f.proxies),
		CreatedAt:    f.now(),
	}
	sess.SetRedirectState(state)

	isNew := sess.IsNew()
	if err := f.sessions.Save(r.Context(), sess); err != nil {
		return err
	}
	if isNew {
		f.setSessionCookie(w, r, sess)
	}

	target := BuildRedirectURL(f.cfg)
	if f.stateParam {
		target += "&state=" + url.QueryEscape(state.StateKey)
	}

	if f.logger != nil {
		f.logger.Debug("Redirecting to authorization server",
			"preserved_url", state.PreservedURL,
			"authorization_uri", f.cfg.AuthorizationURI)
	}
	f.metrics.IncCounter(MetricRedirects, map[string]string{})

	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusFound)
	return nil
}
