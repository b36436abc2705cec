package oauth2filter

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/oauth2preauth/go-oauth2-filter/core"
	"github.com/oauth2preauth/go-oauth2-filter/session"
)

type logoutTargetKey struct{}

// LogoutRedirectTarget returns the post-logout redirect target recorded by
// Filter.Logout.
func LogoutRedirectTarget(ctx context.Context) (string, bool) {
	target, ok := ctx.Value(logoutTargetKey{}).(string)
	return target, ok
}

// Logout ends the client's OAuth2 session:
//
//  1. records the configured logout URI for LogoutRedirectTarget,
//  2. drops a held bearer token together with any pending redirect state,
//  3. invalidates the session,
//  4. expires every cookie named like the session cookie (case-insensitive),
//  5. answers 204 No Content,
//  6. clears the authentication.
//
// The steps are independent: a failing step is logged and the others still
// run. The returned request carries the updated context.
func (f *Filter) Logout(w http.ResponseWriter, r *http.Request) *http.Request {
	ctx, span := f.tracer.StartSpan(r.Context(), SpanLogout)
	defer span.End()

	ctx = context.WithValue(ctx, logoutTargetKey{}, f.cfg.LogoutURI)

	cookies := r.Cookies()
	var sessionID string
	for _, c := range cookies {
		if strings.EqualFold(c.Name, f.cfg.SessionCookieName) && c.Value != "" {
			sessionID = c.Value
			break
		}
	}

	if sessionID != "" {
		if err := f.clearClientContext(ctx, sessionID); err != nil {
			span.RecordError(err)
			if f.logger != nil {
				f.logger.Warn("Failed to clear client context on logout", "error", err)
			}
		}
		if err := f.sessions.Delete(ctx, sessionID); err != nil {
			span.RecordError(err)
			if f.logger != nil {
				f.logger.Warn("Failed to invalidate session on logout", "error", err)
			}
		}
	}

	for _, c := range cookies {
		if !strings.EqualFold(c.Name, f.cfg.SessionCookieName) {
			continue
		}
		http.SetCookie(w, &http.Cookie{
			Name:   c.Name,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		if f.logger != nil {
			f.logger.Debug("Expiring session cookie",
				"cookie", c.Name,
				"comment", "EXPIRING COOKIE at "+strconv.FormatInt(f.now().UnixMilli(), 10))
		}
	}

	w.WriteHeader(http.StatusNoContent)
	f.metrics.IncCounter(MetricLogouts, map[string]string{})

	return r.WithContext(core.ClearAuthentication(ctx))
}

// HandleLogout returns Logout as an http.Handler.
func (f *Filter) HandleLogout() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.Logout(w, r)
	})
}

// clearClientContext removes a bearer token, and with it the redirect
// state, from the stored session, so they are gone even if the session
// cannot be deleted.
func (f *Filter) clearClientContext(ctx context.Context, id string) error {
	sess, err := f.sessions.Load(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if token := sess.AccessToken(); token != nil && token.IsBearer() {
		sess.SetAccessToken(nil)
		if sess.RedirectState() != nil {
			sess.RemoveRedirectState("")
		}
	}
	if !sess.Dirty() {
		return nil
	}
	return f.sessions.Save(ctx, sess)
}
