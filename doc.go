/*
Package oauth2filter provides an OAuth2 pre-authentication filter for net/http.

The filter sits in front of an application and trusts an identity
established by an OAuth2 authorization server. For every request it:

  - validates the access token the request supplies or its session holds,
  - redirects browsers without a token to the authorization server and
    exchanges the authorization code delivered to the callback,
  - resolves the principal named by the token and maps it to roles,
  - installs the resulting core.Authentication in the request context.

The authentication sequence itself lives in package core; this package is
the HTTP adapter around it. Adapters for gin, echo and gRPC live under
framework/.

# Quick Start

	cfg, err := config.Load("filter.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	f, err := oauth2filter.New(
	    oauth2filter.WithConfig(cfg),
	    oauth2filter.WithLogger(slog.Default()),
	)
	if err != nil {
	    log.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.Handle("/logout", f.HandleLogout())
	mux.Handle("/", f.Middleware(app))
	http.ListenAndServe(":8080", mux)

A minimal filter.yaml:

	authorizationUri: https://auth.example/oauth/authorize
	tokenUri: https://auth.example/oauth/token
	checkTokenEndpoint: https://auth.example/oauth/check_token
	clientId: my-app
	clientSecret: ${CLIENT_SECRET}
	scopes: read,write
	redirectUri: https://app.example/callback
	logoutUri: https://auth.example/logout
	roleSource: Static
	staticRoles: [ROLE_USER]

# Accessing the Authentication

	func app(w http.ResponseWriter, r *http.Request) {
	    auth, err := core.AuthenticationFrom(r.Context())
	    if err != nil {
	        http.Error(w, "Unauthorized", http.StatusUnauthorized)
	        return
	    }
	    if auth.HasRole("ROLE_USER") {
	        fmt.Fprintf(w, "hello %s", auth.Principal())
	    }
	}

Requests without a principal continue unauthenticated; access decisions
belong to the application.

# Roles

Roles come from the roleSource of the configuration: a fixed list
(Static), a user-group service (UserGroupService), a role service
(RoleService) or a request header (Header). Services are looked up by name
in the registry passed with WithRegistry. Every principal gets
core.RoleAuthenticated exactly once; the root identity ("admin" unless
configured otherwise) gets only core.RoleAdministrator and never reaches
the role source.

# Sessions and Caching

The token and the pending redirect state of a browser are kept in a
session.Store keyed by the session cookie (JSESSIONID by default). API
clients supplying a token without a session cookie are never given a
session; with WithAuthenticationCache their authentications are cached by
the SHA-256 of the token.

# Error Handling

Failures reach the ErrorHandler. DefaultErrorHandler answers 401 for
invalid tokens, 503 when the authorization server or the role source is
unavailable and 500 otherwise. WithFailOpen turns an unreachable
authorization server into an unauthenticated request instead.

# Logout

Logout drops the token and redirect state, deletes the session, expires
the session cookie, answers 204 and records the configured logout URI for
LogoutRedirectTarget.

# Observability

WithLogger accepts any slog-shaped logger; NewLogrusLogger, NewZapLogger
and NewZerologLogger adapt the common libraries. WithTracer with
NewOpenTelemetryTracer records one span per authentication and per logout,
and WithMetrics with NewPrometheusMetrics counts outcomes, redirects and
logouts.
*/
package oauth2filter
