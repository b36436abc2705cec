/*
Package core provides the framework-agnostic pre-authentication sequence.

The Core type resolves the remote principal of a request from its OAuth2
client context, rejects disabled users and grants roles. It has no
dependency on any transport, so the same sequence serves net/http, gin, echo
and gRPC adapters.

# Architecture

	┌─────────────────────────────────────────────┐
	│         Transport Adapters                  │
	│  (net/http Filter, gin, echo, gRPC)         │
	└────────────────┬────────────────────────────┘
	                 │ Attempt
	                 ▼
	┌─────────────────────────────────────────────┐
	│          Core (THIS PACKAGE)                │
	│  • Per-request principal memo               │
	│  • Disabled-user check                      │
	│  • Root / role-source role granting         │
	└───────┬─────────────────────────┬───────────┘
	        ▼                         ▼
	 TokenValidator              RoleResolver
	 (introspect)                (rolesource)

# Sequence

For each Attempt the Core:

 1. returns the memoized principal if the request already resolved one,
 2. adopts the supplied token when the client context holds none,
 3. asks the TokenValidator for a Result (Resolved, RedirectRequired or Failed),
 4. treats a blank principal as no principal,
 5. drops principals of disabled users and notifies the DisabledUserHandler,
 6. grants RoleAdministrator to the root identity, and otherwise the roles of
    the RoleResolver plus RoleAuthenticated.

# Usage

	c, err := core.New(
	    core.WithValidator(introspector),
	    core.WithRoleResolver(rolesource.Static("ROLE_USER")),
	)
	if err != nil {
	    log.Fatal(err)
	}

	ctx := core.WithMemo(r.Context())
	out, err := c.Authenticate(ctx, core.Attempt{Client: sess, SuppliedToken: token})
	switch {
	case err != nil:
	    // validation or role source failure
	case out.RedirectRequired:
	    // send the browser to the authorization server
	case out.Authentication != nil:
	    ctx = core.WithAuthentication(ctx, out.Authentication)
	}

# Failure modes

Validation failures fail the request by default. WithFailOpen(true) lets
requests continue unauthenticated when the authorization server cannot be
reached (see IsUnreachable). Role source failures always fail the request
with ErrRoleSourceUnavailable.
*/
package core
