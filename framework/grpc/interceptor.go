// Package oauth2grpc authenticates gRPC calls with an oauth2filter.Filter.
//
// gRPC has no browser to redirect and no session cookie, so a call must
// carry its access token in the "authorization" metadata. The token is
// authenticated with Filter.AuthenticateToken and the resulting
// core.Authentication is installed in the handler's context.
package oauth2grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	oauth2filter "github.com/oauth2preauth/go-oauth2-filter"
	"github.com/oauth2preauth/go-oauth2-filter/core"
)

// Interceptor provides configurable OAuth2 authentication for gRPC.
type Interceptor struct {
	filter              *oauth2filter.Filter
	tokenExtractor      TokenExtractor
	credentialsOptional bool
	exclusionChecker    func(method string) bool
	logger              core.Logger
}

// New creates an Interceptor authenticating with f.
func New(f *oauth2filter.Filter, opts ...Option) *Interceptor {
	i := &Interceptor{
		filter:         f,
		tokenExtractor: MetadataTokenExtractor,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// authenticate returns ctx with the authentication of the call installed.
func (i *Interceptor) authenticate(ctx context.Context, method string) (context.Context, error) {
	if i.exclusionChecker != nil && i.exclusionChecker(method) {
		if i.logger != nil {
			i.logger.Debug("Method excluded from authentication", "method", method)
		}
		return ctx, nil
	}

	token, err := i.tokenExtractor(ctx)
	if err != nil {
		if i.logger != nil {
			i.logger.Warn("Error extracting token", "method", method, "error", err)
		}
		return nil, status.Errorf(codes.Unauthenticated, "error extracting token: %v", err)
	}

	if token == "" && i.credentialsOptional {
		return ctx, nil
	}

	auth, err := i.filter.AuthenticateToken(ctx, token)
	if err != nil {
		if errors.Is(err, oauth2filter.ErrNoPrincipal) && i.credentialsOptional {
			return ctx, nil
		}
		if i.logger != nil {
			i.logger.Warn("Authentication failed", "method", method, "error", err)
		}
		return nil, statusFromError(err)
	}

	if i.logger != nil {
		i.logger.Debug("Call authenticated", "method", method, "principal", auth.Principal())
	}
	return core.WithAuthentication(ctx, auth), nil
}

// statusFromError maps authentication failures to gRPC status codes.
func statusFromError(err error) error {
	switch {
	case core.IsUnreachable(err), errors.Is(err, core.ErrRoleSourceUnavailable):
		return status.Error(codes.Unavailable, "authentication is temporarily unavailable")
	case errors.Is(err, oauth2filter.ErrNoPrincipal):
		return status.Error(codes.Unauthenticated, "access token is missing")
	case errors.Is(err, core.ErrValidationFailed):
		return status.Error(codes.Unauthenticated, "access token is invalid")
	default:
		return status.Error(codes.Internal, "authentication failed")
	}
}

// UnaryServerInterceptor returns a gRPC unary server interceptor.
func (i *Interceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		authCtx, err := i.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(authCtx, req)
	}
}

// StreamServerInterceptor returns a gRPC stream server interceptor.
func (i *Interceptor) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		authCtx, err := i.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: authCtx})
	}
}

// wrappedServerStream wraps a grpc.ServerStream to override the context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
