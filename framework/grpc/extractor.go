package oauth2grpc

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc/metadata"

	oauth2filter "github.com/oauth2preauth/go-oauth2-filter"
)

// TokenExtractor extracts an access token from the metadata of a call.
type TokenExtractor func(ctx context.Context) (string, error)

// MetadataTokenExtractor reads a Bearer token from the "authorization"
// metadata field.
func MetadataTokenExtractor(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", nil
	}

	values := md.Get("authorization")
	if len(values) == 0 || values[0] == "" {
		return "", nil
	}

	authParts := strings.Fields(values[0])
	if len(authParts) != 2 || !strings.EqualFold(authParts[0], "bearer") {
		return "", fmt.Errorf("%w: authorization metadata format must be 'Bearer {token}'", oauth2filter.ErrTokenMalformed)
	}
	return authParts[1], nil
}

// MetadataFieldTokenExtractor reads the raw token from the metadata field.
func MetadataFieldTokenExtractor(field string) TokenExtractor {
	return func(ctx context.Context) (string, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return "", nil
		}

		values := md.Get(field)
		if len(values) == 0 {
			return "", nil
		}
		return values[0], nil
	}
}

// MultiTokenExtractor runs extractors in order and returns the first
// non-empty token.
func MultiTokenExtractor(extractors ...TokenExtractor) TokenExtractor {
	return func(ctx context.Context) (string, error) {
		for _, ex := range extractors {
			token, err := ex(ctx)
			if err != nil {
				return "", err
			}
			if token != "" {
				return token, nil
			}
		}
		return "", nil
	}
}
