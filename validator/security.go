package validator

import (
	"errors"
	"strings"
)

var (
	// ErrExcessiveTokenDots is returned when a token has more segments than
	// any JWS or JWE serialization allows.
	ErrExcessiveTokenDots = errors.New("token contains excessive dots")

	// ErrTokenTooLarge is returned for tokens over maxTokenSize bytes.
	ErrTokenTooLarge = errors.New("token exceeds maximum size")

	// ErrTokenEmpty is returned for an empty token.
	ErrTokenEmpty = errors.New("token is empty")
)

const (
	// JWS compact has 2 dots, JWE compact has 4.
	maxTokenDots = 5
	maxTokenSize = 1024 * 1024
)

// validateTokenFormat rejects malformed input before it reaches the parser.
func validateTokenFormat(token string) error {
	switch {
	case token == "":
		return ErrTokenEmpty
	case len(token) > maxTokenSize:
		return ErrTokenTooLarge
	case strings.Count(token, ".") > maxTokenDots:
		return ErrExcessiveTokenDots
	}
	return nil
}
