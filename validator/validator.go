package validator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/oauth2preauth/go-oauth2-filter/core"
)

// Signature algorithms
const (
	EdDSA = jwa.EdDSA
	HS256 = jwa.HS256 // HMAC using SHA-256
	HS384 = jwa.HS384 // HMAC using SHA-384
	HS512 = jwa.HS512 // HMAC using SHA-512
	RS256 = jwa.RS256 // RSASSA-PKCS-v1.5 using SHA-256
	RS384 = jwa.RS384 // RSASSA-PKCS-v1.5 using SHA-384
	RS512 = jwa.RS512 // RSASSA-PKCS-v1.5 using SHA-512
	ES256 = jwa.ES256 // ECDSA using P-256 and SHA-256
	ES384 = jwa.ES384 // ECDSA using P-384 and SHA-384
	ES512 = jwa.ES512 // ECDSA using P-521 and SHA-512
	PS256 = jwa.PS256 // RSASSA-PSS using SHA256 and MGF1-SHA256
	PS384 = jwa.PS384 // RSASSA-PSS using SHA384 and MGF1-SHA384
	PS512 = jwa.PS512 // RSASSA-PSS using SHA512 and MGF1-SHA512
)

var allowedSigningAlgorithms = map[jwa.SignatureAlgorithm]bool{
	EdDSA: true,
	HS256: true,
	HS384: true,
	HS512: true,
	RS256: true,
	RS384: true,
	RS512: true,
	ES256: true,
	ES384: true,
	ES512: true,
	PS256: true,
	PS384: true,
	PS512: true,
}

// DefaultPrincipalClaims names the claim the principal is read from when
// none is configured.
var DefaultPrincipalClaims = []string{"sub"}

// KeyFunc returns the key set tokens are verified against.
type KeyFunc func(ctx context.Context) (jwk.Set, error)

// Validator verifies self-contained JWT access tokens locally. It implements
// introspect.Inspector, so it can replace a remote check-token endpoint.
type Validator struct {
	keyFunc         KeyFunc                // Required.
	algorithm       jwa.SignatureAlgorithm // Optional, any allowed algorithm when empty.
	issuer          string
	audiences       []string
	principalClaims []string
	skew            time.Duration
	now             func() time.Time
}

// ValidateToken verifies the signature and registered claims of token.
//
// Failures to obtain the key set wrap core.ErrAuthServerUnreachable; every
// other failure is a *core.ValidationError with code token_rejected.
func (v *Validator) ValidateToken(ctx context.Context, token string) (*ValidatedClaims, error) {
	if err := validateTokenFormat(token); err != nil {
		return nil, rejected("malformed token", err)
	}
	if err := v.checkAlgorithm(token); err != nil {
		return nil, err
	}

	set, err := v.keyFunc(ctx)
	if err != nil {
		return nil, core.NewValidationError(core.ErrorCodeAuthServerUnreachable, "could not get signing keys",
			fmt.Errorf("%w: %w", core.ErrAuthServerUnreachable, err))
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(set, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.skew),
		jwt.WithClock(jwt.ClockFunc(v.now)),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	tok, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		return nil, rejected("could not verify token", err)
	}
	if len(v.audiences) > 0 && !slices.ContainsFunc(tok.Audience(), func(aud string) bool {
		return slices.Contains(v.audiences, aud)
	}) {
		return nil, rejected("token audience not accepted", fmt.Errorf("aud %v", tok.Audience()))
	}

	return &ValidatedClaims{
		RegisteredClaims: registeredClaims(tok),
		Principal:        v.principal(tok),
		Private:          tok.PrivateClaims(),
	}, nil
}

// Inspect implements introspect.Inspector.
func (v *Validator) Inspect(ctx context.Context, token string) (string, error) {
	claims, err := v.ValidateToken(ctx, token)
	if err != nil {
		return "", err
	}
	return claims.Principal, nil
}

func (v *Validator) checkAlgorithm(token string) error {
	if v.algorithm == "" {
		return nil
	}
	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return rejected("could not parse token", err)
	}
	for _, sig := range msg.Signatures() {
		if alg := sig.ProtectedHeaders().Algorithm(); alg != v.algorithm {
			return rejected("unexpected signing algorithm", fmt.Errorf("got %s, want %s", alg, v.algorithm))
		}
	}
	return nil
}

func (v *Validator) principal(tok jwt.Token) string {
	for _, name := range v.principalClaims {
		raw, ok := tok.Get(name)
		if !ok {
			continue
		}
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func rejected(msg string, err error) error {
	return core.NewValidationError(core.ErrorCodeTokenRejected, msg, err)
}
