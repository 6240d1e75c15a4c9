package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/roha-backend/pkg/config"
)

// ClockSkew is how far a verifier tolerates exp/iat drift between replicas.
const ClockSkew = 30 * time.Second

var (
	ErrTokenExpired = errors.New("access token expired")
	ErrTokenInvalid = errors.New("access token invalid")
)

// Signer issues and verifies HS256 access tokens for one issuer.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewSigner(cfg config.JWTConfig) (*Signer, error) {
	switch {
	case cfg.Secret == "":
		return nil, errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return nil, errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return nil, errors.New("jwt expiration minutes must be positive")
	}
	return &Signer{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: cfg.AccessTokenTTL()}, nil
}

// TTL is the lifetime given to issued tokens.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Issue signs a token for payload valid from now for the configured TTL.
func (s *Signer) Issue(now time.Time, payload AccessTokenPayload) (string, error) {
	if err := payload.validate(); err != nil {
		return "", err
	}
	claims := payload.claims(s.issuer, now, s.ttl)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and lifetime. Failures wrap ErrTokenExpired
// or ErrTokenInvalid.
func (s *Signer) Verify(token string) (*AccessTokenClaims, error) {
	return s.parse(token, jwt.WithLeeway(ClockSkew), jwt.WithIssuedAt())
}

// VerifyIgnoringExpiry checks signature and issuer only. Refresh uses it to
// read the jti of a token that has already lapsed.
func (s *Signer) VerifyIgnoringExpiry(token string) (*AccessTokenClaims, error) {
	return s.parse(token, jwt.WithoutClaimsValidation())
}

func (s *Signer) parse(token string, opts ...jwt.ParserOption) (*AccessTokenClaims, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
	)
	claims := &AccessTokenClaims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	// WithoutClaimsValidation skips the issuer check too
	if err := claims.complete(s.issuer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}

// MintAccessToken is a one-shot Issue for callers without a Signer.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	s, err := NewSigner(cfg)
	if err != nil {
		return "", err
	}
	return s.Issue(now, payload)
}
