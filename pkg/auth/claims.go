package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/roha-backend/pkg/enums"
)

// AccessTokenPayload is what a caller supplies to mint a token. An empty JTI
// gets a fresh uuid.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ProfileRole
	JTI    string
}

func (p AccessTokenPayload) validate() error {
	if p.UserID == uuid.Nil {
		return errors.New("user id is required")
	}
	if !p.Role.IsValid() {
		return fmt.Errorf("invalid profile role %q", p.Role)
	}
	return nil
}

func (p AccessTokenPayload) claims(issuer string, now time.Time, ttl time.Duration) AccessTokenClaims {
	jti := strings.TrimSpace(p.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	return AccessTokenClaims{
		UserID: p.UserID,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    issuer,
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// AccessTokenClaims is the JWT body. The jti doubles as the refresh
// session key.
type AccessTokenClaims struct {
	UserID uuid.UUID         `json:"user_id"`
	Role   enums.ProfileRole `json:"role"`
	jwt.RegisteredClaims
}

// complete checks the fields every verified token must carry, whether or not
// its lifetime was checked.
func (c *AccessTokenClaims) complete(issuer string) error {
	switch {
	case c.UserID == uuid.Nil || c.ID == "":
		return errors.New("missing subject or session id")
	case c.Subject != "" && c.Subject != c.UserID.String():
		return errors.New("subject does not match user id")
	case !c.Role.IsValid():
		return fmt.Errorf("unknown role %q", c.Role)
	case c.Issuer != issuer:
		return fmt.Errorf("unexpected issuer %q", c.Issuer)
	}
	return nil
}

func (c *AccessTokenClaims) Actor() Actor {
	if c == nil {
		return Anonymous()
	}
	return Actor{UserID: c.UserID, Role: c.Role}
}
