package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"tutor_gateway/internal/config"
)

const (
	tokenIssuer = "tutor-gateway"

	// DefaultTokenTTL is the lifetime of admin tokens minted by tutorctl.
	DefaultTokenTTL = 12 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoRoles      = errors.New("token carries no valid roles")
)

// AdminClaims are the claims carried by an admin token.
type AdminClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether any of the token's roles grants required.
func (c *AdminClaims) HasRole(required Role) bool {
	for _, r := range c.Roles {
		if Role(r).HasPermission(required) {
			return true
		}
	}
	return false
}

// GenerateAdminJWT signs a token for subject with the given roles
func GenerateAdminJWT(subject string, roles []Role, ttl time.Duration, cfg *config.Config) (string, time.Time, error) {
	if len(roles) == 0 {
		return "", time.Time{}, ErrNoRoles
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if !r.IsValid() {
			return "", time.Time{}, fmt.Errorf("invalid role: %q", r)
		}
		names = append(names, r.String())
	}

	now := time.Now()
	exp := now.Add(ttl)
	claims := AdminClaims{
		Roles: names,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(cfg.JWTSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ValidateAdminJWT verifies signature, expiry and issuer and returns the claims
func ValidateAdminJWT(tokenString string, cfg *config.Config) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.JWTSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || !claims.VerifyIssuer(tokenIssuer, true) {
		return nil, ErrInvalidToken
	}
	if len(claims.Roles) == 0 {
		return nil, ErrNoRoles
	}
	return claims, nil
}
