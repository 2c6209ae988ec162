package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rotisserie/eris"
)

const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrInvalidToken covers bad signatures, wrong algorithms and malformed tokens
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingSubject is returned when a valid token names no user
	ErrMissingSubject = errors.New("token has no subject")
)

// UserClaims are the claims carried by a user bearer token. Subject is the user id.
type UserClaims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// UserID returns the subject.
func (c *UserClaims) UserID() string { return c.Subject }

// HasRole reports whether any of the token's roles grants required.
func (c *UserClaims) HasRole(required Role) bool {
	for _, r := range c.Roles {
		if Role(r).HasPermission(required) {
			return true
		}
	}
	return false
}

// GenerateUserJWT signs a token for userID. Used by the keygen command and tests;
// production tokens are minted by the account service.
func GenerateUserJWT(userID string, roles []Role, secret []byte, ttl time.Duration) (string, int64, error) {
	if len(secret) == 0 {
		return "", 0, eris.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	exp := now.Add(ttl)

	claims := UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	for _, r := range roles {
		claims.Roles = append(claims.Roles, r.String())
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", 0, eris.Wrap(err, "failed to sign token")
	}
	return signed, exp.Unix(), nil
}

// ValidateUserJWT verifies an HS256 token and returns its claims.
func ValidateUserJWT(tokenString string, secret []byte) (*UserClaims, error) {
	claims := &UserClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, eris.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
