// Package webhookapi is the thin gin-based control surface that ships
// with the core binary: a Plex webhook receiver, JWT-authenticated
// status/history/trigger/undo/backup/mapping endpoints, and a WebSocket
// relay of the observability bus. One long-lived service token rather
// than a multi-user login flow: there is no login endpoint,
// `plexanibridgectl token` mints the token out of band.
package webhookapi

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceClaims is the sole JWT claim shape this surface issues and
// accepts: a named operator, not a multi-tenant user record.
type ServiceClaims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

var (
	ErrInvalidToken = errors.New("webhookapi: invalid token")
	ErrExpiredToken = errors.New("webhookapi: token expired")
)

// TokenIssuer mints and validates service tokens signed with one secret.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer builds an issuer around secret (config.Global.JWTSecret).
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// Mint issues a long-lived token for subject (e.g. "operator"), valid
// for ttl (0 = no expiry, for a genuinely permanent service token).
func (i *TokenIssuer) Mint(subject string, ttl time.Duration) (string, error) {
	claims := ServiceClaims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Subject:  subject,
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate parses and verifies tokenString, returning its claims.
func (i *TokenIssuer) Validate(tokenString string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
