// Package auth issues and verifies the signed player tokens that gate the
// websocket endpoint. Tokens are HS256 JWTs carrying the player identity;
// the game server is both issuer and sole audience, so a shared secret is
// sufficient.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pcollard/wordhall/internal/config"
)

// ErrInvalidToken is returned for tokens that fail to parse, carry the
// wrong signing method, or are expired.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload. PlayerID is the stable identity a room keys
// sessions by; Name is for display only.
type Claims struct {
	PlayerID string `json:"pid"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// Manager signs and verifies player tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager creates a Manager from the auth configuration.
//
// Precondition: cfg must pass Validate (non-empty secret, positive TTL).
func NewManager(cfg config.AuthConfig) *Manager {
	return &Manager{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TokenTTL,
	}
}

// Issue signs a token for the given player.
//
// Postcondition: Returns a compact JWS valid for the configured TTL.
func (m *Manager) Issue(playerID, name string) (string, error) {
	now := time.Now()
	claims := Claims{
		PlayerID: playerID,
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			Subject:   playerID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token for %s: %w", playerID, err)
	}
	return signed, nil
}

// Verify parses and validates a token string.
//
// Postcondition: Returns the claims, or ErrInvalidToken. No partial claims
// are ever returned alongside an error.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.PlayerID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
