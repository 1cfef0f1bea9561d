package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcollard/wordhall/internal/config"
)

func testManager(ttl time.Duration) *Manager {
	return NewManager(config.AuthConfig{
		Secret:   "test-secret-do-not-use",
		TokenTTL: ttl,
	})
}

func TestIssueAndVerify(t *testing.T) {
	m := testManager(time.Hour)

	token, err := m.Issue("player-1", "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "player-1", claims.PlayerID)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "player-1", claims.Subject)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := testManager(-time.Minute)

	token, err := m.Issue("player-1", "Alice")
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := testManager(time.Hour).Issue("player-1", "Alice")
	require.NoError(t, err)

	other := NewManager(config.AuthConfig{Secret: "different", TokenTTL: time.Hour})
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := testManager(time.Hour)
	for _, tokenStr := range []string{"", "not.a.token", "eyJhbGciOiJub25lIn0.e30."} {
		_, err := m.Verify(tokenStr)
		assert.ErrorIs(t, err, ErrInvalidToken, tokenStr)
	}
}

// A token signed with "none" or an asymmetric method must not pass even if
// its payload is well-formed.
func TestVerifyRejectsWrongMethod(t *testing.T) {
	m := testManager(time.Hour)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		PlayerID: "player-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	tokenStr, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.Verify(tokenStr)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMissingPlayerID(t *testing.T) {
	m := testManager(time.Hour)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	tokenStr, err := token.SignedString([]byte("test-secret-do-not-use"))
	require.NoError(t, err)

	_, err = m.Verify(tokenStr)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
