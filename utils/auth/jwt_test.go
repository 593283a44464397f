package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTManager() *JWTManager {
	return NewJWTManager(JWTConfig{
		Secret:        "test-secret",
		Expiry:        time.Hour,
		RefreshExpiry: 24 * time.Hour,
		Issuer:        "course-market-test",
	})
}

func TestRefreshAccessTokenMintsAccessToken(t *testing.T) {
	m := testJWTManager()

	refreshToken, _, err := m.GenerateRefreshToken(42, "student@test.local", "student", 3)
	require.NoError(t, err)

	accessToken, jti, err := m.RefreshAccessToken(refreshToken, 5)
	require.NoError(t, err)
	require.NotEmpty(t, jti)

	claims, err := m.ValidateToken(accessToken)
	require.NoError(t, err)
	assert.Equal(t, "access", claims.TokenType)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "student@test.local", claims.Email)
	// The new token carries the version the caller passed, not the one baked
	// into the refresh token.
	assert.Equal(t, 5, claims.TokenVersion)
}

func TestRefreshAccessTokenRejectsAccessToken(t *testing.T) {
	m := testJWTManager()

	accessToken, _, err := m.GenerateAccessToken(42, "student@test.local", "student", 1)
	require.NoError(t, err)

	_, _, err = m.RefreshAccessToken(accessToken, 1)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshAccessTokenRejectsGarbage(t *testing.T) {
	m := testJWTManager()

	_, _, err := m.RefreshAccessToken("not-a-token", 1)
	assert.Error(t, err)
}

func TestGetTokenExpiry(t *testing.T) {
	m := testJWTManager()

	before := time.Now()
	accessToken, _, err := m.GenerateAccessToken(1, "a@test.local", "student", 0)
	require.NoError(t, err)

	expiry, err := m.GetTokenExpiry(accessToken)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(time.Hour), expiry, 5*time.Second)
}
