// Package services provides technical concerns like admin tokens and the rule cache
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestTokenService creates a token service for testing with symmetric key
func createTestTokenService() (TokenService, error) {
	return NewTokenService(
		15*time.Minute,
		7*24*time.Hour,
		"test-issuer",
		"test-audience",
		false, // useRSAKeys
		"",    // privateKeyPEM
		"",    // publicKeyPEM
		"test-secret-key-for-jwt-signing-32-chars", // secretKey
	)
}

func TestNewTokenService(t *testing.T) {
	t.Run("ValidSymmetricKeyConfiguration", func(t *testing.T) {
		service, err := createTestTokenService()
		require.NoError(t, err)
		assert.NotNil(t, service)
	})

	t.Run("MissingSecretKey", func(t *testing.T) {
		_, err := NewTokenService(
			15*time.Minute, 7*24*time.Hour,
			"test-issuer", "test-audience",
			false, "", "", "",
		)
		require.Error(t, err)
	})

	t.Run("RSAWithoutKeys", func(t *testing.T) {
		_, err := NewTokenService(
			15*time.Minute, 7*24*time.Hour,
			"test-issuer", "test-audience",
			true, "", "", "",
		)
		require.Error(t, err)
	})
}

func TestGenerateAdminTokens(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	accessToken, refreshToken, err := service.GenerateAdminTokens(42)
	require.NoError(t, err)
	assert.NotEmpty(t, accessToken)
	assert.NotEmpty(t, refreshToken)
	assert.NotEqual(t, accessToken, refreshToken)
}

func TestValidateAdminToken(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	t.Run("ValidAccessToken", func(t *testing.T) {
		accessToken, _, err := service.GenerateAdminTokens(42)
		require.NoError(t, err)

		claims, err := service.ValidateAdminToken(accessToken)
		require.NoError(t, err)
		assert.Equal(t, uint(42), claims.AdminID)
		assert.Equal(t, "access", claims.TokenType)
		assert.NotEmpty(t, claims.TokenID)
		assert.True(t, claims.ExpiresAt.After(time.Now()))
	})

	t.Run("RefreshTokenCarriesRefreshType", func(t *testing.T) {
		_, refreshToken, err := service.GenerateAdminTokens(42)
		require.NoError(t, err)

		claims, err := service.ValidateAdminToken(refreshToken)
		require.NoError(t, err)
		assert.Equal(t, "refresh", claims.TokenType)
	})

	t.Run("MalformedToken", func(t *testing.T) {
		_, err := service.ValidateAdminToken("not.a.jwt")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("WrongSigningKey", func(t *testing.T) {
		other, err := NewTokenService(
			15*time.Minute, 7*24*time.Hour,
			"test-issuer", "test-audience",
			false, "", "", "a-completely-different-32-char-secret!!",
		)
		require.NoError(t, err)

		accessToken, _, err := other.GenerateAdminTokens(42)
		require.NoError(t, err)

		_, err = service.ValidateAdminToken(accessToken)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		expiring, err := NewTokenService(
			-1*time.Minute, -1*time.Minute,
			"test-issuer", "test-audience",
			false, "", "", "test-secret-key-for-jwt-signing-32-chars",
		)
		require.NoError(t, err)

		accessToken, _, err := expiring.GenerateAdminTokens(42)
		require.NoError(t, err)

		_, err = expiring.ValidateAdminToken(accessToken)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})
}

func TestRefreshAdminToken(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	t.Run("RefreshTokenMintsNewPair", func(t *testing.T) {
		_, refreshToken, err := service.GenerateAdminTokens(42)
		require.NoError(t, err)

		newAccess, newRefresh, err := service.RefreshAdminToken(refreshToken)
		require.NoError(t, err)
		assert.NotEmpty(t, newAccess)
		assert.NotEmpty(t, newRefresh)

		claims, err := service.ValidateAdminToken(newAccess)
		require.NoError(t, err)
		assert.Equal(t, uint(42), claims.AdminID)
	})

	t.Run("AccessTokenRejected", func(t *testing.T) {
		accessToken, _, err := service.GenerateAdminTokens(42)
		require.NoError(t, err)

		_, _, err = service.RefreshAdminToken(accessToken)
		require.Error(t, err)
	})
}

func TestRevokeToken(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	accessToken, _, err := service.GenerateAdminTokens(42)
	require.NoError(t, err)

	claims, err := service.ValidateAdminToken(accessToken)
	require.NoError(t, err)
	assert.False(t, service.IsTokenRevoked(claims.TokenID))

	require.NoError(t, service.RevokeToken(accessToken))
	assert.True(t, service.IsTokenRevoked(claims.TokenID))

	_, err = service.ValidateAdminToken(accessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}
