package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactbook/apiserver/config"
	"github.com/contactbook/apiserver/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		VerifyTokenTTL:  24 * time.Hour,
		ResetTokenTTL:   30 * time.Minute,
		BcryptCost:      4,
	})
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService(config.AuthConfig{})
	assert.Error(t, err)
}

func TestHashAndVerifyPassword(t *testing.T) {
	svc := newTestService(t)

	hash, err := svc.HashPassword("s3cret-password")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-password", hash)

	assert.True(t, svc.VerifyPassword("s3cret-password", hash))
	assert.False(t, svc.VerifyPassword("wrong-password", hash))
	assert.False(t, svc.VerifyPassword("s3cret-password", "not-a-hash"))
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.IssueAccessToken("alice@example.com", types.RoleAdmin)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token, PurposeAccess)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Subject)
	assert.Equal(t, types.RoleAdmin, claims.Role)
	assert.Equal(t, PurposeAccess, claims.Purpose)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ValidateToken("not-a-token", PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc := newTestService(t)
	other, err := NewService(config.AuthConfig{JWTSecret: "other-secret"})
	require.NoError(t, err)

	token, err := svc.IssueAccessToken("alice@example.com", types.RoleUser)
	require.NoError(t, err)

	_, err = other.ValidateToken(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenExpiry(t *testing.T) {
	svc := newTestService(t)

	issued := time.Now()
	svc.WithClock(func() time.Time { return issued })

	token, err := svc.IssueAccessToken("alice@example.com", types.RoleUser)
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return issued.Add(29 * time.Minute) })
	_, err = svc.ValidateToken(token, PurposeAccess)
	assert.NoError(t, err)

	svc.WithClock(func() time.Time { return issued.Add(31 * time.Minute) })
	_, err = svc.ValidateToken(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenPurposeIsolation(t *testing.T) {
	svc := newTestService(t)

	verifyToken, err := svc.IssueVerificationToken("alice@example.com")
	require.NoError(t, err)
	resetToken, err := svc.IssueResetToken("alice@example.com")
	require.NoError(t, err)
	refreshToken, err := svc.IssueRefreshToken("alice@example.com", types.RoleUser)
	require.NoError(t, err)

	// Each purpose validates only against itself.
	_, err = svc.ValidateToken(verifyToken, PurposeVerify)
	assert.NoError(t, err)
	_, err = svc.ValidateToken(resetToken, PurposeReset)
	assert.NoError(t, err)

	_, err = svc.ValidateToken(verifyToken, PurposeReset)
	assert.ErrorIs(t, err, ErrWrongPurpose)
	_, err = svc.ValidateToken(resetToken, PurposeVerify)
	assert.ErrorIs(t, err, ErrWrongPurpose)
	_, err = svc.ValidateToken(refreshToken, PurposeAccess)
	assert.ErrorIs(t, err, ErrWrongPurpose)
	_, err = svc.ValidateToken(verifyToken, PurposeAccess)
	assert.ErrorIs(t, err, ErrWrongPurpose)
}

func TestIssueRequiresSubject(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.IssueAccessToken("", types.RoleUser)
	assert.Error(t, err)
}
