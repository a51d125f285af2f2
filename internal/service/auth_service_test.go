package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthService("auth-test-signing-key", time.Hour, "admin", string(hash))
}

func TestIssueAndVerifyToken(t *testing.T) {
	svc := newTestAuthService(t)

	token, expiresAt, err := svc.IssueToken("admin", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
}

func TestIssueTokenRejectsWrongPassword(t *testing.T) {
	svc := newTestAuthService(t)

	_, _, err := svc.IssueToken("admin", "guess")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestIssueTokenRejectsUnknownUser(t *testing.T) {
	svc := newTestAuthService(t)

	_, _, err := svc.IssueToken("root", "s3cret")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestVerifyTokenRejectsForeignSignature(t *testing.T) {
	svc := newTestAuthService(t)
	other := NewAuthService("another-signing-key", time.Hour, "admin", "")

	token, _, err := svc.IssueToken("admin", "s3cret")
	require.NoError(t, err)

	_, err = other.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	svc := newTestAuthService(t)

	_, err := svc.VerifyToken("not-a-token")
	assert.Error(t, err)
}
