package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/chatsync/internal/auth"
)

func TestIssueAndVerify(t *testing.T) {
	tokens := auth.NewTokens("0123456789abcdef", time.Hour)

	tok, err := tokens.Issue("u1")
	require.NoError(t, err)

	userID, err := tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestVerify_Rejects(t *testing.T) {
	tokens := auth.NewTokens("0123456789abcdef", time.Hour)

	other, err := auth.NewTokens("a-different-secret", time.Hour).Issue("u1")
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "chatsync-dev",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte("0123456789abcdef"))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1", Issuer: "chatsync-dev"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": other,
		"expired":      expired,
		"alg none":     noneAlg,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Verify(tok)
			assert.True(t, errors.Is(err, auth.ErrInvalidToken), "got %v", err)
		})
	}
}

func TestIssue_EmptyUser(t *testing.T) {
	_, err := auth.NewTokens("0123456789abcdef", 0).Issue("")
	assert.Error(t, err)
}
