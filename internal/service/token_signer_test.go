package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
)

func TestTokenSignerRoundTrip(t *testing.T) {
	signer := NewTokenSigner("test-secret", "invoyq-test")

	token, err := signer.Issue("user-42", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", subject)
}

func TestTokenSignerRejectsExpired(t *testing.T) {
	signer := NewTokenSigner("test-secret", "invoyq-test")

	token, err := signer.Issue("user-42", -time.Minute)
	require.NoError(t, err)

	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestTokenSignerRejectsWrongSecret(t *testing.T) {
	signer := NewTokenSigner("test-secret", "invoyq-test")
	other := NewTokenSigner("other-secret", "invoyq-test")

	token, err := other.Issue("user-42", time.Minute)
	require.NoError(t, err)

	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestTokenSignerRejectsUnsignedAlgorithm(t *testing.T) {
	signer := NewTokenSigner("test-secret", "invoyq-test")

	claims := jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestTokenSignerRejectsEmptySubject(t *testing.T) {
	signer := NewTokenSigner("test-secret", "invoyq-test")

	token, err := signer.Issue("", time.Minute)
	require.NoError(t, err)

	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestTokenSignerRejectsGarbage(t *testing.T) {
	signer := NewTokenSigner("test-secret", "invoyq-test")

	_, err := signer.Verify("not.a.jwt")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
