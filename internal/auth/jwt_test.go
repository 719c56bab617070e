package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier() *Verifier {
	return NewVerifier(VerifierConfig{
		SigningKey: "test-signing-key-32-bytes-long!!",
		Issuer:     "https://admin.consentry.test",
		Audience:   "consentry-api",
	})
}

func TestVerify_ValidToken(t *testing.T) {
	v := newTestVerifier()

	token, expiresAt, err := v.Mint("deploy-bot", ScopeConfigWrite)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(ServiceTokenExpiry), expiresAt, 5*time.Second)

	subject, err := v.Verify(token, ScopeConfigWrite)
	require.NoError(t, err)
	assert.Equal(t, "deploy-bot", subject)
}

func TestVerify_MissingScope(t *testing.T) {
	v := newTestVerifier()

	token, _, err := v.Mint("deploy-bot", "metrics:read")
	require.NoError(t, err)

	_, err = v.Verify(token, ScopeConfigWrite)
	assert.ErrorIs(t, err, ErrScopeMissing)
}

func TestVerify_MultipleScopes(t *testing.T) {
	v := newTestVerifier()

	token, _, err := v.Mint("deploy-bot", "metrics:read "+ScopeConfigWrite)
	require.NoError(t, err)

	_, err = v.Verify(token, ScopeConfigWrite)
	assert.NoError(t, err)
}

func TestVerify_WrongSigningKey(t *testing.T) {
	other := NewVerifier(VerifierConfig{
		SigningKey: "a-completely-different-secret!!!",
		Issuer:     "https://admin.consentry.test",
		Audience:   "consentry-api",
	})
	token, _, err := other.Mint("deploy-bot", ScopeConfigWrite)
	require.NoError(t, err)

	_, err = newTestVerifier().Verify(token, ScopeConfigWrite)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_WrongIssuer(t *testing.T) {
	other := NewVerifier(VerifierConfig{
		SigningKey: "test-signing-key-32-bytes-long!!",
		Issuer:     "https://evil.example.com",
		Audience:   "consentry-api",
	})
	token, _, err := other.Mint("deploy-bot", ScopeConfigWrite)
	require.NoError(t, err)

	_, err = newTestVerifier().Verify(token, ScopeConfigWrite)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_ExpiredToken(t *testing.T) {
	v := newTestVerifier()

	now := time.Now().Add(-time.Hour)
	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://admin.consentry.test",
			Subject:   "deploy-bot",
			Audience:  jwt.ClaimStrings{"consentry-api"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Scope: ScopeConfigWrite,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("test-signing-key-32-bytes-long!!"))
	require.NoError(t, err)

	_, err = v.Verify(token, ScopeConfigWrite)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_NoneAlgorithmRejected(t *testing.T) {
	v := newTestVerifier()

	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://admin.consentry.test",
			Subject:   "deploy-bot",
			Audience:  jwt.ClaimStrings{"consentry-api"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scope: ScopeConfigWrite,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(token, ScopeConfigWrite)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Garbage(t *testing.T) {
	_, err := newTestVerifier().Verify("not.a.jwt", ScopeConfigWrite)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
