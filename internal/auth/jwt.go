// Package auth verifies the service tokens that protect the admin
// configuration intake. Tokens are short-lived HS256 JWTs minted by the
// publisher's control plane; this service only validates them.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceTokenExpiry is how long minted service tokens are valid.
// Config pushes are infrequent and scripted, so tokens stay short.
const ServiceTokenExpiry = 15 * time.Minute

// ScopeConfigWrite authorizes replacing the site configuration.
const ScopeConfigWrite = "config:write"

// Predefined token errors.
var (
	ErrInvalidToken = errors.New("invalid service token")
	ErrTokenExpired = errors.New("service token has expired")
	ErrScopeMissing = errors.New("service token lacks required scope")
)

// ServiceClaims represents the claims in admin service tokens.
type ServiceClaims struct {
	jwt.RegisteredClaims

	// Scope lists the granted permissions, space-separated.
	Scope string `json:"scope"`
}

// HasScope reports whether the token grants the given scope.
func (c *ServiceClaims) HasScope(scope string) bool {
	for _, granted := range strings.Fields(c.Scope) {
		if granted == scope {
			return true
		}
	}
	return false
}

// Verifier validates admin service tokens.
type Verifier struct {
	signingKey []byte
	issuer     string
	audience   string
}

// VerifierConfig holds configuration for the token verifier.
type VerifierConfig struct {
	// SigningKey is the shared secret used to sign tokens.
	SigningKey string

	// Issuer is the expected issuer claim (e.g. "https://admin.consentry.io").
	Issuer string

	// Audience is the expected audience claim (e.g. "consentry-api").
	Audience string
}

// NewVerifier creates a service token verifier.
func NewVerifier(cfg VerifierConfig) *Verifier {
	return &Verifier{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
	}
}

// Verify validates a token and checks it grants the required scope.
// It returns the token subject on success.
func (v *Verifier) Verify(tokenString, requiredScope string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*ServiceClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if requiredScope != "" && !claims.HasScope(requiredScope) {
		return "", ErrScopeMissing
	}

	return claims.Subject, nil
}

// Mint creates a signed service token for the given subject and scope.
// Used by the control plane tooling and by tests.
func (v *Verifier) Mint(subject, scope string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ServiceTokenExpiry)

	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{v.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		Scope: scope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(v.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing service token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// generateTokenID generates a unique token ID.
func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
