package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/consentry/consentry/internal/api/models"
	"github.com/consentry/consentry/internal/auth"
)

// subjectKey is the context key for the authenticated token subject.
type subjectKey struct{}

// Auth creates authentication middleware that validates admin service
// tokens and requires the given scope.
func Auth(verifier *auth.Verifier, requiredScope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract bearer token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			// Check for Bearer prefix (case-insensitive)
			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			tokenString := authHeader[len(bearerPrefix):]
			if tokenString == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			subject, err := verifier.Verify(tokenString, requiredScope)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "service token has expired")
				case errors.Is(err, auth.ErrScopeMissing):
					writeUnauthorized(w, r, "service token lacks required scope")
				case errors.Is(err, auth.ErrInvalidToken):
					writeUnauthorized(w, r, "invalid service token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			// Add token subject to context
			ctx := context.WithValue(r.Context(), subjectKey{}, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetSubject retrieves the authenticated token subject from the context.
// Returns an empty string if not authenticated.
func GetSubject(ctx context.Context) string {
	if subject, ok := ctx.Value(subjectKey{}).(string); ok {
		return subject
	}
	return ""
}
