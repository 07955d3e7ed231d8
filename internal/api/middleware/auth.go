package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cloo-solutions/coursetutor/internal/api"
	"github.com/cloo-solutions/coursetutor/internal/domain"
)

type contextKey string

const PrincipalKey contextKey = "principal"

const userIDHeader = "X-User-ID"

type AuthValidator interface {
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}

func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			principal, err := validator.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrAPIKeyRevoked) {
					api.Error(w, http.StatusUnauthorized, "api key has been revoked")
					return
				}
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			// Outer middleware only sees the original request; the header map is shared.
			r.Header.Set(userIDHeader, principal.UserID)
			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal returns the authenticated caller, or the zero Principal.
func GetPrincipal(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(PrincipalKey).(domain.Principal)
	return p
}

// authenticatedUserID works both inside and outside the auth middleware.
func authenticatedUserID(r *http.Request) string {
	if p := GetPrincipal(r.Context()); p.UserID != "" {
		return p.UserID
	}
	return r.Header.Get(userIDHeader)
}

// RequireInstructor rejects callers without the instructor role.
func RequireInstructor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetPrincipal(r.Context()).IsInstructor() {
			api.HandleError(w, domain.ErrInstructorOnly)
			return
		}
		next.ServeHTTP(w, r)
	})
}
