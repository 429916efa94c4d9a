package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/penmaen-hall/server/internal/api/problem"
	"github.com/penmaen-hall/server/internal/auth"
	"github.com/penmaen-hall/server/internal/session"
)

// TokenAuthenticator resolves a bearer token to the credential it stands
// for.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (session.Credential, error)
}

type credentialKey struct{}

// BearerAuth requires a valid "Authorization: Bearer" token and attaches
// the resolved credential to the context.
func BearerAuth(authn TokenAuthenticator, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil || token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="hall"`)
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Missing bearer token", nil, env)
				return
			}

			cred, err := authn.Authenticate(r.Context(), token)
			switch {
			case errors.Is(err, session.ErrNoSession):
				w.Header().Set("WWW-Authenticate", `Bearer realm="hall", error="invalid_token"`)
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid or expired token", err, env)
				return
			case err != nil:
				problem.Write(w, r, http.StatusBadGateway, problem.TypeUpstream, "Identity service unavailable", err, env)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), credentialKey{}, cred)))
		})
	}
}

// RequireAdmin rejects authenticated callers without the admin role. It
// must run inside BearerAuth.
func RequireAdmin(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred, ok := Credential(r.Context())
			if !ok || !cred.IsAdmin() {
				problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Admin role required", problem.ErrForbidden, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Credential returns the credential attached by BearerAuth.
func Credential(ctx context.Context) (session.Credential, bool) {
	cred, ok := ctx.Value(credentialKey{}).(session.Credential)
	return cred, ok
}
