package middleware

import (
	"html/template"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/penmaen-hall/server/internal/api/problem"
)

// CSRFProtection guards the cookie-authenticated HTML forms with a
// double-submit token. The bearer-token JSON API does not need it.
//
// With secure=false (plain-HTTP development) requests are marked as
// plaintext so the library skips its HTTPS-only Referer check.
func CSRFProtection(authKey []byte, secure bool) func(http.Handler) http.Handler {
	protect := csrf.Protect(authKey,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(csrfErrorHandler)),
	)
	return func(next http.Handler) http.Handler {
		protected := protect(next)
		if secure {
			return protected
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			protected.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	}
}

func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	problem.Write(w, r, http.StatusForbidden, problem.TypeCSRF, "CSRF token validation failed",
		csrf.FailureReason(r), "")
}

// CSRFField returns the hidden form input carrying the token.
func CSRFField(r *http.Request) template.HTML {
	return csrf.TemplateField(r)
}
