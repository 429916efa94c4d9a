package middleware

import (
	"context"
	"net/http"

	"github.com/penmaen-hall/server/internal/session"
)

// SessionCookieName holds the opaque browser session ID. The credential
// itself stays on the server.
const SessionCookieName = "hall_session"

type providerKey struct{}

// BrowserSessions resolves the session cookie to its Provider. Requests
// without a known session carry no Provider and are treated as anonymous.
type BrowserSessions struct {
	registry *session.Registry
	secure   bool
}

func NewBrowserSessions(registry *session.Registry, secure bool) *BrowserSessions {
	return &BrowserSessions{registry: registry, secure: secure}
}

// Middleware attaches the request's Provider to its context.
func (b *BrowserSessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err == nil && cookie.Value != "" {
			if provider, ok := b.registry.Get(cookie.Value); ok {
				r = r.WithContext(context.WithValue(r.Context(), providerKey{}, provider))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// SignIn authenticates on a fresh Provider. Only when that succeeds does it
// replace the request's session, under a new ID, and set the cookie. A
// failed attempt leaves any existing session as it was.
func (b *BrowserSessions) SignIn(w http.ResponseWriter, r *http.Request, identifier, secret string) (*session.Provider, error) {
	provider := b.registry.Detached(r.Context())
	if err := provider.SignIn(r.Context(), identifier, secret); err != nil {
		provider.Close()
		return nil, err
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		b.registry.Remove(cookie.Value)
	}
	id := b.registry.Adopt(provider)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return provider, nil
}

// End forgets the request's session and expires its cookie.
func (b *BrowserSessions) End(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		b.registry.Remove(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionProvider returns the Provider attached by Middleware, or nil.
func SessionProvider(ctx context.Context) *session.Provider {
	provider, _ := ctx.Value(providerKey{}).(*session.Provider)
	return provider
}

// IsAdmin reports whether the request's browser session may administer
// events.
func IsAdmin(ctx context.Context) bool {
	provider := SessionProvider(ctx)
	return provider != nil && provider.IsAdmin()
}

// RequireAdminSession sends visitors without an admin session to the login
// page.
func RequireAdminSession(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAdmin(r.Context()) {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
