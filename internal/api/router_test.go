package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/penmaen-hall/server/internal/config"
	"github.com/penmaen-hall/server/internal/domain/events"
	"github.com/penmaen-hall/server/internal/session"
	"github.com/penmaen-hall/server/internal/venue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// listStore keeps events in insertion order; the tests only add one date.
type listStore struct {
	mu   sync.Mutex
	rows []events.Event
}

func (s *listStore) ListByDate(context.Context) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.rows...), nil
}

func (s *listStore) Insert(_ context.Context, f events.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, events.Event{
		ID:        fmt.Sprintf("evt-%d", len(s.rows)+1),
		CreatedAt: time.Now(),
		Title:     f.Title,
		Date:      f.Date,
		Type:      f.Type,
	})
	return nil
}

func (s *listStore) Update(context.Context, string, events.Patch) error { return events.ErrNotFound }
func (s *listStore) Delete(context.Context, string) error               { return events.ErrNotFound }

type tokenIdentity struct{}

func (tokenIdentity) SignIn(_ context.Context, email, password string) (session.Credential, error) {
	if email == "clerk@penmaen.org" && password == "correct horse" {
		return session.Credential{Token: "admin-token", Subject: email, Role: "admin", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	return session.Credential{}, session.ErrInvalidCredentials
}

func (tokenIdentity) SignOut(context.Context, session.Credential) error { return nil }

func (i tokenIdentity) Current(ctx context.Context, cred session.Credential) (session.Credential, error) {
	return i.Authenticate(ctx, cred.Token)
}

func (tokenIdentity) Authenticate(_ context.Context, token string) (session.Credential, error) {
	switch token {
	case "admin-token":
		return session.Credential{Token: token, Subject: "clerk@penmaen.org", Role: "admin"}, nil
	case "member-token":
		return session.Credential{Token: token, Subject: "member@penmaen.org", Role: "member"}, nil
	}
	return session.Credential{}, session.ErrNoSession
}

func (tokenIdentity) Watch(session.Credential, func()) func() { return func() {} }

type staticVenue struct{}

func (staticVenue) Location(context.Context) venue.Location {
	return venue.Location{Name: "Penmaen Parish Hall", Latitude: 51.575396, Longitude: -4.129141, Source: venue.SourceConfig}
}

func newTestRouter(t *testing.T) (http.Handler, *listStore) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Environment = "test"
	cfg.Auth.JWTSecret = "router-test-secret"
	cfg.RateLimit.LoginAttempts = 3
	cfg.CORS.AllowedOrigins = []string{"https://penmaenchurch.org.uk"}

	store := &listStore{}
	syncer := events.NewSynchronizer(store)
	t.Cleanup(syncer.Close)
	require.NoError(t, syncer.Load(context.Background()))

	router, err := NewRouter(Deps{
		Config:   cfg,
		Logger:   zerolog.Nop(),
		Events:   syncer,
		Identity: tokenIdentity{},
		Sessions: session.NewRegistry(tokenIdentity{}, time.Hour, zerolog.Nop()),
		Venue:    staticVenue{},
		Location: time.UTC,
		Build:    BuildInfo{Version: "1.2.0", GitCommit: "abc123"},
	})
	require.NoError(t, err)
	return router, store
}

func do(router http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PublicRoutes(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		target      string
		wantCode    int
		wantType    string
		wantContent string
	}{
		{target: "/", wantCode: http.StatusOK, wantType: "text/html; charset=utf-8", wantContent: "1926 - 2026"},
		{target: "/hall", wantCode: http.StatusOK, wantType: "text/html; charset=utf-8"},
		{target: "/churches", wantCode: http.StatusOK, wantType: "text/html; charset=utf-8"},
		{target: "/committee", wantCode: http.StatusOK, wantType: "text/html; charset=utf-8"},
		{target: "/contact", wantCode: http.StatusOK, wantType: "text/html; charset=utf-8", wantContent: "Penmaen Parish Hall"},
		{target: "/hall/events", wantCode: http.StatusOK, wantType: "text/html; charset=utf-8", wantContent: "No upcoming events"},
		{target: "/hall/login", wantCode: http.StatusOK, wantType: "text/html; charset=utf-8", wantContent: "gorilla.csrf.Token"},
		{target: "/no-such-page", wantCode: http.StatusNotFound, wantType: "text/html; charset=utf-8"},
		{target: "/api/v1/events", wantCode: http.StatusOK, wantType: "application/json", wantContent: `"events":[]`},
		{target: "/api/v1/venue", wantCode: http.StatusOK, wantType: "application/json"},
		{target: "/api/v1/openapi.json", wantCode: http.StatusOK, wantType: "application/json"},
		{target: "/events.ics", wantCode: http.StatusOK, wantType: "text/calendar; charset=utf-8", wantContent: "BEGIN:VCALENDAR"},
		{target: "/version", wantCode: http.StatusOK, wantType: "application/json", wantContent: "1.2.0"},
		{target: "/robots.txt", wantCode: http.StatusOK},
		{target: "/static/site.css", wantCode: http.StatusOK},
		{target: "/metrics", wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(router, http.MethodGet, tt.target, "", nil)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantType != "" {
				require.Equal(t, tt.wantType, rec.Header().Get("Content-Type"))
			}
			if tt.wantContent != "" {
				require.Contains(t, rec.Body.String(), tt.wantContent)
			}
			require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
			require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestRouter_APIWritesNeedAdminToken(t *testing.T) {
	router, store := newTestRouter(t)
	body := `{"title":"Quiz Night","date":"2026-11-20"}`

	rec := do(router, http.MethodPost, "/api/v1/events", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(router, http.MethodPost, "/api/v1/events", body, map[string]string{"Authorization": "Bearer member-token"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, store.rows)

	rec = do(router, http.MethodPost, "/api/v1/events", body, map[string]string{"Authorization": "Bearer admin-token"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), "Quiz Night")
	require.Len(t, store.rows, 1)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(router, http.MethodPut, "/api/v1/events", "{}", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}

func TestRouter_AdminPagesRedirectVisitors(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, target := range []string{"/hall/events/new", "/hall/events/evt-1/edit", "/hall/events/evt-1/delete"} {
		rec := do(router, http.MethodGet, target, "", nil)
		require.Equal(t, http.StatusSeeOther, rec.Code, target)
		require.Equal(t, "/hall/login", rec.Header().Get("Location"), target)
	}
}

func TestRouter_FormPostWithoutCSRFToken(t *testing.T) {
	router, store := newTestRouter(t)

	rec := do(router, http.MethodPost, "/hall/events", "title=Quiz+Night&date=2026-11-20",
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, store.rows)
}

func TestRouter_LoginIsRateLimited(t *testing.T) {
	router, _ := newTestRouter(t)
	body := `{"email":"clerk@penmaen.org","password":"guess"}`

	for i := 0; i < 3; i++ {
		rec := do(router, http.MethodPost, "/api/v1/auth/login", body, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := do(router, http.MethodPost, "/api/v1/auth/login", body, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRouter_PublicReadsAllowListedOrigins(t *testing.T) {
	router, _ := newTestRouter(t)
	church := map[string]string{"Origin": "https://penmaenchurch.org.uk"}

	for _, target := range []string{"/api/v1/events", "/api/v1/venue", "/events.ics"} {
		rec := do(router, http.MethodGet, target, "", church)
		require.Equal(t, http.StatusOK, rec.Code, target)
		require.Equal(t, "https://penmaenchurch.org.uk", rec.Header().Get("Access-Control-Allow-Origin"), target)
	}

	rec := do(router, http.MethodOptions, "/api/v1/events", "", church)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotContains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	rec = do(router, http.MethodGet, "/api/v1/auth/session", "", church)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMethodMux(t *testing.T) {
	mux := methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("GET response"))
		}),
		http.MethodPost: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}),
	})

	tests := []struct {
		method     string
		wantStatus int
		wantAllow  string
	}{
		{method: http.MethodGet, wantStatus: http.StatusOK},
		{method: http.MethodHead, wantStatus: http.StatusOK},
		{method: http.MethodPost, wantStatus: http.StatusCreated},
		{method: http.MethodPut, wantStatus: http.StatusMethodNotAllowed, wantAllow: "GET, POST"},
		{method: http.MethodOptions, wantStatus: http.StatusMethodNotAllowed, wantAllow: "GET, POST"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, "/test", nil))
			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, tt.wantAllow, rec.Header().Get("Allow"))
		})
	}
}

func TestAllowedMethods(t *testing.T) {
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	require.Equal(t, "GET", allowedMethods(map[string]http.Handler{http.MethodGet: noop}))
	require.Equal(t, "DELETE, GET, PATCH, POST", allowedMethods(map[string]http.Handler{
		http.MethodPatch: noop, http.MethodGet: noop, http.MethodDelete: noop, http.MethodPost: noop,
	}))
}
