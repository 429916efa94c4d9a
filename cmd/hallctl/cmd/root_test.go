package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/penmaen-hall/server/internal/api"
	"github.com/penmaen-hall/server/internal/config"
	"github.com/penmaen-hall/server/internal/domain/events"
	"github.com/penmaen-hall/server/internal/session"
	"github.com/penmaen-hall/server/internal/venue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// hallStore is the database behind the test server.
type hallStore struct {
	mu     sync.Mutex
	rows   []events.Event
	nextID int
}

func (s *hallStore) ListByDate(context.Context) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]events.Event(nil), s.rows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Compare(out[j].Date) < 0 })
	return out, nil
}

func (s *hallStore) Insert(_ context.Context, f events.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.rows = append(s.rows, events.Event{
		ID: fmt.Sprintf("evt-%d", s.nextID), CreatedAt: time.Now().UTC(),
		Title: f.Title, Description: f.Description, Date: f.Date,
		StartTime: f.StartTime, EndTime: f.EndTime, Location: f.Location, Type: f.Type,
	})
	return nil
}

func (s *hallStore) Update(_ context.Context, id string, p events.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.ID == id {
			s.rows[i] = p.Apply(row)
			return nil
		}
	}
	return events.ErrNotFound
}

func (s *hallStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.ID == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return events.ErrNotFound
}

// hallIdentity knows one admin and one member and honours sign-out.
type hallIdentity struct {
	mu      sync.Mutex
	revoked map[string]bool
}

var accounts = map[string]struct{ password, token, role string }{
	"clerk@penmaen.org":  {"correct horse", "admin-token", "admin"},
	"member@penmaen.org": {"battery staple", "member-token", "member"},
}

func (i *hallIdentity) SignIn(_ context.Context, email, password string) (session.Credential, error) {
	acct, ok := accounts[email]
	if !ok || acct.password != password {
		return session.Credential{}, session.ErrInvalidCredentials
	}
	i.mu.Lock()
	delete(i.revoked, acct.token)
	i.mu.Unlock()
	return session.Credential{Token: acct.token, Subject: email, Role: acct.role, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (i *hallIdentity) SignOut(_ context.Context, cred session.Credential) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.revoked[cred.Token] = true
	return nil
}

func (i *hallIdentity) Current(ctx context.Context, cred session.Credential) (session.Credential, error) {
	return i.Authenticate(ctx, cred.Token)
}

func (i *hallIdentity) Authenticate(_ context.Context, token string) (session.Credential, error) {
	i.mu.Lock()
	revoked := i.revoked[token]
	i.mu.Unlock()
	for email, acct := range accounts {
		if acct.token == token && !revoked {
			return session.Credential{Token: token, Subject: email, Role: acct.role, ExpiresAt: time.Now().Add(time.Hour)}, nil
		}
	}
	return session.Credential{}, session.ErrNoSession
}

func (i *hallIdentity) Watch(session.Credential, func()) func() { return func() {} }

type noVenue struct{}

func (noVenue) Location(context.Context) venue.Location { return venue.Location{} }

type harness struct {
	t           *testing.T
	server      string
	credentials string
	store       *hallStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("HALL_PASSWORD", "")
	cfg := config.Defaults()
	cfg.Environment = "test"
	cfg.Auth.JWTSecret = "hallctl-test-secret"
	cfg.RateLimit.LoginAttempts = 100

	store := &hallStore{}
	identity := &hallIdentity{revoked: map[string]bool{}}
	syncer := events.NewSynchronizer(store)
	t.Cleanup(syncer.Close)

	router, err := api.NewRouter(api.Deps{
		Config:   cfg,
		Logger:   zerolog.Nop(),
		Events:   syncer,
		Identity: identity,
		Sessions: session.NewRegistry(identity, time.Hour, zerolog.Nop()),
		Venue:    noVenue{},
		Location: time.UTC,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &harness{
		t:           t,
		server:      srv.URL,
		credentials: filepath.Join(t.TempDir(), "credentials.yaml"),
		store:       store,
	}
}

// run executes hallctl against the test server and returns stdout.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	return h.runWithInput("", args...)
}

func (h *harness) runWithInput(stdin string, args ...string) (string, error) {
	h.t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", h.server, "--credentials", h.credentials}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("whoami")
	require.NoError(t, err)
	require.Contains(t, out, "not signed in")

	_, err = h.run("login", "--email", "clerk@penmaen.org", "--password", "wrong")
	require.ErrorContains(t, err, "invalid login credentials")

	out, err = h.runWithInput("correct horse\n", "login", "--email", "clerk@penmaen.org")
	require.NoError(t, err)
	require.Contains(t, out, "signed in as clerk@penmaen.org (admin)")

	out, err = h.run("whoami")
	require.NoError(t, err)
	require.Contains(t, out, "clerk@penmaen.org (admin)")
	require.Contains(t, out, "session expires")

	out, err = h.run("logout")
	require.NoError(t, err)
	require.Contains(t, out, "signed out")

	cred, found, err := session.NewFileStore(h.credentials).Load()
	require.NoError(t, err)
	require.False(t, found, "credential file should be cleared, got %+v", cred)

	out, err = h.run("whoami")
	require.NoError(t, err)
	require.Contains(t, out, "not signed in")
}

func TestEventsRoundTrip(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("events", "list")
	require.NoError(t, err)
	require.Contains(t, out, "no events scheduled")

	_, err = h.run("events", "add", "--title", "Coffee Morning", "--date", "2026-11-07")
	require.ErrorContains(t, err, "admin sign-in is required")

	_, err = h.run("login", "--email", "clerk@penmaen.org", "--password", "correct horse")
	require.NoError(t, err)

	out, err = h.run("events", "add", "--title", "Coffee Morning", "--date", "2026-11-07", "--start", "10:00", "--end", "12:00")
	require.NoError(t, err)
	require.Contains(t, out, `added "Coffee Morning" on 2026-11-07`)
	_, err = h.run("events", "add", "--title", "Harvest Supper", "--date", "2026-10-31", "--type", "Fundraiser")
	require.NoError(t, err)

	out, err = h.run("events", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "2026-10-31")
	require.Contains(t, lines[1], "Harvest Supper")
	require.Contains(t, lines[2], "10:00-12:00")
	require.Contains(t, lines[2], events.DefaultLocation)
	require.Contains(t, lines[2], events.DefaultType)

	out, err = h.run("events", "list", "--from", "2026-11-01", "--json")
	require.NoError(t, err)
	require.Contains(t, out, `"title": "Coffee Morning"`)
	require.NotContains(t, out, "Harvest Supper")

	rows, _ := h.store.ListByDate(context.Background())
	coffee := rows[1].ID
	_, err = h.run("events", "update", coffee, "--title", "Coffee & Cake Morning", "--clear-end")
	require.NoError(t, err)
	rows, _ = h.store.ListByDate(context.Background())
	require.Equal(t, "Coffee & Cake Morning", rows[1].Title)
	require.Nil(t, rows[1].EndTime)
	require.NotNil(t, rows[1].StartTime)

	_, err = h.run("events", "delete", coffee)
	require.NoError(t, err)
	_, err = h.run("events", "delete", coffee)
	require.ErrorContains(t, err, "no longer exists")

	rows, _ = h.store.ListByDate(context.Background())
	require.Len(t, rows, 1)
}

func TestEventWritesNeedAdmin(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("login", "--email", "member@penmaen.org", "--password", "battery staple")
	require.NoError(t, err)

	_, err = h.run("events", "delete", "evt-1")
	require.ErrorContains(t, err, "admin sign-in is required")
}

func TestEventsCommandInputErrors(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing title", args: []string{"events", "add", "--date", "2026-11-07"}, want: "title"},
		{name: "bad date", args: []string{"events", "add", "--title", "Quiz", "--date", "07/11/2026"}, want: "must be YYYY-MM-DD"},
		{name: "bad start", args: []string{"events", "add", "--title", "Quiz", "--date", "2026-11-07", "--start", "7pm"}, want: "--start"},
		{name: "empty update", args: []string{"events", "update", "evt-1"}, want: "nothing to change"},
		{name: "conflicting end flags", args: []string{"events", "update", "evt-1", "--end", "21:00", "--clear-end"}, want: "none of the others can be"},
		{name: "bad from", args: []string{"events", "list", "--from", "soon"}, want: "must be YYYY-MM-DD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.run(tt.args...)
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestServerURLPrecedence(t *testing.T) {
	t.Setenv("HALL_SERVER", "")
	require.Equal(t, defaultServer, (&globalOptions{}).serverURL())

	t.Setenv("HALL_SERVER", "https://penmaenvillagehall.org")
	require.Equal(t, "https://penmaenvillagehall.org", (&globalOptions{}).serverURL())
	require.Equal(t, "http://127.0.0.1:9000", (&globalOptions{server: "http://127.0.0.1:9000"}).serverURL())
}

func TestFormatFieldErrors(t *testing.T) {
	got := formatFieldErrors(map[string]string{"title": "is required", "date": "is required"})
	require.Equal(t, "date is required; title is required", got)
}
