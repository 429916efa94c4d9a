package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/penmaen-hall/server/internal/api/problem"
	"github.com/penmaen-hall/server/internal/domain/events"
	"github.com/penmaen-hall/server/internal/venue"
	"github.com/stretchr/testify/require"
)

// hallStore is an in-memory events.Store ordered the way the database
// orders rows.
type hallStore struct {
	mu       sync.Mutex
	rows     map[string]events.Event
	next     int
	listErr  error
	writeErr error
}

func newHallStore(seed ...events.Fields) *hallStore {
	s := &hallStore{rows: map[string]events.Event{}}
	for _, f := range seed {
		_ = s.Insert(context.Background(), f)
	}
	return s
}

func (s *hallStore) ListByDate(context.Context) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]events.Event, 0, len(s.rows))
	for _, e := range s.rows {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *hallStore) Insert(_ context.Context, f events.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.next++
	id := fmt.Sprintf("evt-%d", s.next)
	s.rows[id] = events.Event{
		ID:          id,
		CreatedAt:   time.Date(2026, 1, 1, 9, 0, s.next, 0, time.UTC),
		Title:       f.Title,
		Description: f.Description,
		Date:        f.Date,
		StartTime:   f.StartTime,
		EndTime:     f.EndTime,
		Location:    f.Location,
		Type:        f.Type,
	}
	return nil
}

func (s *hallStore) Update(_ context.Context, id string, p events.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	row, ok := s.rows[id]
	if !ok {
		return events.ErrNotFound
	}
	s.rows[id] = p.Apply(row)
	return nil
}

func (s *hallStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	if _, ok := s.rows[id]; !ok {
		return events.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *hallStore) failLists(err error) {
	s.mu.Lock()
	s.listErr = err
	s.mu.Unlock()
}

func coffeeMorning() events.Fields {
	start, end := events.TimeOfDay{Hour: 10}, events.TimeOfDay{Hour: 12}
	return events.Fields{
		Title:     "Coffee Morning",
		Date:      events.MustParseDate("2026-11-07"),
		StartTime: &start,
		EndTime:   &end,
		Location:  "Village Hall",
		Type:      "Community",
	}
}

func newLoadedSync(t *testing.T, store *hallStore) *events.Synchronizer {
	t.Helper()
	syncer := events.NewSynchronizer(store)
	t.Cleanup(syncer.Close)
	require.NoError(t, syncer.Load(context.Background()))
	return syncer
}

type fixedVenue struct{}

func (fixedVenue) Location(context.Context) venue.Location {
	return venue.Location{
		Name:      "Penmaen Parish Hall",
		Address:   "Penmaen, Gower, Swansea SA3 2HH",
		Latitude:  51.575396,
		Longitude: -4.129141,
		Source:    venue.SourceConfig,
	}
}

func serveJSON(t *testing.T, handler http.HandlerFunc, method, target, body string, pathID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if pathID != "" {
		req.SetPathValue("id", pathID)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) events.Snapshot {
	t.Helper()
	var snap events.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	return snap
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problem.ProblemDetails {
	t.Helper()
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p problem.ProblemDetails
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	return p
}

func TestEventsHandler_List(t *testing.T) {
	store := newHallStore(coffeeMorning())
	h := NewEventsHandler(newLoadedSync(t, store), "test")

	rec := serveJSON(t, h.List, http.MethodGet, "/api/v1/events", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeSnapshot(t, rec)
	require.False(t, snap.Loading)
	require.Len(t, snap.Events, 1)
	require.Equal(t, "Coffee Morning", snap.Events[0].Title)
	require.Equal(t, "10:00", snap.Events[0].StartTime.Short())
}

func TestEventsHandler_ListFresh(t *testing.T) {
	store := newHallStore(coffeeMorning())
	h := NewEventsHandler(newLoadedSync(t, store), "test")

	// Written behind the synchronizer's back.
	require.NoError(t, store.Insert(context.Background(), events.Fields{Title: "Quiz Night", Date: events.MustParseDate("2026-11-01")}))

	rec := serveJSON(t, h.List, http.MethodGet, "/api/v1/events", "", "")
	require.Len(t, decodeSnapshot(t, rec).Events, 1)

	rec = serveJSON(t, h.List, http.MethodGet, "/api/v1/events?fresh=true", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeSnapshot(t, rec)
	require.Len(t, snap.Events, 2)
	require.Equal(t, "Quiz Night", snap.Events[0].Title)

	store.failLists(errors.New("connection refused"))
	rec = serveJSON(t, h.List, http.MethodGet, "/api/v1/events?fresh=true", "", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, problem.TypeUpstream, decodeProblem(t, rec).Type)
}

func TestEventsHandler_CreateReturnsReloadedCollection(t *testing.T) {
	store := newHallStore(coffeeMorning())
	h := NewEventsHandler(newLoadedSync(t, store), "test")

	rec := serveJSON(t, h.Create, http.MethodPost, "/api/v1/events",
		`{"title":"Art Class","date":"2026-10-30","start_time":"14:00","type":"Class"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	snap := decodeSnapshot(t, rec)
	require.Len(t, snap.Events, 2)
	require.Equal(t, "Art Class", snap.Events[0].Title)
	require.NotEmpty(t, snap.Events[0].ID)
	require.Nil(t, snap.Events[0].EndTime)
}

func TestEventsHandler_CreateValidation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantField string
	}{
		{name: "missing title", body: `{"date":"2026-10-30"}`, wantCode: http.StatusBadRequest, wantField: "title"},
		{name: "blank title", body: `{"title":"   ","date":"2026-10-30"}`, wantCode: http.StatusBadRequest, wantField: "title"},
		{name: "missing date", body: `{"title":"Art Class"}`, wantCode: http.StatusBadRequest, wantField: "date"},
		{name: "bad date", body: `{"title":"Art Class","date":"30/10/2026"}`, wantCode: http.StatusBadRequest},
		{name: "unknown field", body: `{"title":"Art Class","date":"2026-10-30","price":5}`, wantCode: http.StatusBadRequest},
		{name: "empty body", body: ``, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newHallStore()
			h := NewEventsHandler(newLoadedSync(t, store), "test")

			rec := serveJSON(t, h.Create, http.MethodPost, "/api/v1/events", tt.body, "")
			require.Equal(t, tt.wantCode, rec.Code)
			p := decodeProblem(t, rec)
			require.Equal(t, problem.TypeValidation, p.Type)
			if tt.wantField != "" {
				require.Contains(t, p.Errors, tt.wantField)
			}
			require.Empty(t, store.rows)
		})
	}
}

func TestEventsHandler_CreateBodyTooLarge(t *testing.T) {
	h := NewEventsHandler(newLoadedSync(t, newHallStore()), "test")

	body := `{"title":"` + strings.Repeat("x", 2048) + `","date":"2026-10-30"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 512)
	h.Create(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, problem.TypeTooLarge, decodeProblem(t, rec).Type)
}

func TestEventsHandler_UpdatePartialAndClear(t *testing.T) {
	store := newHallStore(coffeeMorning())
	h := NewEventsHandler(newLoadedSync(t, store), "test")

	rec := serveJSON(t, h.Update, http.MethodPatch, "/api/v1/events/evt-1",
		`{"title":"Coffee & Cake Morning","end_time":null}`, "evt-1")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeSnapshot(t, rec).Events[0]
	require.Equal(t, "Coffee & Cake Morning", got.Title)
	require.Equal(t, "10:00", got.StartTime.Short())
	require.Nil(t, got.EndTime)
	require.Equal(t, "Village Hall", got.Location)
}

func TestEventsHandler_WriteErrors(t *testing.T) {
	tests := []struct {
		name     string
		prepare  func(*hallStore)
		id       string
		wantCode int
		wantType string
	}{
		{name: "unknown id", id: "evt-404", wantCode: http.StatusNotFound, wantType: problem.TypeNotFound},
		{
			name:     "store down",
			id:       "evt-1",
			prepare:  func(s *hallStore) { s.writeErr = errors.New("connection reset by peer") },
			wantCode: http.StatusBadGateway,
			wantType: problem.TypeUpstream,
		},
		{
			name:     "reload fails after write",
			id:       "evt-1",
			prepare:  func(s *hallStore) { s.failLists(errors.New("timeout")) },
			wantCode: http.StatusBadGateway,
			wantType: problem.TypeReloadFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newHallStore(coffeeMorning())
			syncer := newLoadedSync(t, store)
			h := NewEventsHandler(syncer, "test")
			if tt.prepare != nil {
				tt.prepare(store)
			}

			rec := serveJSON(t, h.Delete, http.MethodDelete, "/api/v1/events/"+tt.id, "", tt.id)
			require.Equal(t, tt.wantCode, rec.Code)
			require.Equal(t, tt.wantType, decodeProblem(t, rec).Type)
		})
	}
}

func TestEventsHandler_DeleteReturnsRemaining(t *testing.T) {
	store := newHallStore(coffeeMorning(), events.Fields{Title: "Quiz Night", Date: events.MustParseDate("2026-11-20")})
	h := NewEventsHandler(newLoadedSync(t, store), "test")

	rec := serveJSON(t, h.Delete, http.MethodDelete, "/api/v1/events/evt-1", "", "evt-1")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeSnapshot(t, rec)
	require.Len(t, snap.Events, 1)
	require.Equal(t, "Quiz Night", snap.Events[0].Title)
}

func TestEventsHandler_ClosedSynchronizer(t *testing.T) {
	syncer := events.NewSynchronizer(newHallStore())
	syncer.Close()
	h := NewEventsHandler(syncer, "test")

	rec := serveJSON(t, h.Create, http.MethodPost, "/api/v1/events", `{"title":"Art Class","date":"2026-10-30"}`, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
