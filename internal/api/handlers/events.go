package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/penmaen-hall/server/internal/api/problem"
	"github.com/penmaen-hall/server/internal/domain/events"
)

// EventsHandler serves /api/v1/events. Every successful write answers with
// the collection as reloaded from the store.
type EventsHandler struct {
	events EventService
	env    string
}

func NewEventsHandler(svc EventService, env string) *EventsHandler {
	return &EventsHandler{events: svc, env: env}
}

// List handles GET /api/v1/events. With fresh=true the collection is
// reloaded from the store before answering and a failed reload is an
// error; otherwise the cached snapshot is returned as is.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	if fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh")); fresh {
		if err := h.events.Load(r.Context()); err != nil {
			writeEventError(w, r, err, h.env)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.events.List())
}

// Create handles POST /api/v1/events.
func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var fields events.Fields
	if err := decodeJSON(r, &fields); err != nil {
		writeDecodeError(w, r, err, h.env)
		return
	}
	h.mutate(w, r, http.StatusCreated, func(ctx context.Context) error {
		return h.events.Create(ctx, fields)
	})
}

// Update handles PATCH /api/v1/events/{id}.
func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var patch events.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeDecodeError(w, r, err, h.env)
		return
	}
	h.mutate(w, r, http.StatusOK, func(ctx context.Context) error {
		return h.events.Update(ctx, id, patch)
	})
}

// Delete handles DELETE /api/v1/events/{id}.
func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.mutate(w, r, http.StatusOK, func(ctx context.Context) error {
		return h.events.Delete(ctx, id)
	})
}

func (h *EventsHandler) mutate(w http.ResponseWriter, r *http.Request, status int, write func(context.Context) error) {
	if err := write(r.Context()); err != nil {
		writeEventError(w, r, err, h.env)
		return
	}
	writeJSON(w, status, h.events.List())
}

// writeEventError maps synchronizer errors onto problem responses.
func writeEventError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var validation events.ValidationError
	var reload *events.ReloadError
	switch {
	case errors.As(err, &validation):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid event", err, env,
			problem.WithDetail(validation.Error()), problem.WithErrors(validation.Fields))
	case errors.Is(err, events.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Event not found", err, env)
	case errors.As(err, &reload):
		problem.Write(w, r, http.StatusBadGateway, problem.TypeReloadFailed, "Event list could not be refreshed", err, env,
			problem.WithDetail("the "+reload.Op+" was saved but the event list could not be reloaded"))
	case errors.Is(err, events.ErrClosed):
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeServer, "Server shutting down", err, env)
	case errors.Is(err, context.Canceled):
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeUpstream, "Request canceled", err, env)
	default:
		problem.Write(w, r, http.StatusBadGateway, problem.TypeUpstream, "Event store unavailable", err, env)
	}
}
