// Package handlers implements the JSON API and the server-rendered pages.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/penmaen-hall/server/internal/api/problem"
	"github.com/penmaen-hall/server/internal/domain/events"
	"github.com/penmaen-hall/server/internal/venue"
)

// EventService is the synchronized event collection. *events.Synchronizer
// implements it.
type EventService interface {
	List() events.Snapshot
	Load(ctx context.Context) error
	Create(ctx context.Context, fields events.Fields) error
	Update(ctx context.Context, id string, patch events.Patch) error
	Delete(ctx context.Context, id string) error
}

// VenueLocator resolves the hall's location. *venue.Locator implements it.
type VenueLocator interface {
	Location(ctx context.Context) venue.Location
}

var errBodyTooLarge = errors.New("request body too large")

// decodeJSON reads a single JSON value into dst, rejecting unknown fields
// and trailing data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid JSON: unexpected data after body")
	}
	return nil
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error, env string) {
	if errors.Is(err, errBodyTooLarge) {
		problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Request body too large", err, env)
		return
	}
	problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request body", err, env,
		problem.WithDetail(err.Error()))
}
