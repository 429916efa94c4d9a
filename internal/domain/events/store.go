package events

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no event matches the given id.
	ErrNotFound = errors.New("event not found")

	// ErrClosed is returned by a Synchronizer after Close.
	ErrClosed = errors.New("event synchronizer closed")
)

// Store is the remote table of events. Implementations report backend
// failures as errors and never retry on their own.
type Store interface {
	// ListByDate returns every event ordered by date ascending.
	ListByDate(ctx context.Context) ([]Event, error)
	// Insert adds a new event; the store assigns ID and CreatedAt.
	Insert(ctx context.Context, fields Fields) error
	// Update changes the event with the given id, or returns ErrNotFound.
	Update(ctx context.Context, id string, patch Patch) error
	// Delete removes the event with the given id, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// ReloadError reports that a write succeeded but the reload that must
// follow it failed. The visible collection is stale until the next
// successful load.
type ReloadError struct {
	Op  string
	Err error
}

func (e *ReloadError) Error() string {
	return fmt.Sprintf("%s event: write succeeded but reload failed: %v", e.Op, e.Err)
}

func (e *ReloadError) Unwrap() error {
	return e.Err
}
