package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/penmaen-hall/server/internal/api/problem"
	"github.com/penmaen-hall/server/internal/domain/events"
)

type snapshotResponse struct {
	Events []events.Event `json:"events"`
}

// ListByDate implements events.Store. It asks the server to reload first
// so the answer reflects the database rather than the server's cache.
func (c *Client) ListByDate(ctx context.Context) ([]events.Event, error) {
	var resp snapshotResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/events?fresh=true", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// Insert implements events.Store.
func (c *Client) Insert(ctx context.Context, fields events.Fields) error {
	return c.write(ctx, http.MethodPost, "/api/v1/events", fields)
}

// Update implements events.Store.
func (c *Client) Update(ctx context.Context, id string, patch events.Patch) error {
	return c.write(ctx, http.MethodPatch, "/api/v1/events/"+url.PathEscape(id), patch)
}

// Delete implements events.Store.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.write(ctx, http.MethodDelete, "/api/v1/events/"+url.PathEscape(id), nil)
}

// write sends an admin write. The server answers with its refreshed list,
// which is ignored: the caller's synchronizer reloads on its own.
func (c *Client) write(ctx context.Context, method, path string, body any) error {
	token, err := c.bearer()
	if err != nil {
		return err
	}
	err = c.do(ctx, method, path, token, body, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Type == problem.TypeReloadFailed:
		// Saved; only the server's own reload failed.
		return nil
	case apiErr.Status == http.StatusNotFound:
		return events.ErrNotFound
	case apiErr.Status == http.StatusBadRequest && len(apiErr.Errors) > 0:
		return events.ValidationError{Fields: apiErr.Errors}
	}
	return err
}
