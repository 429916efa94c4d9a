package handlers

import (
	"net/http"
)

// VenueHandler serves GET /api/v1/venue.
type VenueHandler struct {
	locator VenueLocator
}

func NewVenueHandler(locator VenueLocator) *VenueHandler {
	return &VenueHandler{locator: locator}
}

func (h *VenueHandler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, h.locator.Location(r.Context()))
}
