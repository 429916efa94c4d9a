// Package venue locates the hall for the map widget and directions links.
package venue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/penmaen-hall/server/internal/config"
	"github.com/penmaen-hall/server/internal/memo"
	"github.com/penmaen-hall/server/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	// lookupWait bounds how long a caller waits for the geocoder. A slower
	// lookup keeps running and serves later callers.
	lookupWait = 2 * time.Second
	// retryAfter is how long a failed lookup is remembered before the
	// geocoder is asked again.
	retryAfter = time.Minute
)

const (
	SourceConfig   = "config"
	SourceGeocoder = "geocoder"
	SourceFallback = "fallback"
)

// Location is where the hall is.
type Location struct {
	Name       string     `json:"name"`
	Address    string     `json:"address"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	What3Words string     `json:"what3words,omitempty"`
	Source     string     `json:"source"`
	Directions Directions `json:"directions"`
}

// Directions are deep links into common navigation apps.
type Directions struct {
	GoogleMaps string `json:"google_maps"`
	AppleMaps  string `json:"apple_maps"`
	Waze       string `json:"waze"`
	What3Words string `json:"what3words,omitempty"`
	MapEmbed   string `json:"map_embed"`
}

// Geocoder resolves a free-text address to coordinates.
type Geocoder interface {
	Locate(ctx context.Context, query, countryCodes string) (lat, lon float64, err error)
}

// Locator resolves the venue once and serves the cached result. While the
// geocoder is slow or failing the configured coordinates are served. After
// a failure the geocoder is not asked again for retryAfter.
type Locator struct {
	cfg    config.VenueConfig
	loader *memo.Loader[Location]
	logger zerolog.Logger

	wait       time.Duration
	retryAfter time.Duration
	now        func() time.Time

	mu       sync.Mutex
	failedAt time.Time
}

// NewLocator returns a Locator. A nil geocoder or cfg.Geocode=false serves
// the configured coordinates.
func NewLocator(cfg config.VenueConfig, geocoder Geocoder, logger zerolog.Logger) *Locator {
	l := &Locator{cfg: cfg, logger: logger, wait: lookupWait, retryAfter: retryAfter, now: time.Now}
	l.loader = memo.New(func(ctx context.Context) (Location, error) {
		if geocoder == nil || !cfg.Geocode {
			return l.build(cfg.Latitude, cfg.Longitude, SourceConfig), nil
		}
		lat, lon, err := geocoder.Locate(ctx, cfg.Address, "gb")
		if err != nil {
			l.setFailedAt(l.now())
			l.logger.Warn().Err(err).Str("address", cfg.Address).Msg("venue geocode failed, serving configured coordinates")
			return Location{}, fmt.Errorf("geocode venue %q: %w", cfg.Address, err)
		}
		l.setFailedAt(time.Time{})
		return l.build(lat, lon, SourceGeocoder), nil
	})
	return l
}

// Location returns the venue. It never fails and waits at most lookupWait.
func (l *Locator) Location(ctx context.Context) Location {
	if !l.loader.Loaded() && l.coolingDown() {
		return l.fallback()
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	loc, err := l.loader.Get(waitCtx)
	if err != nil {
		return l.fallback()
	}
	metrics.VenueLookupsTotal.WithLabelValues(loc.Source).Inc()
	return loc
}

func (l *Locator) fallback() Location {
	metrics.VenueLookupsTotal.WithLabelValues(SourceFallback).Inc()
	return l.build(l.cfg.Latitude, l.cfg.Longitude, SourceFallback)
}

func (l *Locator) coolingDown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.failedAt.IsZero() && l.now().Sub(l.failedAt) < l.retryAfter
}

func (l *Locator) setFailedAt(t time.Time) {
	l.mu.Lock()
	l.failedAt = t
	l.mu.Unlock()
}

func (l *Locator) build(lat, lon float64, source string) Location {
	return Location{
		Name:       l.cfg.Name,
		Address:    l.cfg.Address,
		Latitude:   lat,
		Longitude:  lon,
		What3Words: l.cfg.What3Words,
		Source:     source,
		Directions: DirectionsTo(lat, lon, l.cfg.What3Words),
	}
}

// DirectionsTo builds navigation links for the given point.
func DirectionsTo(lat, lon float64, what3words string) Directions {
	point := formatCoord(lat) + "," + formatCoord(lon)

	d := Directions{
		GoogleMaps: "https://www.google.com/maps/dir/?api=1&destination=" + point,
		AppleMaps:  "https://maps.apple.com/?daddr=" + point + "&dirflg=d",
		Waze:       "https://www.waze.com/ul?ll=" + point + "&navigate=yes",
		MapEmbed:   mapEmbed(lat, lon),
	}
	if what3words != "" {
		d.What3Words = "https://what3words.com/" + url.PathEscape(what3words)
	}
	return d
}

// mapEmbed is an OpenStreetMap iframe URL with a marker on the venue.
func mapEmbed(lat, lon float64) string {
	const span = 0.005
	bbox := fmt.Sprintf("%s,%s,%s,%s",
		formatCoord(lon-span), formatCoord(lat-span/2),
		formatCoord(lon+span), formatCoord(lat+span/2))
	values := url.Values{}
	values.Set("bbox", bbox)
	values.Set("layer", "mapnik")
	values.Set("marker", formatCoord(lat)+","+formatCoord(lon))
	return "https://www.openstreetmap.org/export/embed.html?" + values.Encode()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
