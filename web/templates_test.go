package web

import (
	"bytes"
	"html/template"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

type testVenue struct {
	Name, Address, What3Words string
	Latitude, Longitude       float64
	Directions                struct{ GoogleMaps, AppleMaps, Waze, What3Words, MapEmbed string }
}

type testPage struct {
	Title, Path, Subject, Error, Notice, Email string
	IsAdmin, Loading                           bool
	CSRFField                                  template.HTML
	Venue                                      testVenue
	Year                                       int
	Events                                     []struct{ ID, Title, Description, Day, Month, DateLong, Type, TimeRange, Location string }
	Form                                       struct {
		ID, Title, Description, Date, StartTime, EndTime, Location, Type string
		Types                                                           []string
	}
	FieldErrors map[string]string
}

func TestRenderer_EveryTemplateIsAPage(t *testing.T) {
	names, err := templateNames()
	require.NoError(t, err)

	want := append([]string{"layout"}, Pages...)
	sort.Strings(names)
	sort.Strings(want)
	require.Equal(t, want, names)
}

func TestRenderer_RendersEveryPage(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	data := testPage{Title: "Test", Path: "/contact", Year: 2026}
	data.Venue.Name = "Penmaen Parish Hall"
	data.Venue.What3Words = "listed.wisdom.dividers"
	for _, page := range Pages {
		var buf bytes.Buffer
		require.NoError(t, r.Render(&buf, page, data), page)
		require.Contains(t, buf.String(), "Penmaen Parish Hall", page)
	}
}

func TestRenderer_EscapesUserContent(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	data := testPage{Title: "Events", Path: "/hall/events"}
	data.Events = append(data.Events, struct{ ID, Title, Description, Day, Month, DateLong, Type, TimeRange, Location string }{
		ID: "1", Title: `<script>alert(1)</script>`, Day: "1", Month: "May", Type: "Community",
	})
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, "events", data))
	require.NotContains(t, buf.String(), "<script>alert(1)</script>")
	require.Contains(t, buf.String(), "&lt;script&gt;")
}

func TestRenderer_UnknownPage(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	require.Error(t, r.Render(&bytes.Buffer{}, "missing", testPage{}))
}

func TestStaticHandlers(t *testing.T) {
	rec := httptest.NewRecorder()
	StaticHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/site.css", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/css")

	rec = httptest.NewRecorder()
	RobotsTxtHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))
	require.Contains(t, rec.Body.String(), "Disallow: /hall/login")
}
