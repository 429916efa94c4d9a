package handlers

import (
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/penmaen-hall/server/internal/domain/events"
)

const calendarProductID = "-//Penmaen and Nicholaston Village Hall//Events//EN"

// CalendarHandler publishes the event collection as an iCalendar feed.
type CalendarHandler struct {
	events   EventService
	uidHost  string
	location *time.Location
	now      func() time.Time
}

// NewCalendarHandler returns a feed handler. Event times are wall-clock
// times at the hall and are interpreted in loc.
func NewCalendarHandler(svc EventService, uidHost string, loc *time.Location) *CalendarHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarHandler{events: svc, uidHost: uidHost, location: loc, now: time.Now}
}

// Feed handles GET /events.ics.
func (h *CalendarHandler) Feed(w http.ResponseWriter, r *http.Request) {
	cal := h.build(h.events.List().Events)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="penmaen-village-hall.ics"`)
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write([]byte(cal.Serialize()))
}

func (h *CalendarHandler) build(items []events.Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(calendarProductID)
	cal.SetXWRCalName("Penmaen and Nicholaston Village Hall")
	cal.SetXWRTimezone(h.location.String())

	stamp := h.now().UTC()
	for _, e := range items {
		ev := cal.AddEvent(e.ID + "@" + h.uidHost)
		ev.SetDtStampTime(stamp)
		if !e.CreatedAt.IsZero() {
			ev.SetCreatedTime(e.CreatedAt)
		}
		ev.SetSummary(e.Title)
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		if e.Type != "" {
			ev.SetProperty(ical.ComponentPropertyCategories, e.Type)
		}

		if e.StartTime == nil {
			day := e.Date.In(h.location)
			ev.SetAllDayStartAt(day)
			ev.SetAllDayEndAt(day.AddDate(0, 0, 1))
			continue
		}
		ev.SetStartAt(e.StartTime.On(e.Date, h.location))
		if e.EndTime != nil {
			end := e.EndTime.On(e.Date, h.location)
			if !end.After(e.StartTime.On(e.Date, h.location)) {
				end = end.AddDate(0, 0, 1)
			}
			ev.SetEndAt(end)
		}
	}
	return cal
}
