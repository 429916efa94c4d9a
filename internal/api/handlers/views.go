package handlers

import (
	"net/url"
	"strings"
	"time"

	"github.com/penmaen-hall/server/internal/domain/events"
)

// EventView is an event formatted for the page templates.
type EventView struct {
	ID          string
	Title       string
	Description string
	Day         string
	Month       string
	DateLong    string
	Type        string
	TimeRange   string
	Location    string
}

func eventView(e events.Event) EventView {
	date := e.Date.In(time.UTC)
	typ := e.Type
	if typ == "" {
		typ = "Event"
	}
	return EventView{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Day:         date.Format("2"),
		Month:       date.Format("Jan"),
		DateLong:    date.Format("Monday 2 January 2006"),
		Type:        typ,
		TimeRange:   timeRange(e.StartTime, e.EndTime),
		Location:    e.Location,
	}
}

func timeRange(start, end *events.TimeOfDay) string {
	switch {
	case start != nil && end != nil:
		return start.Short() + " - " + end.Short()
	case start != nil:
		return start.Short()
	case end != nil:
		return "until " + end.Short()
	default:
		return ""
	}
}

// EventForm holds the raw values of the add and edit forms so a rejected
// submission can be shown again exactly as typed.
type EventForm struct {
	ID          string
	Title       string
	Description string
	Date        string
	StartTime   string
	EndTime     string
	Location    string
	Type        string
	Types       []string
}

func formFrom(id string, f events.Fields) EventForm {
	form := EventForm{
		ID:          id,
		Title:       f.Title,
		Description: f.Description,
		Date:        f.Date.String(),
		Location:    f.Location,
		Type:        f.Type,
	}
	if f.StartTime != nil {
		form.StartTime = f.StartTime.Short()
	}
	if f.EndTime != nil {
		form.EndTime = f.EndTime.Short()
	}
	form.Types = typeChoices(f.Type)
	return form
}

// typeChoices offers the default categories plus current when the stored
// event uses a label the form does not know.
func typeChoices(current string) []string {
	choices := append([]string(nil), events.DefaultTypes...)
	if current == "" {
		return choices
	}
	for _, t := range choices {
		if t == current {
			return choices
		}
	}
	return append(choices, current)
}

// parseEventForm reads the submitted form. Values that cannot be parsed are
// reported per field; everything else is validated by the synchronizer.
func parseEventForm(values url.Values) (EventForm, events.Fields, map[string]string) {
	form := EventForm{
		Title:       values.Get("title"),
		Description: values.Get("description"),
		Date:        strings.TrimSpace(values.Get("date")),
		StartTime:   strings.TrimSpace(values.Get("start_time")),
		EndTime:     strings.TrimSpace(values.Get("end_time")),
		Location:    values.Get("location"),
		Type:        values.Get("type"),
	}
	form.Types = typeChoices(strings.TrimSpace(form.Type))

	fields := events.Fields{
		Title:       form.Title,
		Description: form.Description,
		Location:    form.Location,
		Type:        form.Type,
	}
	errs := map[string]string{}
	if form.Date != "" {
		date, err := events.ParseDate(form.Date)
		if err != nil {
			errs["date"] = "must be a valid date"
		} else {
			fields.Date = date
		}
	}
	start, err := events.ParseOptionalTime(form.StartTime)
	if err != nil {
		errs["start_time"] = "must be a time like 19:30"
	}
	end, err := events.ParseOptionalTime(form.EndTime)
	if err != nil {
		errs["end_time"] = "must be a time like 21:00"
	}
	fields.StartTime, fields.EndTime = start, end
	return form, fields, errs
}
