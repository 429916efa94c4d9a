package handlers

import (
	"context"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/penmaen-hall/server/internal/api/middleware"
	"github.com/penmaen-hall/server/internal/domain/events"
	"github.com/penmaen-hall/server/internal/session"
	"github.com/penmaen-hall/server/internal/venue"
	"github.com/rs/zerolog"
)

// Renderer executes a named page template. *web.Renderer implements it.
type Renderer interface {
	Render(w io.Writer, page string, data any) error
}

// PageData is what every page template receives.
type PageData struct {
	Title     string
	Path      string
	IsAdmin   bool
	Subject   string
	CSRFField template.HTML
	Venue     venue.Location
	Year      int

	Events  []EventView
	Loading bool
	Notice  string
	Error   string

	Form        EventForm
	FieldErrors map[string]string
	Email       string
}

// Pages serves the public site and the admin event forms.
type Pages struct {
	renderer Renderer
	events   EventService
	venue    VenueLocator
	sessions *middleware.BrowserSessions
	location *time.Location
	now      func() time.Time
}

func NewPages(renderer Renderer, svc EventService, locator VenueLocator, sessions *middleware.BrowserSessions, loc *time.Location) *Pages {
	if loc == nil {
		loc = time.UTC
	}
	return &Pages{
		renderer: renderer,
		events:   svc,
		venue:    locator,
		sessions: sessions,
		location: loc,
		now:      time.Now,
	}
}

const upcomingOnHome = 3

var notices = map[string]string{
	"created": "Event created.",
	"updated": "Event updated.",
	"deleted": "Event deleted.",
	"stale":   "Your change was saved, but the list could not be refreshed. Reload the page to see it.",
}

func (p *Pages) Home(w http.ResponseWriter, r *http.Request) {
	today := events.DateOf(p.now().In(p.location))
	var upcoming []EventView
	for _, e := range p.events.List().Events {
		if e.Date.Compare(today) < 0 {
			continue
		}
		upcoming = append(upcoming, eventView(e))
		if len(upcoming) == upcomingOnHome {
			break
		}
	}
	p.render(w, r, http.StatusOK, "home", PageData{Title: "Home", Events: upcoming})
}

func (p *Pages) Hall(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "hall", PageData{Title: "The Hall"})
}

func (p *Pages) Churches(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "churches", PageData{Title: "Churches"})
}

func (p *Pages) Committee(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "committee", PageData{Title: "Committee"})
}

func (p *Pages) Contact(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "contact", PageData{Title: "Contact"})
}

func (p *Pages) NotFound(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusNotFound, "not_found", PageData{Title: "Not found"})
}

// Events renders the schedule. A failed or pending load shows whatever the
// collection currently holds.
func (p *Pages) Events(w http.ResponseWriter, r *http.Request) {
	p.renderEvents(w, r, http.StatusOK, notices[r.URL.Query().Get("status")], "")
}

func (p *Pages) renderEvents(w http.ResponseWriter, r *http.Request, status int, notice, errMsg string) {
	snap := p.events.List()
	views := make([]EventView, 0, len(snap.Events))
	for _, e := range snap.Events {
		views = append(views, eventView(e))
	}
	p.render(w, r, status, "events", PageData{
		Title:   "Events Schedule",
		Events:  views,
		Loading: snap.Loading,
		Notice:  notice,
		Error:   errMsg,
	})
}

// LoginPage renders the sign-in form, or skips it for a signed-in admin.
func (p *Pages) LoginPage(w http.ResponseWriter, r *http.Request) {
	if middleware.IsAdmin(r.Context()) {
		http.Redirect(w, r, "/hall/events", http.StatusSeeOther)
		return
	}
	p.render(w, r, http.StatusOK, "login", PageData{Title: "Admin Login"})
}

// Login signs the browser in. On failure the form is shown again with the
// email kept.
func (p *Pages) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		p.render(w, r, http.StatusBadRequest, "login", PageData{Title: "Admin Login", Error: "The form could not be read."})
		return
	}
	email, password := r.PostForm.Get("email"), r.PostForm.Get("password")
	if email == "" || password == "" {
		p.render(w, r, http.StatusBadRequest, "login", PageData{Title: "Admin Login", Email: email, Error: "Email and password are required."})
		return
	}

	provider, err := p.sessions.SignIn(w, r, email, password)
	if err != nil {
		status, msg := http.StatusBadGateway, "Sign-in is unavailable right now. Please try again."
		if errors.Is(err, session.ErrInvalidCredentials) {
			status, msg = http.StatusUnauthorized, "Invalid login credentials"
		} else {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("browser sign-in failed")
		}
		p.render(w, r, status, "login", PageData{Title: "Admin Login", Email: email, Error: msg})
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("subject", provider.Subject()).Bool("admin", provider.IsAdmin()).Msg("browser signed in")
	http.Redirect(w, r, "/hall/events", http.StatusSeeOther)
}

// Logout ends the browser session. The local session is dropped even when
// the identity service cannot be reached.
func (p *Pages) Logout(w http.ResponseWriter, r *http.Request) {
	if provider := middleware.SessionProvider(r.Context()); provider != nil {
		if err := provider.SignOut(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("identity sign-out failed")
		}
	}
	p.sessions.End(w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// NewEvent renders an empty form with the usual defaults.
func (p *Pages) NewEvent(w http.ResponseWriter, r *http.Request) {
	fields := events.Fields{}.WithFormDefaults()
	p.render(w, r, http.StatusOK, "event_form", PageData{Title: "Add Event", Form: formFrom("", fields)})
}

// EditEvent renders the form for an existing event.
func (p *Pages) EditEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := p.find(r.PathValue("id"))
	if !ok {
		p.NotFound(w, r)
		return
	}
	p.render(w, r, http.StatusOK, "event_form", PageData{Title: "Edit Event", Form: formFrom(e.ID, e.Fields())})
}

// CreateEvent handles the add form.
func (p *Pages) CreateEvent(w http.ResponseWriter, r *http.Request) {
	p.submit(w, r, "", "created", func(ctx context.Context, fields events.Fields) error {
		return p.events.Create(ctx, fields)
	})
}

// UpdateEvent handles the edit form. Every field is replaced.
func (p *Pages) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p.submit(w, r, id, "updated", func(ctx context.Context, fields events.Fields) error {
		return p.events.Update(ctx, id, events.PatchFrom(fields))
	})
}

// ConfirmDelete asks before deleting.
func (p *Pages) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	e, ok := p.find(r.PathValue("id"))
	if !ok {
		p.NotFound(w, r)
		return
	}
	p.render(w, r, http.StatusOK, "event_delete", PageData{Title: "Delete Event", Form: formFrom(e.ID, e.Fields())})
}

// DeleteEvent removes the event and returns to the schedule.
func (p *Pages) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := p.events.Delete(r.Context(), id)
	var reload *events.ReloadError
	switch {
	case err == nil:
		http.Redirect(w, r, "/hall/events?status=deleted", http.StatusSeeOther)
	case errors.As(err, &reload):
		http.Redirect(w, r, "/hall/events?status=stale", http.StatusSeeOther)
	case errors.Is(err, events.ErrNotFound):
		p.renderEvents(w, r, http.StatusNotFound, "", "That event no longer exists.")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("event_id", id).Msg("delete from form failed")
		e, ok := p.find(id)
		if !ok {
			p.renderEvents(w, r, http.StatusBadGateway, "", "Failed to delete event. Please try again.")
			return
		}
		p.render(w, r, http.StatusBadGateway, "event_delete", PageData{
			Title: "Delete Event",
			Form:  formFrom(e.ID, e.Fields()),
			Error: "Failed to delete event. Please try again.",
		})
	}
}

func (p *Pages) submit(w http.ResponseWriter, r *http.Request, id, done string, write func(context.Context, events.Fields) error) {
	title := "Add Event"
	if id != "" {
		title = "Edit Event"
	}
	if err := r.ParseForm(); err != nil {
		p.render(w, r, http.StatusBadRequest, "event_form", PageData{Title: title, Form: EventForm{ID: id, Types: events.DefaultTypes}, Error: "The form could not be read."})
		return
	}

	form, fields, fieldErrs := parseEventForm(r.PostForm)
	form.ID = id
	if len(fieldErrs) > 0 {
		p.render(w, r, http.StatusUnprocessableEntity, "event_form", PageData{Title: title, Form: form, FieldErrors: fieldErrs, Error: "Please correct the highlighted fields."})
		return
	}

	err := write(r.Context(), fields)
	var validation events.ValidationError
	var reload *events.ReloadError
	switch {
	case err == nil:
		http.Redirect(w, r, "/hall/events?status="+done, http.StatusSeeOther)
	case errors.As(err, &reload):
		http.Redirect(w, r, "/hall/events?status=stale", http.StatusSeeOther)
	case errors.As(err, &validation):
		p.render(w, r, http.StatusUnprocessableEntity, "event_form", PageData{Title: title, Form: form, FieldErrors: validation.Fields, Error: "Please correct the highlighted fields."})
	case errors.Is(err, events.ErrNotFound):
		p.renderEvents(w, r, http.StatusNotFound, "", "That event no longer exists.")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("event_id", id).Msg("event form submit failed")
		p.render(w, r, http.StatusBadGateway, "event_form", PageData{Title: title, Form: form, Error: "Failed to save event. Please try again."})
	}
}

func (p *Pages) find(id string) (events.Event, bool) {
	for _, e := range p.events.List().Events {
		if e.ID == id {
			return e, true
		}
	}
	return events.Event{}, false
}

func (p *Pages) render(w http.ResponseWriter, r *http.Request, status int, page string, data PageData) {
	data.Path = r.URL.Path
	data.CSRFField = middleware.CSRFField(r)
	data.Venue = p.venue.Location(r.Context())
	data.Year = p.now().In(p.location).Year()
	if provider := middleware.SessionProvider(r.Context()); provider != nil {
		data.IsAdmin = provider.IsAdmin()
		data.Subject = provider.Subject()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := p.renderer.Render(w, page, data); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("page", page).Msg("template error")
	}
}
