package api

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/penmaen-hall/server/internal/api/handlers"
	"github.com/penmaen-hall/server/internal/api/middleware"
	"github.com/penmaen-hall/server/internal/config"
	"github.com/penmaen-hall/server/internal/metrics"
	"github.com/penmaen-hall/server/internal/session"
	"github.com/penmaen-hall/server/web"
	"github.com/rs/zerolog"
)

// BuildInfo is stamped into the binary with -ldflags.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// Deps are the services the router exposes.
type Deps struct {
	Config   config.Config
	Logger   zerolog.Logger
	Events   handlers.EventService
	Identity handlers.Authenticator
	Sessions *session.Registry
	Venue    handlers.VenueLocator
	Health   *handlers.HealthChecker
	// Location is the hall's time zone; event times are wall-clock times
	// there.
	Location *time.Location
	Build    BuildInfo
}

const loginPath = "/hall/login"

// NewRouter wires the site, the JSON API and the operational endpoints.
func NewRouter(deps Deps) (http.Handler, error) {
	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	cfg := deps.Config
	secure := strings.HasPrefix(cfg.Server.BaseURL, "https://")
	uidHost := "localhost"
	if u, err := url.Parse(cfg.Server.BaseURL); err == nil && u.Hostname() != "" {
		uidHost = u.Hostname()
	}

	browser := middleware.NewBrowserSessions(deps.Sessions, secure)
	pages := handlers.NewPages(renderer, deps.Events, deps.Venue, browser, deps.Location)
	eventsHandler := handlers.NewEventsHandler(deps.Events, cfg.Environment)
	authHandler := handlers.NewAuthHandler(deps.Identity, cfg.Environment)
	venueHandler := handlers.NewVenueHandler(deps.Venue)
	calendar := handlers.NewCalendarHandler(deps.Events, uidHost, deps.Location)

	csrf := middleware.CSRFProtection(cfg.CSRFKey(), secure)
	loginLimit := middleware.LoginRateLimit(cfg.RateLimit)
	formSize := middleware.RequestSize(middleware.FormMaxBodySize)
	apiSize := middleware.RequestSize(middleware.APIMaxBodySize)
	bearer := middleware.BearerAuth(deps.Identity, cfg.Environment)
	public := middleware.PublicCORS(cfg.CORS.AllowedOrigins)
	apiAdmin := func(h http.HandlerFunc) http.Handler {
		return apiSize(bearer(middleware.RequireAdmin(cfg.Environment)(h)))
	}

	// Every HTML route sees the browser session and the CSRF token.
	page := func(h http.HandlerFunc) http.Handler {
		return csrf(browser.Middleware(h))
	}
	adminPage := func(h http.HandlerFunc) http.Handler {
		return csrf(formSize(browser.Middleware(middleware.RequireAdminSession(loginPath)(h))))
	}

	mux := http.NewServeMux()

	mux.Handle("GET /{$}", page(pages.Home))
	mux.Handle("GET /hall", page(pages.Hall))
	mux.Handle("GET /churches", page(pages.Churches))
	mux.Handle("GET /committee", page(pages.Committee))
	mux.Handle("GET /contact", page(pages.Contact))
	mux.Handle("GET /hall/events", page(pages.Events))
	mux.Handle("GET "+loginPath, page(pages.LoginPage))
	mux.Handle("POST "+loginPath, loginLimit(csrf(formSize(browser.Middleware(http.HandlerFunc(pages.Login))))))
	mux.Handle("POST /hall/logout", csrf(formSize(browser.Middleware(http.HandlerFunc(pages.Logout)))))

	mux.Handle("GET /hall/events/new", adminPage(pages.NewEvent))
	mux.Handle("POST /hall/events", adminPage(pages.CreateEvent))
	mux.Handle("GET /hall/events/{id}/edit", adminPage(pages.EditEvent))
	mux.Handle("POST /hall/events/{id}", adminPage(pages.UpdateEvent))
	mux.Handle("GET /hall/events/{id}/delete", adminPage(pages.ConfirmDelete))
	mux.Handle("POST /hall/events/{id}/delete", adminPage(pages.DeleteEvent))

	mux.Handle("/api/v1/events", public(methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(eventsHandler.List),
		http.MethodPost: apiAdmin(eventsHandler.Create),
	})))
	mux.Handle("/api/v1/events/{id}", methodMux(map[string]http.Handler{
		http.MethodPatch:  apiAdmin(eventsHandler.Update),
		http.MethodDelete: apiAdmin(eventsHandler.Delete),
	}))
	mux.Handle("/api/v1/auth/login", methodMux(map[string]http.Handler{
		http.MethodPost: loginLimit(apiSize(http.HandlerFunc(authHandler.Login))),
	}))
	mux.Handle("/api/v1/auth/logout", methodMux(map[string]http.Handler{
		http.MethodPost: bearer(http.HandlerFunc(authHandler.Logout)),
	}))
	mux.Handle("/api/v1/auth/session", methodMux(map[string]http.Handler{
		http.MethodGet: bearer(http.HandlerFunc(authHandler.Session)),
	}))
	mux.Handle("/api/v1/venue", public(methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(venueHandler.Get),
	})))
	mux.Handle("/api/v1/openapi.json", OpenAPIHandler())
	mux.Handle("GET /events.ics", public(http.HandlerFunc(calendar.Feed)))

	if deps.Health != nil {
		mux.Handle("GET /healthz", http.HandlerFunc(deps.Health.Healthz))
		mux.Handle("GET /readyz", http.HandlerFunc(deps.Health.Readyz))
	}
	mux.Handle("/version", VersionHandler(deps.Build.Version, deps.Build.GitCommit, deps.Build.BuildDate))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /static/", web.StaticHandler())
	mux.Handle("GET /robots.txt", web.RobotsTxtHandler())
	mux.Handle("/", page(pages.NotFound))

	var handler http.Handler = mux
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.SecurityHeaders(secure)(handler)
	handler = middleware.RequestLogging(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)
	return handler, nil
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		if _, ok := handlers[http.MethodGet]; ok && r.Method == http.MethodHead {
			handlers[http.MethodGet].ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
