// Package web serves the calendar grid, its JSON API and the notification
// ingest that the external fetcher posts to.
package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"

	"mirrorcal/internal/aggregate"
	"mirrorcal/internal/bus"
	"mirrorcal/internal/config"
	"mirrorcal/internal/ics"
	appLog "mirrorcal/internal/log"
	"mirrorcal/internal/model"
	"mirrorcal/internal/module"
)

// maxIngestBytes bounds a single notification body.
const maxIngestBytes = 8 << 20

// Calendar is the part of the calendar module the server needs.
type Calendar interface {
	ID() string
	Location() *time.Location
	View() module.View
	Broadcast() []model.BroadcastEvent
	Calendars() []bus.AddCalendarPayload
	RequestFetch(ctx context.Context, url string) error
}

// Options configure a Server.
type Options struct {
	Config   *config.Config
	Calendar Calendar
	Bus      *bus.Bus
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Now is the clock used for ICS export stamps; nil means time.Now.
	Now func() time.Time
}

// Server provides the HTTP endpoints.
type Server struct {
	cfg    *config.Config
	cal    Calendar
	bus    *bus.Bus
	now    func() time.Time
	router *mux.Router
}

// NewServer constructs a new Server and registers its routes.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Calendar == nil || opts.Bus == nil {
		return nil, errors.New("web: config, calendar and bus are required")
	}
	s := &Server{
		cfg:    opts.Config,
		cal:    opts.Calendar,
		bus:    opts.Bus,
		now:    opts.Now,
		router: mux.NewRouter(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.registerRoutes(opts.Gatherer)
	return s, nil
}

// Handler returns the router. Basic auth, when configured, is installed as
// router middleware.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	r := s.router
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		r.Use(s.basicAuthMiddleware)
	}

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/calendar", s.handleCalendarPage).Methods(http.MethodGet)
	r.HandleFunc("/calendar.ics", s.handleICS).Methods(http.MethodGet)
	r.HandleFunc("/preview.png", s.handlePreview).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/week", s.handleWeek).Methods(http.MethodGet)
	api.HandleFunc("/broadcast", s.handleBroadcast).Methods(http.MethodGet)
	api.HandleFunc("/calendars", s.handleCalendars).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{name}", s.handleNotification).Methods(http.MethodPost)

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards every route except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="mirrorcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves on cfg.Listen until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleCalendarPage renders the weekly grid. The root element carries
// data-ready="true" for the snapshot capture.
func (s *Server) handleCalendarPage(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := s.cal.View().Week.WriteHTML(&buf); err != nil {
		appLog.Error("render calendar page failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleICS exports the broadcast list. With hide_private set, PRIVATE
// events stay out of the feed.
func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	events := s.cal.Broadcast()
	if s.cfg.HidePrivate {
		events = lo.Filter(events, func(ev model.BroadcastEvent, _ int) bool {
			return ev.Class != aggregate.ClassPrivate
		})
	}

	var buf bytes.Buffer
	if err := ics.Export(&buf, events, s.now(), s.cal.Location()); err != nil {
		appLog.Error("ics export failed", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handlePreview serves the last snapshot from disk. http.ServeFile answers
// 404 while no snapshot exists yet.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Snapshot.OutputPath == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.cfg.Snapshot.OutputPath)
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events    []model.CalendarEvent `json:"events"`
	Loaded    bool                  `json:"loaded"`
	Errors    map[string]string     `json:"errors,omitempty"`
	Stats     aggregate.Stats       `json:"stats"`
	UpdatedAt time.Time             `json:"updated_at"`
	Timezone  string                `json:"timezone"`
}

// handleEvents returns the display list of the last computation.
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	v := s.cal.View()
	events := v.Events
	if events == nil {
		events = []model.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		Events:    events,
		Loaded:    v.Loaded,
		Errors:    redactedErrors(v.Errors),
		Stats:     v.Stats,
		UpdatedAt: v.UpdatedAt,
		Timezone:  s.cal.Location().String(),
	})
}

func (s *Server) handleWeek(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cal.View().Week)
}

func (s *Server) handleBroadcast(w http.ResponseWriter, _ *http.Request) {
	events := s.cal.Broadcast()
	if events == nil {
		events = []model.BroadcastEvent{}
	}
	writeJSON(w, http.StatusOK, bus.BroadcastEventsPayload{Events: events})
}

// handleCalendars lists the resolved source settings. URLs are redacted; the
// fetcher receives full URLs only through ADD_CALENDAR.
func (s *Server) handleCalendars(w http.ResponseWriter, _ *http.Request) {
	cals := lo.Map(s.cal.Calendars(), func(c bus.AddCalendarPayload, _ int) bus.AddCalendarPayload {
		c.URL = config.RedactURL(c.URL)
		return c
	})
	writeJSON(w, http.StatusOK, cals)
}

func redactedErrors(errs map[string]string) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string]string, len(errs))
	for u, kind := range errs {
		out[config.RedactURL(u)] = kind
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
