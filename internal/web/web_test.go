package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorcal/internal/bus"
	"mirrorcal/internal/config"
	"mirrorcal/internal/metrics"
	"mirrorcal/internal/model"
	"mirrorcal/internal/module"
)

const (
	moduleID = "8b0f4c9e-0000-4000-8000-0000000000aa"
	work     = "http://example.com/work.ics"
)

var now = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func ms(dayOffset, hh int) int64 {
	return int64(model.MillisOf(time.Date(2026, 10, 19+dayOffset, hh, 0, 0, 0, time.UTC)))
}

type fixture struct {
	cfg *config.Config
	bus *bus.Bus
	mod *module.Module
	srv *httptest.Server
}

// newFixture starts a module and a server in front of it. It returns once the
// module listens on the bus.
func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Calendars = []config.CalendarConfig{{URL: work}}
	cfg.Snapshot.OutputPath = filepath.Join(t.TempDir(), "preview.png")
	if mutate != nil {
		mutate(cfg)
	}

	b := bus.New()
	t.Cleanup(b.Close)
	reg := prometheus.NewRegistry()
	mod, err := module.New(module.Options{
		Config:  cfg,
		Bus:     b,
		Metrics: metrics.New(reg),
		ID:      moduleID,
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)

	started, cancelStarted := b.Subscribe(1, bus.AddSwedishCalendar)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = mod.Run(ctx) }()
	<-started
	cancelStarted()

	s, err := NewServer(Options{Config: cfg, Calendar: mod, Bus: b, Gatherer: reg, Now: func() time.Time { return now }})
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &fixture{cfg: cfg, bus: b, mod: mod, srv: srv}
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (f *fixture) post(t *testing.T, name, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+"/api/notifications/"+name, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(out)
}

func TestHealthBypassesBasicAuth(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "mirror", Password: "secret"}
	})

	resp, body := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)

	resp, _ = f.get(t, "/api/events")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), `realm="mirrorcal"`)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/events", nil)
	require.NoError(t, err)
	req.SetBasicAuth("mirror", "secret")
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	authed.Body.Close()
	assert.Equal(t, http.StatusOK, authed.StatusCode)
}

func TestIngestSkipsMalformedEvents(t *testing.T) {
	f := newFixture(t, nil)

	body := fmt.Sprintf(`{"url": %q, "events": [
		{"title": "Standup", "startDate": %d, "endDate": %d},
		{"title": "Broken", "startDate": "soon", "endDate": "later"},
		{"title": "Lunch", "startDate": "%d", "endDate": "%d"}
	]}`, work, ms(1, 9), ms(1, 10), ms(2, 12), ms(2, 13))

	resp, out := f.post(t, "CALENDAR_EVENTS", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"accepted": 2, "skipped": 1}`, out)

	require.Eventually(t, func() bool { return f.mod.View().Loaded }, time.Second, 5*time.Millisecond)

	resp, out = f.get(t, "/api/events")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		Events   []model.CalendarEvent `json:"events"`
		Loaded   bool                  `json:"loaded"`
		Timezone string                `json:"timezone"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Loaded)
	assert.Equal(t, "UTC", got.Timezone)
	require.Len(t, got.Events, 2)
	assert.Equal(t, "Standup", got.Events[0].Title)
	assert.Equal(t, "Lunch", got.Events[1].Title)
}

func TestIngestRejectsBadRequests(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.post(t, "NOT_A_THING", `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.post(t, "CALENDAR_EVENTS", `{"url":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.post(t, "CALENDAR_ERROR", `{"error_type": "TIMEOUT"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.post(t, "SWEDISH_DAYS", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestErrorAndHolidays(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.post(t, "CALENDAR_ERROR", fmt.Sprintf(`{"url": %q, "error_type": "NOT_FOUND"}`, work))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool { return len(f.mod.View().Errors) == 1 }, time.Second, 5*time.Millisecond)

	days := make([]string, now.YearDay())
	for i := range days {
		days[i] = `{"röd dag": "Nej", "flaggdag": ""}`
	}
	days[now.YearDay()-1] = `{"röd dag": "Ja", "flaggdag": "FN-dagen"}`
	resp, _ = f.post(t, "SWEDISH_DAYS", `{"id": "any", "data": {"dagar": [`+strings.Join(days, ",")+`]}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool { return f.mod.View().Week.Headers[0].RedDay }, time.Second, 5*time.Millisecond)

	_, out := f.get(t, "/api/week")
	var week struct {
		State   string `json:"state"`
		Headers []struct {
			FlagDay bool `json:"flag_day"`
		} `json:"headers"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &week))
	assert.Equal(t, "error", week.State)
	require.NotEmpty(t, week.Headers)
	assert.True(t, week.Headers[0].FlagDay)
}

func TestIngestFetchCalendar(t *testing.T) {
	f := newFixture(t, nil)
	fetches, cancel := f.bus.Subscribe(2, bus.FetchCalendar)
	defer cancel()

	resp, _ := f.post(t, "FETCH_CALENDAR", fmt.Sprintf(`{"url": %q}`, work))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	msg := <-fetches
	assert.Equal(t, moduleID, msg.ID)
	assert.Equal(t, bus.FetchCalendarPayload{URL: work}, msg.Payload)
}

func TestCalendarPageAndExport(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := f.post(t, "CALENDAR_EVENTS", fmt.Sprintf(`{"url": %q, "events": [{"title": "Dentist", "startDate": %d, "endDate": %d}]}`,
		work, ms(1, 14), ms(1, 15)))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool { return len(f.mod.View().Events) == 1 }, time.Second, 5*time.Millisecond)

	resp, page := f.get(t, "/calendar")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, page, `data-ready="true"`)
	assert.Contains(t, page, "Dentist")

	resp, cal := f.get(t, "/calendar.ics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/calendar")
	assert.Equal(t, 1, strings.Count(cal, "BEGIN:VEVENT"))
	assert.Contains(t, cal, "SUMMARY:Dentist")

	resp, out := f.get(t, "/api/broadcast")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out, `"symbol":["fas fa-fw fa-calendar-alt"]`)
}

func TestExportHidesPrivateEvents(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.HidePrivate = true })
	resp, _ := f.post(t, "CALENDAR_EVENTS", fmt.Sprintf(`{"url": %q, "events": [
		{"title": "Therapy", "startDate": %d, "endDate": %d, "class": "PRIVATE"},
		{"title": "Dentist", "startDate": %d, "endDate": %d}
	]}`, work, ms(1, 9), ms(1, 10), ms(1, 14), ms(1, 15)))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool { return len(f.mod.Broadcast()) == 2 }, time.Second, 5*time.Millisecond)

	_, cal := f.get(t, "/calendar.ics")
	assert.Equal(t, 1, strings.Count(cal, "BEGIN:VEVENT"))
	assert.Contains(t, cal, "SUMMARY:Dentist")
	assert.NotContains(t, cal, "Therapy")

	// The broadcast list itself stays complete.
	_, out := f.get(t, "/api/broadcast")
	assert.Contains(t, out, "Therapy")
}

func TestCalendarsAndMetrics(t *testing.T) {
	f := newFixture(t, nil)

	_, out := f.get(t, "/api/calendars")
	var cals []bus.AddCalendarPayload
	require.NoError(t, json.Unmarshal([]byte(out), &cals))
	require.Len(t, cals, 1)
	assert.Equal(t, config.RedactURL(work), cals[0].URL)
	assert.NotContains(t, out, "work.ics")
	assert.Equal(t, moduleID, cals[0].ID)

	resp, _ := f.post(t, "CALENDAR_EVENTS", fmt.Sprintf(`{"url": %q, "events": []}`, work))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool { return f.mod.View().Loaded }, time.Second, 5*time.Millisecond)

	resp, metricsText := f.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, metricsText, `mirrorcal_notifications_total{name="CALENDAR_EVENTS"} 1`)
}

func TestPreviewMissing(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := f.get(t, "/preview.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestForwarder(t *testing.T) {
	var (
		mu       sync.Mutex
		received []envelopeBody
	)
	fetcher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env envelopeBody
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, env)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer fetcher.Close()

	b := bus.New()
	defer b.Close()
	fw := NewForwarder(b, fetcher.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		fw.Run(ctx)
		close(done)
	}()

	require.NoError(t, b.Publish(ctx, bus.Message{Name: bus.FetchCalendar, ID: moduleID, Payload: bus.FetchCalendarPayload{URL: work}}))
	// Inbound names are not forwarded.
	require.NoError(t, b.Publish(ctx, bus.Message{Name: bus.CalendarError, ID: moduleID, Payload: bus.CalendarErrorPayload{URL: work}}))
	require.NoError(t, b.Publish(ctx, bus.Message{Name: bus.AddSwedishCalendar, ID: moduleID}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "FETCH_CALENDAR", received[0].Name)
	assert.Equal(t, moduleID, received[0].ID)
	assert.JSONEq(t, fmt.Sprintf(`{"url": %q}`, work), string(received[0].Payload))
	assert.Equal(t, "ADD_SWEDISH_CALENDAR", received[1].Name)
	mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not stop")
	}
}

func TestForwarderSendReportsStatus(t *testing.T) {
	fetcher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer fetcher.Close()

	b := bus.New()
	defer b.Close()
	fw := NewForwarder(b, fetcher.URL)

	err := fw.Send(context.Background(), bus.Message{Name: bus.AddCalendar, ID: moduleID})
	assert.ErrorContains(t, err, "500")
}

type envelopeBody struct {
	Name    string          `json:"name"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}
