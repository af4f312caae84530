// Package module is the calendar module: it owns the aggregator, reacts to
// notifications from the fetcher and keeps the rendered view current.
package module

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"mirrorcal/internal/aggregate"
	"mirrorcal/internal/bus"
	"mirrorcal/internal/config"
	"mirrorcal/internal/customevent"
	appLog "mirrorcal/internal/log"
	"mirrorcal/internal/metrics"
	"mirrorcal/internal/model"
	"mirrorcal/internal/render"
)

// inboxSize is the buffer of the module's bus subscription.
const inboxSize = 64

// View is the last computed display state.
type View struct {
	Events    []model.CalendarEvent `json:"events"`
	Week      render.Week           `json:"week"`
	Loaded    bool                  `json:"loaded"`
	Errors    map[string]string     `json:"errors,omitempty"`
	Stats     aggregate.Stats       `json:"stats"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Options configure a Module.
type Options struct {
	Config  *config.Config
	Bus     *bus.Bus
	Metrics *metrics.Metrics
	// ID identifies this module instance on the bus. Empty means a new
	// random UUID.
	ID string
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Module is the single owner of the aggregator state. Handle and SelfUpdate
// may run concurrently with the read accessors.
type Module struct {
	id      string
	cfg     *config.Config
	loc     *time.Location
	rules   customevent.Rules
	bus     *bus.Bus
	metrics *metrics.Metrics
	now     func() time.Time

	mu        sync.RWMutex
	agg       *aggregate.Aggregator
	holidays  *model.HolidayData
	displayed map[string]bool
	view      View
}

// New builds a Module. The custom event rules are compiled here, so a bad
// pattern is reported before anything runs.
func New(opts Options) (*Module, error) {
	if opts.Config == nil {
		return nil, errors.New("module: config is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("module: bus is required")
	}
	rules, err := customevent.Compile(opts.Config.CustomEvents)
	if err != nil {
		return nil, fmt.Errorf("module: %w", err)
	}

	m := &Module{
		id:        opts.ID,
		cfg:       opts.Config,
		loc:       opts.Config.Location(),
		rules:     rules,
		bus:       opts.Bus,
		metrics:   opts.Metrics,
		now:       opts.Now,
		agg:       aggregate.New(),
		displayed: make(map[string]bool),
	}
	if m.id == "" {
		m.id = uuid.NewString()
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.recompute(m.now())
	return m, nil
}

// ID returns the module identifier carried on bus messages.
func (m *Module) ID() string {
	return m.id
}

// Location returns the display timezone.
func (m *Module) Location() *time.Location {
	return m.loc
}

// Run subscribes to the inbound notifications, announces the configured
// calendars and handles messages until ctx is done or the bus is closed.
func (m *Module) Run(ctx context.Context) error {
	msgs, cancel := m.bus.Subscribe(inboxSize, bus.CalendarEvents, bus.CalendarError, bus.SwedishDays)
	defer cancel()

	if err := m.Announce(ctx); err != nil {
		return err
	}

	appLog.Info("calendar module started", "id", m.id, "calendars", len(m.cfg.Calendars))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			m.Handle(ctx, msg)
		}
	}
}

// Announce publishes ADD_CALENDAR for every configured source and asks for
// the holiday data.
func (m *Module) Announce(ctx context.Context) error {
	for _, p := range m.Calendars() {
		if err := m.bus.Publish(ctx, bus.Message{Name: bus.AddCalendar, ID: m.id, Payload: p}); err != nil {
			return fmt.Errorf("announce %s: %w", config.RedactURL(p.URL), err)
		}
	}
	if err := m.bus.Publish(ctx, bus.Message{Name: bus.AddSwedishCalendar, ID: m.id, Payload: struct{}{}}); err != nil {
		return fmt.Errorf("announce holidays: %w", err)
	}
	return nil
}

// Calendars returns the ADD_CALENDAR payload of every configured source.
func (m *Module) Calendars() []bus.AddCalendarPayload {
	sources := m.cfg.Sources()
	out := make([]bus.AddCalendarPayload, 0, len(sources))
	for _, src := range sources {
		out = append(out, bus.AddCalendarPayload{
			ID:                  m.id,
			URL:                 src.URL,
			ExcludedEvents:      src.ExcludedEvents,
			MaximumEntries:      src.MaximumEntries,
			MaximumNumberOfDays: src.MaximumNumberOfDays,
			PastDaysCount:       src.PastDaysCount,
			FetchInterval:       src.FetchInterval.Milliseconds(),
			SymbolClass:         src.SymbolClass,
			TitleClass:          src.TitleClass,
			TimeClass:           src.TimeClass,
			BroadcastPastEvents: src.BroadcastPastEvents,
		})
	}
	return out
}

// RequestFetch asks the fetcher to refresh url. Unknown URLs are ignored.
func (m *Module) RequestFetch(ctx context.Context, url string) error {
	url = config.NormalizeURL(url)
	if !m.cfg.HasCalendar(url) {
		appLog.Debug("fetch request for unknown calendar ignored", "url", config.RedactURL(url))
		return nil
	}
	return m.bus.Publish(ctx, bus.Message{
		Name:    bus.FetchCalendar,
		ID:      m.id,
		Payload: bus.FetchCalendarPayload{URL: url},
	})
}

// Handle processes one inbound notification. Messages addressed to another
// module instance are dropped, except for holiday data which is shared.
func (m *Module) Handle(ctx context.Context, msg bus.Message) {
	if msg.Name != bus.SwedishDays && msg.ID != m.id {
		appLog.Debug("notification for another module ignored", "name", msg.Name, "id", msg.ID)
		return
	}
	m.metrics.ObserveNotification(string(msg.Name))

	switch p := msg.Payload.(type) {
	case bus.CalendarEventsPayload:
		m.handleEvents(ctx, p)
	case bus.CalendarErrorPayload:
		m.handleError(p)
	case bus.SwedishDaysPayload:
		m.mu.Lock()
		data := p.Data
		m.holidays = &data
		m.recompute(m.now())
		m.mu.Unlock()
		appLog.Debug("holiday data received", "days", len(p.Data.Days))
	default:
		appLog.Warn("unexpected notification payload", "name", msg.Name, "payload", fmt.Sprintf("%T", msg.Payload))
	}
}

func (m *Module) handleEvents(ctx context.Context, p bus.CalendarEventsPayload) {
	url := config.NormalizeURL(p.URL)
	if !m.cfg.HasCalendar(url) {
		appLog.Debug("events for unknown calendar ignored", "url", config.RedactURL(url))
		return
	}

	m.mu.Lock()
	m.agg.SetEvents(url, p.Events)
	appLog.Info("calendar events received", "url", config.RedactURL(url), "count", len(p.Events))

	var list []model.BroadcastEvent
	if m.cfg.BroadcastEvents {
		list = m.broadcastList(m.now())
	}

	switch {
	case m.cfg.UpdateOnFetch:
		m.recompute(m.now())
	case !m.displayed[url]:
		m.displayed[url] = true
		m.recompute(m.now())
	default:
		appLog.Debug("view not updated, waiting for self update", "url", config.RedactURL(url))
	}
	m.mu.Unlock()

	if list != nil {
		if err := m.bus.Publish(ctx, bus.Message{Name: bus.BroadcastEvents, ID: m.id, Payload: bus.BroadcastEventsPayload{Events: list}}); err != nil {
			appLog.Error("broadcast failed", err)
		}
	}
}

func (m *Module) handleError(p bus.CalendarErrorPayload) {
	url := config.NormalizeURL(p.URL)
	if !m.cfg.HasCalendar(url) {
		appLog.Debug("error for unknown calendar ignored", "url", config.RedactURL(url))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.agg.SetError(url, p.ErrorType)
	appLog.Warn("calendar fetch failed", "url", config.RedactURL(url), "error_type", p.ErrorType)
	m.recompute(m.now())
}

// SelfUpdate recomputes the view so time-relative output stays current
// without new data.
func (m *Module) SelfUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	appLog.Debug("self update")
	m.recompute(m.now())
}

// View returns the last computed view.
func (m *Module) View() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view
}

// Broadcast computes the unfiltered, resolved event list.
func (m *Module) Broadcast() []model.BroadcastEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.broadcastList(m.now())
}

// recompute runs the display pipeline. m.mu must be held for writing.
func (m *Module) recompute(now time.Time) {
	res := m.agg.CreateEventList(m.cfg, aggregate.Options{Now: now, Location: m.loc, Limit: true})
	m.metrics.ObserveRun(metrics.ModeDisplay, res.Stats.Output, skipped(res.Stats))

	errs := m.agg.Errors()
	m.view = View{
		Events: res.Events,
		Week: render.BuildWeek(res.Events, render.Options{
			Config:   m.cfg,
			Rules:    m.rules,
			Holidays: m.holidays,
			Loaded:   m.agg.Loaded(),
			Errors:   errs,
			Now:      now,
			Location: m.loc,
		}),
		Loaded:    m.agg.Loaded(),
		Errors:    errs,
		Stats:     res.Stats,
		UpdatedAt: now,
	}
}

// broadcastList runs the pipeline in broadcast mode and resolves the
// presentation properties. m.mu must be held.
func (m *Module) broadcastList(now time.Time) []model.BroadcastEvent {
	res := m.agg.CreateEventList(m.cfg, aggregate.Options{Now: now, Location: m.loc, Limit: false})
	m.metrics.ObserveRun(metrics.ModeBroadcast, res.Stats.Output, skipped(res.Stats))

	out := make([]model.BroadcastEvent, 0, len(res.Events))
	for _, ev := range res.Events {
		src := m.cfg.Resolve(ev.URL)
		be := model.BroadcastEvent{
			CalendarEvent: ev,
			Symbol:        symbolsFor(ev, src, m.rules),
			CalendarName:  src.Name,
			Color:         src.Color,
		}
		be.URL = ""
		out = append(out, be)
	}
	return out
}

// symbolsFor resolves the symbol list of ev. Recurring and full-day
// symbols go in front of the calendar symbols; a matching custom event
// symbol replaces the first entry.
func symbolsFor(ev model.CalendarEvent, src config.Source, rules customevent.Rules) []string {
	prefixed := func(list []string) []string {
		return lo.Map(list, func(s string, _ int) string { return src.SymbolClassName + s })
	}

	symbols := prefixed(src.Symbol)
	if ev.RecurringEvent && len(src.RecurringSymbol) > 0 {
		symbols = lo.Uniq(append(prefixed(src.RecurringSymbol), symbols...))
	}
	if ev.FullDayEvent && len(src.FullDaySymbol) > 0 {
		symbols = lo.Uniq(append(prefixed(src.FullDaySymbol), symbols...))
	}

	if s, ok := rules.Symbol(ev.Title); ok {
		if len(symbols) == 0 {
			symbols = append(symbols, "")
		}
		symbols[0] = src.SymbolClassName + s
	}
	return symbols
}

func skipped(s aggregate.Stats) map[string]int {
	out := make(map[string]int, len(s.Skipped))
	for reason, n := range s.Skipped {
		out[string(reason)] = n
	}
	return out
}
