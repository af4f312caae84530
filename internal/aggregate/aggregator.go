package aggregate

import (
	"errors"
	"sort"
	"time"

	"github.com/samber/lo"

	"mirrorcal/internal/config"
	appLog "mirrorcal/internal/log"
	"mirrorcal/internal/model"
)

// SkipReason names why an event did not make it into a list.
type SkipReason string

const (
	SkipInvalid     SkipReason = "invalid"
	SkipPrivate     SkipReason = "private"
	SkipExcluded    SkipReason = "excluded"
	SkipPast        SkipReason = "past"
	SkipOngoing     SkipReason = "ongoing"
	SkipDuplicate   SkipReason = "duplicate"
	SkipOutOfWindow SkipReason = "out_of_window"
	SkipSourceLimit SkipReason = "source_limit"
	SkipDayLimit    SkipReason = "day_limit"
	SkipGlobalLimit SkipReason = "global_limit"
)

// ClassPrivate is the iCalendar CLASS of events hidden by hide_private.
const ClassPrivate = "PRIVATE"

var errMissingDate = errors.New("event has no start or end date")

// Options parameterise one pipeline run.
type Options struct {
	Now      time.Time
	Location *time.Location
	// Limit selects the display list (filtered and bounded). When false the
	// run produces the unfiltered broadcast list.
	Limit bool
}

// Stats summarises a run.
type Stats struct {
	Input   int
	Output  int
	Skipped map[SkipReason]int
}

func (s *Stats) skip(r SkipReason, n int) {
	if n <= 0 {
		return
	}
	if s.Skipped == nil {
		s.Skipped = make(map[SkipReason]int)
	}
	s.Skipped[r] += n
}

// Result is the output of a run.
type Result struct {
	Events []model.CalendarEvent
	Stats  Stats
}

// Aggregator owns the last event batch received per source, plus the
// loaded flag and per-source error state. It is not safe for concurrent
// use; its owner serialises access.
type Aggregator struct {
	calendarData map[string][]model.CalendarEvent
	errors       map[string]string
	loaded       bool
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		calendarData: make(map[string][]model.CalendarEvent),
		errors:       make(map[string]string),
	}
}

// SetEvents replaces the batch of url and clears its error.
func (a *Aggregator) SetEvents(url string, events []model.CalendarEvent) {
	a.calendarData[url] = append([]model.CalendarEvent(nil), events...)
	delete(a.errors, url)
	a.loaded = true
}

// SetError records a fetch failure for url. The last batch is kept.
func (a *Aggregator) SetError(url, kind string) {
	a.errors[url] = kind
	a.loaded = true
}

// Loaded reports whether any batch or error has been received.
func (a *Aggregator) Loaded() bool {
	return a.loaded
}

// Errors returns a copy of the per-source error kinds.
func (a *Aggregator) Errors() map[string]string {
	out := make(map[string]string, len(a.errors))
	for k, v := range a.errors {
		out[k] = v
	}
	return out
}

// Events returns a copy of the stored batch for url.
func (a *Aggregator) Events(url string) ([]model.CalendarEvent, bool) {
	evs, ok := a.calendarData[url]
	if !ok {
		return nil, false
	}
	return append([]model.CalendarEvent(nil), evs...), true
}

// CreateEventList runs the pipeline over the current state.
func (a *Aggregator) CreateEventList(cfg *config.Config, opts Options) Result {
	return CreateEventList(a.calendarData, cfg, opts)
}

// CreateEventList builds the sorted event list from per-source batches.
//
// In limit mode events are filtered (private, excluded, past, ongoing,
// duplicate), bounded per source, restricted to cfg.LimitDays distinct days
// and truncated to cfg.MaximumEntries. In broadcast mode only annotation,
// slicing and sorting happen. data is never modified.
func CreateEventList(data map[string][]model.CalendarEvent, cfg *config.Config, opts Options) Result {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now.In(loc)

	var res Result
	events := make([]model.CalendarEvent, 0)
	// accepted holds the raw keys of events kept from earlier sources. Keys
	// are taken before slicing, so fragments of one event share its key.
	accepted := make(map[eventKey]bool)

	for _, url := range sourceOrder(data, cfg) {
		src := cfg.Resolve(url)
		excl := compileExcluded(src.ExcludedEvents)
		pastLimit := startOfDay(now.AddDate(0, 0, -src.PastDaysCount))
		future := now.AddDate(0, 0, src.MaximumNumberOfDays)

		byURL := make([]keyedEvent, 0, len(data[url]))
		sourceKeys := make(map[eventKey]bool)
		for i, ev := range data[url] {
			res.Stats.Input++

			if ev.StartDate == 0 || ev.EndDate == 0 {
				res.Stats.skip(SkipInvalid, 1)
				appLog.Warn("skipping event", "err", errMissingDate, "url", config.RedactURL(url), "index", i, "title", ev.Title)
				continue
			}

			start := ev.StartDate.Time(loc)
			end := AdjustedEnd(ev, loc)
			key := keyOf(ev)

			if opts.Limit {
				duplicate := accepted[key] || sourceKeys[key]
				if reason, drop := filterReason(ev, start, end, now, pastLimit, cfg, excl, duplicate); drop {
					res.Stats.skip(reason, 1)
					continue
				}
			}

			ev.URL = url
			ev.DayFlags = dayFlags(start, now)

			if cfg.SliceMultiDayEvents && shouldSlice(ev, loc) {
				for _, frag := range sliceEvent(ev, loc, now) {
					fragEnd := frag.EndDate.Time(loc)
					if fragEnd.After(now) && !fragEnd.After(future) {
						byURL = append(byURL, keyedEvent{frag, key})
						sourceKeys[key] = true
					} else {
						res.Stats.skip(SkipOutOfWindow, 1)
					}
				}
				continue
			}
			byURL = append(byURL, keyedEvent{ev, key})
			sourceKeys[key] = true
		}

		if opts.Limit {
			sort.SliceStable(byURL, func(i, j int) bool {
				return byURL[i].ev.StartDate < byURL[j].ev.StartDate
			})
			appLog.Debug("pushing source events", "url", config.RedactURL(url), "count", len(byURL), "room", src.MaximumEntries)
			if len(byURL) > src.MaximumEntries {
				res.Stats.skip(SkipSourceLimit, len(byURL)-src.MaximumEntries)
				byURL = byURL[:src.MaximumEntries]
			}
		}
		for _, k := range byURL {
			accepted[k.key] = true
			events = append(events, k.ev)
		}
	}

	sortByStart(events)

	if opts.Limit {
		if cfg.LimitDays > 0 {
			var dropped int
			events, dropped = limitDays(events, cfg.LimitDays, cfg.LimitDaysNeverSkip, now, loc)
			res.Stats.skip(SkipDayLimit, dropped)
		}
		if len(events) > cfg.MaximumEntries {
			res.Stats.skip(SkipGlobalLimit, len(events)-cfg.MaximumEntries)
			events = events[:cfg.MaximumEntries]
		}
	}

	res.Events = events
	res.Stats.Output = len(events)
	return res
}

func filterReason(
	ev model.CalendarEvent,
	start, end, now, pastLimit time.Time,
	cfg *config.Config,
	excl excluder,
	duplicate bool,
) (SkipReason, bool) {
	switch {
	case cfg.HidePrivate && ev.Class == ClassPrivate:
		return SkipPrivate, true
	case excl.excluded(ev.Title, start, now):
		return SkipExcluded, true
	case startOfDay(end).Before(pastLimit):
		return SkipPast, true
	case cfg.HideOngoing && start.Before(now):
		return SkipOngoing, true
	case cfg.HideDuplicates && duplicate:
		return SkipDuplicate, true
	}
	return "", false
}

// eventKey identifies an event by title and exact start/end instants.
type eventKey struct {
	title      string
	start, end model.Millis
}

func keyOf(ev model.CalendarEvent) eventKey {
	return eventKey{title: ev.Title, start: ev.StartDate, end: ev.EndDate}
}

// keyedEvent is an accepted event, or fragment, with the key of the raw
// event it came from.
type keyedEvent struct {
	ev  model.CalendarEvent
	key eventKey
}

func sortByStart(events []model.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartDate < events[j].StartDate
	})
}

// sourceOrder lists the keys of data: configured calendars first in config
// order, then any other keys sorted.
func sourceOrder(data map[string][]model.CalendarEvent, cfg *config.Config) []string {
	out := make([]string, 0, len(data))
	for _, cal := range cfg.Calendars {
		if _, ok := data[cal.URL]; ok {
			out = append(out, cal.URL)
		}
	}
	out = lo.Uniq(out)

	rest := lo.Filter(lo.Keys(data), func(url string, _ int) bool {
		return !lo.Contains(out, url)
	})
	sort.Strings(rest)
	return append(out, rest...)
}
