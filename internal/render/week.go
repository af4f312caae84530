// Package render turns the bounded event list into the weekly grid shown on
// the mirror: a view model for the JSON API and an HTML table.
package render

import (
	"sort"
	"strings"
	"time"

	"mirrorcal/internal/aggregate"
	"mirrorcal/internal/config"
	"mirrorcal/internal/customevent"
	"mirrorcal/internal/model"
)

// State is the overall state of the view.
type State string

const (
	StateLoading State = "loading"
	StateEmpty   State = "empty"
	StateError   State = "error"
	StateGrid    State = "grid"
)

// Header describes one day column.
type Header struct {
	Date      time.Time `json:"date"`
	Weekday   string    `json:"weekday"`
	DayNumber int       `json:"day_number"`
	RedDay    bool      `json:"red_day"`
	FlagDay   bool      `json:"flag_day"`
}

// Item is one event inside a day column.
type Item struct {
	Title       string    `json:"title"`
	TitleLines  []string  `json:"title_lines"`
	RawTitle    string    `json:"raw_title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Time        string    `json:"time,omitempty"`
	FullDay     bool      `json:"full_day"`
	Color       string    `json:"color"`
	EventClass  string    `json:"event_class,omitempty"`
	TitleClass  string    `json:"title_class,omitempty"`
	TimeClass   string    `json:"time_class,omitempty"`
	SymbolClass string    `json:"symbol_class,omitempty"`
	Calendar    string    `json:"calendar,omitempty"`
}

// SourceError is a failing source as shown to the user.
type SourceError struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

// Week is the rendered weekly grid.
type Week struct {
	State       State         `json:"state"`
	TableClass  string        `json:"table_class"`
	Headers     []Header      `json:"headers"`
	Days        [][]Item      `json:"days"`
	Errors      []SourceError `json:"errors,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Options carries everything BuildWeek needs besides the events.
type Options struct {
	Config   *config.Config
	Rules    customevent.Rules
	Holidays *model.HolidayData
	Loaded   bool
	Errors   map[string]string
	Now      time.Time
	Location *time.Location
}

// BuildWeek buckets events (already filtered and bounded) into
// cfg.NumberOfDays columns starting today.
func BuildWeek(events []model.CalendarEvent, opts Options) Week {
	cfg := opts.Config
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now.In(loc)

	w := Week{
		TableClass:  cfg.TableClass,
		Headers:     make([]Header, 0, cfg.NumberOfDays),
		Days:        make([][]Item, 0, cfg.NumberOfDays),
		Errors:      sourceErrors(opts.Errors),
		GeneratedAt: now,
	}

	switch {
	case len(events) == 0 && len(w.Errors) > 0:
		w.State = StateError
	case len(events) == 0 && !opts.Loaded:
		w.State = StateLoading
	case len(events) == 0:
		w.State = StateEmpty
	default:
		w.State = StateGrid
	}

	sources := make(map[string]config.Source)
	for _, b := range aggregate.Bucketize(events, cfg.NumberOfDays, now, loc) {
		w.Headers = append(w.Headers, header(b.Day, opts.Holidays))

		items := make([]Item, 0, len(b.Events))
		for _, ev := range b.Events {
			src, ok := sources[ev.URL]
			if !ok {
				src = cfg.Resolve(ev.URL)
				sources[ev.URL] = src
			}
			items = append(items, item(ev, src, cfg, opts.Rules, loc))
		}
		w.Days = append(w.Days, items)
	}
	return w
}

func header(day time.Time, holidays *model.HolidayData) Header {
	h := Header{
		Date:      day,
		Weekday:   day.Weekday().String(),
		DayNumber: day.Day(),
	}
	if hd, ok := holidays.Lookup(day); ok {
		h.RedDay = hd.IsRedDay()
		h.FlagDay = hd.IsFlagDay()
	}
	return h
}

func item(ev model.CalendarEvent, src config.Source, cfg *config.Config, rules customevent.Rules, loc *time.Location) Item {
	lines := DisplayTitle(ev, src, cfg, rules, loc)
	it := Item{
		Title:       strings.Join(lines, " "),
		TitleLines:  lines,
		RawTitle:    ev.Title,
		Start:       ev.StartDate.Time(loc),
		End:         ev.EndDate.Time(loc),
		FullDay:     ev.FullDayEvent,
		Color:       src.Color,
		TitleClass:  src.TitleClass,
		TimeClass:   src.TimeClass,
		SymbolClass: src.SymbolClass,
		Calendar:    src.Name,
	}
	if !ev.FullDayEvent {
		it.Time = it.Start.Format("15:04")
	}
	if c, ok := rules.Color(ev.Title); ok {
		it.Color = c
	}
	if c, ok := rules.EventClass(ev.Title); ok {
		it.EventClass = c
	}
	return it
}

func sourceErrors(errs map[string]string) []SourceError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]SourceError, 0, len(errs))
	for url, kind := range errs {
		out = append(out, SourceError{URL: config.RedactURL(url), Kind: kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}
