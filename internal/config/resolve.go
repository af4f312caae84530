package config

import "time"

// Source is the fully resolved view of one calendar: every optional field of
// the matching CalendarConfig overlaid on the module-wide defaults.
type Source struct {
	URL string `json:"url"`

	// Configured is false when no calendar entry matches the URL; every
	// value then comes from the module defaults.
	Configured bool `json:"-"`

	Name            string   `json:"name"`
	Symbol          []string `json:"symbol"`
	RecurringSymbol []string `json:"recurringSymbol,omitempty"`
	FullDaySymbol   []string `json:"fullDaySymbol,omitempty"`
	SymbolClassName string   `json:"symbolClassName"`

	SymbolClass string `json:"symbolClass"`
	TitleClass  string `json:"titleClass"`
	TimeClass   string `json:"timeClass"`
	Color       string `json:"color"`
	BgColor     string `json:"bgColor,omitempty"`

	RepeatingCountTitle string `json:"repeatingCountTitle"`

	MaximumEntries      int             `json:"maximumEntries"`
	MaximumNumberOfDays int             `json:"maximumNumberOfDays"`
	PastDaysCount       int             `json:"pastDaysCount"`
	ExcludedEvents      []ExcludedEvent `json:"excludedEvents"`
	BroadcastPastEvents bool            `json:"broadcastPastEvents"`
	FetchInterval       time.Duration   `json:"fetchInterval"`
}

// DefaultColor is used for sources without a color.
const DefaultColor = "#fff"

// Resolve returns the settings for url. For each field, the first matching
// calendar entry that sets it wins; otherwise the module default applies.
func (c *Config) Resolve(url string) Source {
	var matches []CalendarConfig
	for _, cal := range c.Calendars {
		if cal.URL == url {
			matches = append(matches, cal)
		}
	}

	src := Source{
		URL:        url,
		Configured: len(matches) > 0,

		Name:            firstSet(matches, func(cc CalendarConfig) *string { return cc.Name }, ""),
		SymbolClassName: firstSet(matches, func(cc CalendarConfig) *string { return cc.SymbolClassName }, c.DefaultSymbolClassName),
		SymbolClass:     firstSet(matches, func(cc CalendarConfig) *string { return cc.SymbolClass }, ""),
		TitleClass:      firstSet(matches, func(cc CalendarConfig) *string { return cc.TitleClass }, ""),
		TimeClass:       firstSet(matches, func(cc CalendarConfig) *string { return cc.TimeClass }, ""),
		Color:           firstSet(matches, func(cc CalendarConfig) *string { return cc.Color }, DefaultColor),
		BgColor:         firstSet(matches, func(cc CalendarConfig) *string { return cc.BgColor }, ""),

		RepeatingCountTitle: firstSet(matches, func(cc CalendarConfig) *string { return cc.RepeatingCountTitle }, c.DefaultRepeatingCountTitle),

		MaximumEntries:      firstSet(matches, func(cc CalendarConfig) *int { return cc.MaximumEntries }, c.MaximumEntries),
		MaximumNumberOfDays: firstSet(matches, func(cc CalendarConfig) *int { return cc.MaximumNumberOfDays }, c.MaximumNumberOfDays),
		PastDaysCount:       firstSet(matches, func(cc CalendarConfig) *int { return cc.PastDaysCount }, c.PastDaysCount),
		BroadcastPastEvents: firstSet(matches, func(cc CalendarConfig) *bool { return cc.BroadcastPastEvents }, c.BroadcastPastEvents),
		FetchInterval:       firstSet(matches, func(cc CalendarConfig) *time.Duration { return cc.FetchInterval }, c.FetchInterval),
	}

	src.Symbol = firstList(matches, func(cc CalendarConfig) StringList { return cc.Symbol }, []string{c.DefaultSymbol})
	src.RecurringSymbol = firstList(matches, func(cc CalendarConfig) StringList { return cc.RecurringSymbol }, nil)
	src.FullDaySymbol = firstList(matches, func(cc CalendarConfig) StringList { return cc.FullDaySymbol }, nil)

	src.ExcludedEvents = c.ExcludedEvents
	for _, cc := range matches {
		if cc.ExcludedEvents != nil {
			src.ExcludedEvents = cc.ExcludedEvents
			break
		}
	}

	return src
}

// Sources resolves every configured calendar, in configuration order.
// Duplicate URLs are reported once.
func (c *Config) Sources() []Source {
	seen := make(map[string]bool, len(c.Calendars))
	out := make([]Source, 0, len(c.Calendars))
	for _, cal := range c.Calendars {
		if seen[cal.URL] {
			continue
		}
		seen[cal.URL] = true
		out = append(out, c.Resolve(cal.URL))
	}
	return out
}

func firstSet[T any](matches []CalendarConfig, get func(CalendarConfig) *T, def T) T {
	for _, cc := range matches {
		if v := get(cc); v != nil {
			return *v
		}
	}
	return def
}

func firstList(matches []CalendarConfig, get func(CalendarConfig) StringList, def []string) []string {
	for _, cc := range matches {
		if v := get(cc); len(v) > 0 {
			return append([]string(nil), v...)
		}
	}
	return def
}
