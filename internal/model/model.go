package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Millis is an instant expressed as integer epoch milliseconds, the unit the
// calendar fetcher uses on the wire. It decodes from JSON numbers as well as
// numeric strings.
type Millis int64

// MillisOf converts t to epoch milliseconds.
func MillisOf(t time.Time) Millis {
	return Millis(t.UnixMilli())
}

// Time returns the instant in loc (time.Local when loc is nil).
func (m Millis) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(int64(m)).In(loc)
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	if raw == "" {
		*m = 0
		return nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*m = Millis(n)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("millis: invalid timestamp %q", raw)
	}
	*m = Millis(int64(f))
	return nil
}

// DayFlags mark whether an event starts on a day close to "now".
type DayFlags struct {
	Today              bool `json:"today"`
	Yesterday          bool `json:"yesterday"`
	Tomorrow           bool `json:"tomorrow"`
	DayBeforeYesterday bool `json:"dayBeforeYesterday"`
	DayAfterTomorrow   bool `json:"dayAfterTomorrow"`
}

// CalendarEvent is a single already-parsed event delivered by the fetcher.
//
// All fields are values so that copying an event (or a slice of events)
// never aliases the stored batch.
type CalendarEvent struct {
	Title          string `json:"title"`
	StartDate      Millis `json:"startDate"`
	EndDate        Millis `json:"endDate"`
	FullDayEvent   bool   `json:"fullDayEvent"`
	RecurringEvent bool   `json:"recurringEvent"`
	Class          string `json:"class,omitempty"`

	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	// FirstYear is the year of the first occurrence of a recurring event
	// (e.g. a birthday), when the fetcher knows it.
	FirstYear int `json:"firstYear,omitempty"`

	// URL is the source calendar key; it is assigned during aggregation
	// and never present on raw input.
	URL string `json:"url,omitempty"`

	DayFlags
}

// BroadcastEvent is the shape published to other modules: the event without
// its source key, plus the resolved presentation properties.
type BroadcastEvent struct {
	CalendarEvent
	Symbol       []string `json:"symbol"`
	CalendarName string   `json:"calendarName"`
	Color        string   `json:"color"`
}

// HolidayDay is one entry of the holiday/flag-day dataset.
type HolidayDay struct {
	Date    string `json:"datum,omitempty"`
	RedDay  string `json:"röd dag"`
	FlagDay string `json:"flaggdag"`
}

// IsRedDay reports whether the day is a public holiday.
func (d HolidayDay) IsRedDay() bool {
	return d.RedDay == "Ja"
}

// IsFlagDay reports whether the day is an official flag day.
func (d HolidayDay) IsFlagDay() bool {
	return d.FlagDay != ""
}

// HolidayData holds a year of holiday entries indexed by day-of-year - 1.
type HolidayData struct {
	Days []HolidayDay `json:"dagar"`
}

// Lookup returns the entry for t's day of year, if present.
func (h *HolidayData) Lookup(t time.Time) (HolidayDay, bool) {
	if h == nil {
		return HolidayDay{}, false
	}
	idx := t.YearDay() - 1
	if idx < 0 || idx >= len(h.Days) {
		return HolidayDay{}, false
	}
	return h.Days[idx], true
}
