package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorcal/internal/config"
	"mirrorcal/internal/customevent"
	"mirrorcal/internal/model"
)

const calURL = "http://example.com/family.ics"

var (
	cet = time.FixedZone("CET", 3600)
	now = time.Date(2026, 10, 19, 9, 30, 0, 0, cet)
)

func at(dayOffset, hh int) model.Millis {
	return model.MillisOf(time.Date(2026, 10, 19+dayOffset, hh, 0, 0, 0, cet))
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	name, color := "Family", "#3a7"
	cfg.Calendars = []config.CalendarConfig{{URL: calURL, Name: &name, Color: &color}}
	cfg.NumberOfDays = 3
	return cfg
}

func TestShorten(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		max      int
		wrap     bool
		maxLines int
		want     []string
	}{
		{name: "short enough", in: "  Lunch ", max: 25, want: []string{"Lunch"}},
		{name: "cut with ellipsis", in: "Quarterly planning meeting", max: 10, want: []string{"Quarterly…"}},
		{name: "disabled", in: "Quarterly planning meeting", max: 0, want: []string{"Quarterly planning meeting"}},
		{name: "counts runes", in: "Smörgåsbord", max: 11, want: []string{"Smörgåsbord"}},
		{name: "wrap", in: "Quarterly planning meeting today", max: 12, wrap: true, maxLines: 3, want: []string{"Quarterly", "planning", "meeting" + "…"}},
		{name: "wrap fits", in: "one two three", max: 10, wrap: true, maxLines: 3, want: []string{"one two", "three"}},
		{name: "long word keeps its line", in: "Supercalifragilistic day", max: 8, wrap: true, maxLines: 2, want: []string{"Supercalifragilistic", "day"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Shorten(tt.in, tt.max, tt.wrap, tt.maxLines))
		})
	}
}

func TestDisplayTitle(t *testing.T) {
	cfg := testConfig()
	cfg.DisplayRepeatingCountTitle = true
	title := "birthday"
	cfg.Calendars[0].RepeatingCountTitle = &title
	rules, err := customevent.Compile(cfg.CustomEvents)
	require.NoError(t, err)

	ev := model.CalendarEvent{Title: "Anna's birthday", StartDate: at(1, 0), EndDate: at(2, 0), FirstYear: 1990}
	got := DisplayTitle(ev, cfg.Resolve(calURL), cfg, rules, cet)
	assert.Equal(t, []string{"Anna, 36. birthday"}, got)

	ev.FirstYear = 0
	assert.Equal(t, []string{"Anna"}, DisplayTitle(ev, cfg.Resolve(calURL), cfg, rules, cet))
}

func TestBuildWeek(t *testing.T) {
	cfg := testConfig()
	cfg.CustomEvents = []config.CustomEvent{{Keyword: "gym", Color: "#f00", EventClass: "sport"}}
	rules, err := customevent.Compile(cfg.CustomEvents)
	require.NoError(t, err)

	holidays := &model.HolidayData{Days: make([]model.HolidayDay, 366)}
	holidays.Days[now.YearDay()] = model.HolidayDay{RedDay: "Ja", FlagDay: "FN-dagen"}

	events := []model.CalendarEvent{
		{Title: "Holiday", StartDate: at(0, 0), EndDate: at(1, 0), FullDayEvent: true, URL: calURL},
		{Title: "Gym", StartDate: at(1, 18), EndDate: at(1, 19), URL: calURL},
	}

	w := BuildWeek(events, Options{Config: cfg, Rules: rules, Holidays: holidays, Loaded: true, Now: now, Location: cet})

	assert.Equal(t, StateGrid, w.State)
	require.Len(t, w.Headers, 3)
	assert.Equal(t, "Monday", w.Headers[0].Weekday)
	assert.Equal(t, 19, w.Headers[0].DayNumber)
	assert.False(t, w.Headers[0].RedDay)
	assert.True(t, w.Headers[1].RedDay)
	assert.True(t, w.Headers[1].FlagDay)

	want := [][]string{{"Holiday"}, {"Gym"}, {}}
	got := make([][]string, len(w.Days))
	for i, d := range w.Days {
		got[i] = []string{}
		for _, it := range d {
			got[i] = append(got[i], it.Title)
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected grid (-want +got):\n%s", diff)
	}

	holiday := w.Days[0][0]
	assert.True(t, holiday.FullDay)
	assert.Equal(t, "#3a7", holiday.Color)
	assert.Equal(t, "Family", holiday.Calendar)
	assert.Empty(t, holiday.Time)

	gym := w.Days[1][0]
	assert.Equal(t, "#f00", gym.Color)
	assert.Equal(t, "sport", gym.EventClass)
	assert.Equal(t, "18:00", gym.Time)
}

func TestBuildWeekStates(t *testing.T) {
	cfg := testConfig()
	opts := Options{Config: cfg, Now: now, Location: cet}

	assert.Equal(t, StateLoading, BuildWeek(nil, opts).State)

	opts.Loaded = true
	assert.Equal(t, StateEmpty, BuildWeek(nil, opts).State)

	opts.Errors = map[string]string{calURL: "NOT_FOUND"}
	w := BuildWeek(nil, opts)
	assert.Equal(t, StateError, w.State)
	assert.Equal(t, []SourceError{{URL: "http://example.com/...(redacted)", Kind: "NOT_FOUND"}}, w.Errors)

	events := []model.CalendarEvent{{Title: "A", StartDate: at(0, 12), EndDate: at(0, 13), URL: calURL}}
	w = BuildWeek(events, opts)
	assert.Equal(t, StateGrid, w.State, "data is still shown next to an error")
	assert.Len(t, w.Errors, 1)
}

func TestWriteHTML(t *testing.T) {
	cfg := testConfig()
	events := []model.CalendarEvent{
		{Title: "Holiday", StartDate: at(0, 0), EndDate: at(1, 0), FullDayEvent: true, URL: calURL},
		{Title: "<b>Dinner</b>", StartDate: at(1, 18), EndDate: at(1, 19), URL: calURL},
	}
	w := BuildWeek(events, Options{Config: cfg, Loaded: true, Now: now, Location: cet})

	var buf bytes.Buffer
	require.NoError(t, w.WriteHTML(&buf))
	html := buf.String()

	assert.Contains(t, html, `data-ready="true"`)
	assert.Contains(t, html, `<table class="small">`)
	assert.Contains(t, html, `<p class="fullDayEvent" style="background-color: #3a7">Holiday</p>`)
	assert.Contains(t, html, `style="color: #3a7"`)
	assert.Contains(t, html, `&lt;b&gt;Dinner&lt;/b&gt;`)
	assert.Contains(t, html, `<span class="dayNumber">19</span>`)

	buf.Reset()
	empty := BuildWeek(nil, Options{Config: cfg, Loaded: true, Now: now, Location: cet})
	require.NoError(t, empty.WriteHTML(&buf))
	assert.Contains(t, buf.String(), `<table class="small dimmed"><tr><td>No upcoming events.</td></tr></table>`)
}

func TestColorStyleRejectsUnsafeValues(t *testing.T) {
	assert.Equal(t, "color: red", string(colorStyle("color", "red")))
	assert.Empty(t, string(colorStyle("color", "red; background: url(x)")))
}
