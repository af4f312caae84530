package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorcal/internal/model"
)

func TestExport(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	day := time.Date(2026, 10, 20, 0, 0, 0, 0, cet)

	events := []model.BroadcastEvent{
		{
			CalendarEvent: model.CalendarEvent{
				Title:        "Holiday",
				StartDate:    model.MillisOf(day),
				EndDate:      model.MillisOf(day.AddDate(0, 0, 1)),
				FullDayEvent: true,
			},
			CalendarName: "Family",
			Color:        "#3a7",
		},
		{
			CalendarEvent: model.CalendarEvent{
				Title:     "Dentist",
				StartDate: model.MillisOf(day.Add(10 * time.Hour)),
				EndDate:   model.MillisOf(day.Add(11 * time.Hour)),
				Location:  "Main street 1",
				Class:     "PRIVATE",
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, events, day, cet))

	out := buf.String()
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20261020")
	assert.Contains(t, out, "DTSTART:20261020T090000Z")

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, cal.Events(), 2)

	first := cal.Events()[0]
	assert.Equal(t, EventUID(events[0]), first.Id())
	assert.Equal(t, "Holiday", first.GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "Family", first.GetProperty(ical.ComponentPropertyCategories).Value)

	second := cal.Events()[1]
	assert.Equal(t, "Main street 1", second.GetProperty(ical.ComponentPropertyLocation).Value)
	assert.Equal(t, "PRIVATE", second.GetProperty(ical.ComponentPropertyClass).Value)
}

func TestEventUIDIsStable(t *testing.T) {
	ev := model.BroadcastEvent{CalendarEvent: model.CalendarEvent{Title: "A", StartDate: 1, EndDate: 2}}
	assert.Equal(t, EventUID(ev), EventUID(ev))

	other := ev
	other.EndDate = 3
	assert.NotEqual(t, EventUID(ev), EventUID(other))
}

func TestExportGivesRepeatedEventsDistinctUIDs(t *testing.T) {
	day := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	planning := model.BroadcastEvent{CalendarEvent: model.CalendarEvent{
		Title:     "Planning",
		StartDate: model.MillisOf(day),
		EndDate:   model.MillisOf(day.Add(time.Hour)),
	}}
	events := []model.BroadcastEvent{planning, planning, planning}

	var first, second bytes.Buffer
	require.NoError(t, Export(&first, events, day, time.UTC))
	require.NoError(t, Export(&second, events, day, time.UTC))

	cal, err := ical.ParseCalendar(strings.NewReader(first.String()))
	require.NoError(t, err)
	require.Len(t, cal.Events(), 3)

	uids := make(map[string]bool)
	for _, ev := range cal.Events() {
		uids[ev.Id()] = true
	}
	assert.Len(t, uids, 3)
	assert.Equal(t, EventUID(planning), cal.Events()[0].Id())
	assert.Equal(t, first.String(), second.String(), "UIDs are stable across exports")
}
