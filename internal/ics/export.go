// Package ics exports the broadcast event list as an iCalendar feed so other
// consumers can subscribe to the merged calendar.
package ics

import (
	"fmt"
	"io"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"mirrorcal/internal/model"
)

// uidNamespace scopes the name-based UIDs of exported events.
var uidNamespace = uuid.MustParse("5b0c6f0e-3d55-4f59-9d3e-2a2f1f4c7a10")

// Export writes events as a VCALENDAR to w. Timed events are written in UTC;
// full-day events as DATE values in loc. UIDs are derived from the calendar
// name, title and instants so they stay stable across exports; repeated
// copies of one event get an occurrence suffix so every UID is unique.
func Export(w io.Writer, events []model.BroadcastEvent, now time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendarFor("mirrorcal")
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//mirrorcal//weekly calendar//EN")
	cal.SetXWRCalName("mirrorcal")

	seen := make(map[string]int, len(events))
	for _, ev := range events {
		base := uidKey(ev)
		seen[base]++
		addEvent(cal, ev, uidFor(base, seen[base]), now, loc)
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("ics: serialize: %w", err)
	}
	return nil
}

// EventUID returns the UID of the first occurrence of ev in an export.
func EventUID(ev model.BroadcastEvent) string {
	return uidFor(uidKey(ev), 1)
}

func uidKey(ev model.BroadcastEvent) string {
	return ev.CalendarName + "\x00" + ev.Title + "\x00" +
		strconv.FormatInt(int64(ev.StartDate), 10) + "\x00" + strconv.FormatInt(int64(ev.EndDate), 10)
}

// uidFor derives the UID of the n-th event sharing key, n starting at 1.
func uidFor(key string, n int) string {
	if n > 1 {
		key += "\x00" + strconv.Itoa(n)
	}
	return uuid.NewSHA1(uidNamespace, []byte(key)).String() + "@mirrorcal"
}

func addEvent(cal *ical.Calendar, ev model.BroadcastEvent, uid string, now time.Time, loc *time.Location) {
	ve := cal.AddEvent(uid)
	ve.SetDtStampTime(now.UTC())
	ve.SetSummary(ev.Title)

	start := ev.StartDate.Time(loc)
	end := ev.EndDate.Time(loc)
	if ev.FullDayEvent {
		ve.SetAllDayStartAt(start)
		ve.SetAllDayEndAt(end)
	} else {
		ve.SetStartAt(start.UTC())
		ve.SetEndAt(end.UTC())
	}

	if ev.Location != "" {
		ve.SetLocation(ev.Location)
	}
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if ev.Class != "" {
		ve.SetProperty(ical.ComponentPropertyClass, ev.Class)
	}
	if ev.CalendarName != "" {
		ve.SetProperty(ical.ComponentPropertyCategories, ev.CalendarName)
	}
	if ev.Color != "" {
		ve.SetProperty(ical.ComponentPropertyColor, ev.Color)
	}
}
