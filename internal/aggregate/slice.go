package aggregate

import (
	"fmt"
	"time"

	"mirrorcal/internal/model"
)

// shouldSlice reports whether an event covers more than one day's worth of
// time after the end-date adjustment.
func shouldSlice(ev model.CalendarEvent, loc *time.Location) bool {
	return spanDays(ev.StartDate.Time(loc), AdjustedEnd(ev, loc)) > 1
}

// sliceEvent cuts ev at every local midnight between its start and its
// adjusted end. Fragment k of n is titled "<title> (k/n)"; the fragments are
// contiguous and the last one keeps the original end date. Each fragment
// gets its own day flags.
func sliceEvent(ev model.CalendarEvent, loc *time.Location, now time.Time) []model.CalendarEvent {
	start := ev.StartDate.Time(loc)
	lastDay := startOfDay(AdjustedEnd(ev, loc))
	n := dayDiff(start, lastDay) + 1

	out := make([]model.CalendarEvent, 0, n)
	cur := start
	k := 1
	for startOfDay(cur).Before(lastDay) {
		midnight := startOfDay(cur).AddDate(0, 0, 1)

		frag := ev
		frag.StartDate = model.MillisOf(cur)
		frag.EndDate = model.MillisOf(midnight)
		frag.Title = fmt.Sprintf("%s (%d/%d)", ev.Title, k, n)
		frag.DayFlags = dayFlags(cur, now)
		out = append(out, frag)

		cur = midnight
		k++
	}

	last := ev
	last.StartDate = model.MillisOf(cur)
	last.Title = fmt.Sprintf("%s (%d/%d)", ev.Title, k, n)
	last.DayFlags = dayFlags(cur, now)
	return append(out, last)
}
