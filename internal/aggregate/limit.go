package aggregate

import (
	"time"

	"mirrorcal/internal/model"
)

// limitDays keeps events from at most limit distinct start days, counting
// from today. Events that start before today do not open a new day. Unless
// neverSkip is set, a first day holding a single full-day event does not
// use up a slot; that exemption is granted at most once per list.
func limitDays(events []model.CalendarEvent, limit int, neverSkip bool, now time.Time, loc *time.Location) ([]model.CalendarEvent, int) {
	out := make([]model.CalendarEvent, 0, len(events))
	lastDay := startOfDay(now.In(loc)).AddDate(0, 0, -1)
	days := 0
	exempted := false
	dropped := 0

	for _, ev := range events {
		evDay := startOfDay(ev.StartDate.Time(loc))
		if evDay.After(lastDay) {
			if !neverSkip && !exempted && len(out) == 1 && days == 1 && out[0].FullDayEvent {
				days--
				exempted = true
			}
			days++
			if days > limit {
				dropped++
				continue
			}
			lastDay = evDay
		}
		out = append(out, ev)
	}
	return out, dropped
}
