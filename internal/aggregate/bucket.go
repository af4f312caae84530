package aggregate

import (
	"time"

	"mirrorcal/internal/model"
)

// Bucket is one day column of the weekly grid.
type Bucket struct {
	Day    time.Time
	Events []model.CalendarEvent
}

// Bucketize projects events onto n consecutive days starting with now's
// day. An event lands in every day between its start day and its adjusted
// end day, inclusive, so unsliced multi-day events span several columns.
// Bucket contents keep the order of events.
func Bucketize(events []model.CalendarEvent, n int, now time.Time, loc *time.Location) []Bucket {
	if loc == nil {
		loc = time.Local
	}
	days := DayStarts(now, n, loc)
	buckets := make([]Bucket, len(days))

	for i, d := range days {
		buckets[i] = Bucket{Day: d, Events: make([]model.CalendarEvent, 0)}
		for _, ev := range events {
			startDay := startOfDay(ev.StartDate.Time(loc))
			endDay := startOfDay(AdjustedEnd(ev, loc))
			if !startDay.After(d) && !endDay.Before(d) {
				buckets[i].Events = append(buckets[i].Events, ev)
			}
		}
	}
	return buckets
}
