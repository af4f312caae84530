package aggregate

import (
	"math"
	"time"

	"github.com/teambition/rrule-go"

	appLog "mirrorcal/internal/log"
	"mirrorcal/internal/model"
)

const day = 24 * time.Hour

// startOfDay returns local midnight of t's calendar day in t's location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayDiff returns the number of calendar days from a to b, ignoring the
// time of day and DST shifts.
func dayDiff(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ca := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	cb := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(cb.Sub(ca) / day)
}

// AdjustedEnd returns the event end used for all day arithmetic: one second
// before the stored end, so an event ending at midnight belongs to the
// previous day. If that moves the end to a day before the start the second
// is given back.
func AdjustedEnd(ev model.CalendarEvent, loc *time.Location) time.Time {
	start := ev.StartDate.Time(loc)
	end := ev.EndDate.Time(loc).Add(-time.Second)
	if dayDiff(start, end) < 0 {
		end = end.Add(time.Second)
	}
	return end
}

// spanDays is ceil((end - start) / 24h).
func spanDays(start, end time.Time) int {
	return int(math.Ceil(float64(end.Sub(start)) / float64(day)))
}

func dayFlags(start, now time.Time) model.DayFlags {
	d := dayDiff(now, start)
	return model.DayFlags{
		Today:              d == 0,
		Yesterday:          d == -1,
		Tomorrow:           d == 1,
		DayBeforeYesterday: d == -2,
		DayAfterTomorrow:   d == 2,
	}
}

// DayStarts returns the local midnights of n consecutive days beginning
// with now's day.
func DayStarts(now time.Time, n int, loc *time.Location) []time.Time {
	if n <= 0 {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}
	first := startOfDay(now.In(loc))

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Count:   n,
		Dtstart: first,
	})
	if err != nil {
		appLog.Error("day window: failed to build daily rule", err, "days", n)
		out := make([]time.Time, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, first.AddDate(0, 0, i))
		}
		return out
	}
	return r.All()
}
