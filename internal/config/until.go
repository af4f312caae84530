package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Until is a calendar offset such as "3 days" or "1 month". Months and
// years are calendar units, so it is applied with AddTo rather than
// converted to a time.Duration.
type Until struct {
	Amount int
	Unit   string // one of minute, hour, day, week, month, year
}

// ParseUntil parses "<n> <unit>" where unit may be singular or plural.
func ParseUntil(s string) (Until, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) != 2 {
		return Until{}, fmt.Errorf("until %q: expected \"<amount> <unit>\"", s)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return Until{}, fmt.Errorf("until %q: invalid amount", s)
	}
	unit := strings.TrimSuffix(fields[1], "s")
	switch unit {
	case "minute", "hour", "day", "week", "month", "year":
	default:
		return Until{}, fmt.Errorf("until %q: unknown unit %q", s, fields[1])
	}
	return Until{Amount: n, Unit: unit}, nil
}

// AddTo returns t shifted forward by the offset.
func (u Until) AddTo(t time.Time) time.Time {
	switch u.Unit {
	case "minute":
		return t.Add(time.Duration(u.Amount) * time.Minute)
	case "hour":
		return t.Add(time.Duration(u.Amount) * time.Hour)
	case "day":
		return t.AddDate(0, 0, u.Amount)
	case "week":
		return t.AddDate(0, 0, 7*u.Amount)
	case "month":
		return t.AddDate(0, u.Amount, 0)
	case "year":
		return t.AddDate(u.Amount, 0, 0)
	}
	return t
}
