package render

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"mirrorcal/internal/config"
	"mirrorcal/internal/customevent"
	"mirrorcal/internal/model"
)

const ellipsis = "…"

// DisplayTitle returns the title lines of ev as shown in the grid: custom
// event transforms, then the repeating count suffix, then shortening.
func DisplayTitle(ev model.CalendarEvent, src config.Source, cfg *config.Config, rules customevent.Rules, loc *time.Location) []string {
	title := rules.Transform(ev.Title)

	if cfg.DisplayRepeatingCountTitle && ev.FirstYear != 0 && src.RepeatingCountTitle != "" {
		years := ev.StartDate.Time(loc).Year() - ev.FirstYear
		title = fmt.Sprintf("%s, %d. %s", title, years, src.RepeatingCountTitle)
	}

	return Shorten(title, cfg.MaxTitleLength, cfg.WrapEvents, cfg.MaxTitleLines)
}

// Shorten trims s to maxLength runes, appending an ellipsis when it was cut.
// With wrap set, s is instead broken at spaces into lines of fewer than
// maxLength runes, at most maxLines of them; the last line gets an
// ellipsis when words were left over. A maxLength of zero disables
// shortening.
func Shorten(s string, maxLength int, wrap bool, maxLines int) []string {
	s = strings.TrimSpace(s)
	if maxLength <= 0 {
		return []string{s}
	}

	if !wrap {
		if utf8.RuneCountInString(s) <= maxLength {
			return []string{s}
		}
		r := []rune(s)
		return []string{strings.TrimSpace(string(r[:maxLength])) + ellipsis}
	}

	if maxLines <= 0 {
		maxLines = 1
	}
	var lines []string
	var cur []string
	curLen := 0
	words := strings.Fields(s)
	for _, w := range words {
		wl := utf8.RuneCountInString(w)
		if len(cur) == 0 || curLen+1+wl < maxLength {
			if len(cur) > 0 {
				curLen++
			}
			cur = append(cur, w)
			curLen += wl
			continue
		}

		lines = append(lines, strings.Join(cur, " "))
		if len(lines) == maxLines {
			lines[len(lines)-1] += ellipsis
			return lines
		}
		cur = []string{w}
		curLen = wl
	}
	if len(cur) > 0 {
		lines = append(lines, strings.Join(cur, " "))
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
