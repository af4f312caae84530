package aggregate

import (
	"regexp"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"mirrorcal/internal/config"
	appLog "mirrorcal/internal/log"
)

type excludeRule struct {
	match func(title string) bool
	until *config.Until
}

type excluder []excludeRule

// compileExcluded turns the configured rules into matchers. Rules that fail
// to compile are logged and ignored; config validation normally catches
// them first.
func compileExcluded(rules []config.ExcludedEvent) excluder {
	out := make(excluder, 0, len(rules))
	for _, r := range rules {
		if r.FilterBy == "" {
			continue
		}
		rule, err := compileRule(r)
		if err != nil {
			appLog.Error("excluded event rule ignored", err, "filter_by", r.FilterBy)
			continue
		}
		out = append(out, rule)
	}
	return out
}

func compileRule(r config.ExcludedEvent) (excludeRule, error) {
	var rule excludeRule

	if r.Until != "" {
		u, err := config.ParseUntil(r.Until)
		if err != nil {
			return rule, err
		}
		rule.until = &u
	}

	switch {
	case r.Regex:
		expr := r.FilterBy
		if !r.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return rule, err
		}
		rule.match = re.MatchString
	case r.Glob:
		pattern := r.FilterBy
		if !r.CaseSensitive {
			pattern = strings.ToLower(pattern)
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return rule, err
		}
		caseSensitive := r.CaseSensitive
		rule.match = func(title string) bool {
			if !caseSensitive {
				title = strings.ToLower(title)
			}
			return g.Match(title)
		}
	default:
		needle := r.FilterBy
		if r.CaseSensitive {
			rule.match = func(title string) bool { return strings.Contains(title, needle) }
		} else {
			needle = strings.ToLower(needle)
			rule.match = func(title string) bool { return strings.Contains(strings.ToLower(title), needle) }
		}
	}
	return rule, nil
}

// excluded reports whether an event titled title starting at start is hidden
// at now. A rule with an until offset hides the event only while it starts
// later than now+until.
func (x excluder) excluded(title string, start, now time.Time) bool {
	for _, r := range x {
		if !r.match(title) {
			continue
		}
		if r.until == nil || start.After(r.until.AddTo(now)) {
			return true
		}
	}
	return false
}
