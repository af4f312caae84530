// Package customevent applies the configured custom event rules: title
// rewriting and per-title symbol, color and class overrides.
package customevent

import (
	"fmt"
	"regexp"
	"strings"

	"mirrorcal/internal/config"
)

// Rule is one compiled custom event.
type Rule struct {
	keyword *regexp.Regexp

	Symbol     string
	Color      string
	EventClass string

	search  *regexp.Regexp
	replace string
	global  bool
}

// Matches reports whether the rule's keyword matches title.
func (r Rule) Matches(title string) bool {
	return r.keyword.MatchString(title)
}

// Rules is an ordered list of compiled custom events.
type Rules []Rule

// slashPattern matches a search written as /pattern/flags.
var slashPattern = regexp.MustCompile(`^/(.+)/([gimsuy]*)$`)

// Compile compiles the configured custom events. Keywords are case
// insensitive regular expressions.
func Compile(events []config.CustomEvent) (Rules, error) {
	out := make(Rules, 0, len(events))
	for i, ce := range events {
		kw, err := regexp.Compile("(?i)" + ce.Keyword)
		if err != nil {
			return nil, fmt.Errorf("custom_events[%d].keyword: %w", i, err)
		}
		r := Rule{
			keyword:    kw,
			Symbol:     ce.Symbol,
			Color:      ce.Color,
			EventClass: ce.EventClass,
		}
		if ce.Transform != nil && ce.Transform.Search != "" {
			r.search, r.global, err = compileSearch(ce.Transform.Search)
			if err != nil {
				return nil, fmt.Errorf("custom_events[%d].transform.search: %w", i, err)
			}
			r.replace = expandTemplate(ce.Transform.Replace)
		}
		out = append(out, r)
	}
	return out, nil
}

// compileSearch accepts "/pattern/flags" or a bare pattern. A bare pattern
// replaces every match; the slash form replaces every match only with the
// g flag.
func compileSearch(s string) (*regexp.Regexp, bool, error) {
	m := slashPattern.FindStringSubmatch(s)
	if m == nil {
		re, err := regexp.Compile(s)
		return re, true, err
	}

	pattern, flags := m[1], m[2]
	var goFlags string
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			goFlags += string(f)
		}
	}
	if goFlags != "" {
		pattern = "(?" + goFlags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	return re, strings.ContainsRune(flags, 'g'), err
}

// expandTemplate rewrites a replacement string using $1, $& and $<name>
// references into the ${1} form understood by regexp.Expand. Any other
// dollar sign is kept literally.
func expandTemplate(repl string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		c := repl[i]
		if c != '$' || i+1 == len(repl) {
			if c == '$' {
				b.WriteString("$$")
			} else {
				b.WriteByte(c)
			}
			continue
		}

		next := repl[i+1]
		switch {
		case next == '$':
			b.WriteString("$$")
			i++
		case next == '&':
			b.WriteString("${0}")
			i++
		case next >= '0' && next <= '9':
			j := i + 1
			for j < len(repl) && j < i+3 && repl[j] >= '0' && repl[j] <= '9' {
				j++
			}
			b.WriteString("${" + repl[i+1:j] + "}")
			i = j - 1
		case next == '<':
			end := strings.IndexByte(repl[i+2:], '>')
			if end < 0 {
				b.WriteString("$$")
				continue
			}
			b.WriteString("${" + repl[i+2:i+2+end] + "}")
			i += end + 2
		default:
			b.WriteString("$$")
		}
	}
	return b.String()
}

// Transform applies, in order, the title transform of every rule whose
// keyword matches the title at that point.
func (rs Rules) Transform(title string) string {
	for _, r := range rs {
		if r.search == nil || !r.Matches(title) {
			continue
		}
		title = r.apply(title)
	}
	return title
}

func (r Rule) apply(title string) string {
	if r.global {
		return r.search.ReplaceAllString(title, r.replace)
	}
	loc := r.search.FindStringSubmatchIndex(title)
	if loc == nil {
		return title
	}
	var dst []byte
	dst = r.search.ExpandString(dst, r.replace, title, loc)
	return title[:loc[0]] + string(dst) + title[loc[1]:]
}

// Symbol returns the symbol of the first rule with a symbol that matches.
func (rs Rules) Symbol(title string) (string, bool) {
	return rs.first(title, func(r Rule) string { return r.Symbol })
}

// Color returns the color of the first rule with a color that matches.
func (rs Rules) Color(title string) (string, bool) {
	return rs.first(title, func(r Rule) string { return r.Color })
}

// EventClass returns the class of the first rule with a class that matches.
func (rs Rules) EventClass(title string) (string, bool) {
	return rs.first(title, func(r Rule) string { return r.EventClass })
}

func (rs Rules) first(title string, field func(Rule) string) (string, bool) {
	for _, r := range rs {
		if v := field(r); v != "" && r.Matches(title) {
			return v, true
		}
	}
	return "", false
}
