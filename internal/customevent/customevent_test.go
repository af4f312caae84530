package customevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorcal/internal/config"
)

func transform(keyword, search, replace string) config.CustomEvent {
	return config.CustomEvent{Keyword: keyword, Transform: &config.TitleTransform{Search: search, Replace: replace}}
}

func TestTransform(t *testing.T) {
	tests := []struct {
		name  string
		rules []config.CustomEvent
		title string
		want  string
	}{
		{
			name:  "default birthday rules",
			rules: config.DefaultConfig().CustomEvents,
			title: "Anna's birthday",
			want:  "Anna",
		},
		{
			name:  "bare pattern replaces every match",
			rules: []config.CustomEvent{transform(".*", "-", " ")},
			title: "a-b-c",
			want:  "a b c",
		},
		{
			name:  "slash form without g replaces first match",
			rules: []config.CustomEvent{transform(".*", "/-/", " ")},
			title: "a-b-c",
			want:  "a b-c",
		},
		{
			name:  "slash form with flags",
			rules: []config.CustomEvent{transform(".*", "/MEETING/gi", "Mtg")},
			title: "meeting after Meeting",
			want:  "Mtg after Mtg",
		},
		{
			name:  "capture groups in js style",
			rules: []config.CustomEvent{transform(".*", `/(\w+) (\w+)/`, "$2 $1")},
			title: "hello world",
			want:  "world hello",
		},
		{
			name:  "whole match and literal dollar",
			rules: []config.CustomEvent{transform(".*", "/price/", "[$&] $$5 $x")},
			title: "price",
			want:  "[price] $5 $x",
		},
		{
			name:  "keyword gates the transform",
			rules: []config.CustomEvent{transform("^work", "/ \\(.*\\)$/", "")},
			title: "Home (draft)",
			want:  "Home (draft)",
		},
		{
			name: "rules apply in order",
			rules: []config.CustomEvent{
				transform(".*", "Team", "Squad"),
				transform("squad", "Squad", "Crew"),
			},
			title: "Team sync",
			want:  "Crew sync",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, err := Compile(tt.rules)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rules.Transform(tt.title))
		})
	}
}

func TestOverrides(t *testing.T) {
	rules, err := Compile([]config.CustomEvent{
		{Keyword: "gym", Color: "#0f0"},
		{Keyword: "GYM|run", Symbol: "dumbbell", EventClass: "sport"},
		{Keyword: ".*", Symbol: "star"},
	})
	require.NoError(t, err)

	sym, ok := rules.Symbol("Gym session")
	assert.True(t, ok)
	assert.Equal(t, "dumbbell", sym)

	sym, ok = rules.Symbol("Dinner")
	assert.True(t, ok)
	assert.Equal(t, "star", sym)

	color, ok := rules.Color("gym")
	assert.True(t, ok)
	assert.Equal(t, "#0f0", color)

	_, ok = rules.Color("Morning run")
	assert.False(t, ok)

	class, ok := rules.EventClass("Morning run")
	assert.True(t, ok)
	assert.Equal(t, "sport", class)
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile([]config.CustomEvent{{Keyword: "("}})
	assert.ErrorContains(t, err, "custom_events[0].keyword")

	_, err = Compile([]config.CustomEvent{transform(".*", "/([a-z/g", "")})
	assert.ErrorContains(t, err, "custom_events[0].transform.search")
}

func TestExpandTemplate(t *testing.T) {
	assert.Equal(t, "${1}-${12}", expandTemplate("$1-$12"))
	assert.Equal(t, "${name}", expandTemplate("$<name>"))
	assert.Equal(t, "$$", expandTemplate("$"))
	assert.Equal(t, "plain", expandTemplate("plain"))
}
