package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StringList accepts either a single scalar or a sequence in YAML, e.g.
//
//	symbol: calendar-alt
//	symbol: [calendar-alt, birthday-cake]
type StringList []string

func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*s = nil
			return nil
		}
		*s = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := node.Decode(&out); err != nil {
			return err
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list of strings", node.Line)
	}
}

// ExcludedEvent is a rule that hides matching events from the display view.
// In YAML it is either a plain string (case-insensitive substring of the
// title) or a mapping:
//
//	excluded_events:
//	  - Birthday
//	  - filter_by: "^Standup"
//	    regex: true
//	  - filter_by: "Vacation*"
//	    glob: true
//	    until: 3 days
type ExcludedEvent struct {
	FilterBy      string `yaml:"filter_by" json:"filterBy"`
	Until         string `yaml:"until,omitempty" json:"until,omitempty"`
	CaseSensitive bool   `yaml:"case_sensitive,omitempty" json:"caseSensitive,omitempty"`
	Regex         bool   `yaml:"regex,omitempty" json:"regex,omitempty"`
	Glob          bool   `yaml:"glob,omitempty" json:"glob,omitempty"`
}

func (e *ExcludedEvent) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*e = ExcludedEvent{FilterBy: node.Value}
		return nil
	}
	type plain ExcludedEvent
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = ExcludedEvent(p)
	return nil
}

func (e ExcludedEvent) MarshalYAML() (interface{}, error) {
	if e == (ExcludedEvent{FilterBy: e.FilterBy}) {
		return e.FilterBy, nil
	}
	type plain ExcludedEvent
	return plain(e), nil
}
