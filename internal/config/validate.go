package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var validate = validator.New()

// Validate checks struct constraints, the refresh schedule and the
// custom event keywords.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q constraint", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}

	for i, ce := range c.CustomEvents {
		if _, err := regexp.Compile("(?i)" + ce.Keyword); err != nil {
			errs = append(errs, fmt.Errorf("custom_events[%d].keyword: %w", i, err))
		}
	}

	for i, ex := range c.ExcludedEvents {
		if err := checkExcluded(ex); err != nil {
			errs = append(errs, fmt.Errorf("excluded_events[%d]: %w", i, err))
		}
	}
	for i, cal := range c.Calendars {
		for j, ex := range cal.ExcludedEvents {
			if err := checkExcluded(ex); err != nil {
				errs = append(errs, fmt.Errorf("calendars[%d].excluded_events[%d]: %w", i, j, err))
			}
		}
	}

	return errors.Join(errs...)
}

func checkExcluded(ex ExcludedEvent) error {
	if ex.FilterBy == "" {
		return errors.New("filter_by is empty")
	}
	if ex.Regex && ex.Glob {
		return errors.New("regex and glob are mutually exclusive")
	}
	if ex.Regex {
		if _, err := regexp.Compile(ex.FilterBy); err != nil {
			return err
		}
	}
	if ex.Until != "" {
		if _, err := ParseUntil(ex.Until); err != nil {
			return err
		}
	}
	return nil
}
