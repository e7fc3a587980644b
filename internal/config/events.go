package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"weeklybot/internal/weekly"
)

// EventSpec is a validated, enabled event ready to schedule.
type EventSpec struct {
	EventConfig
	Event weekly.Event
}

// EnabledEvents validates every enabled event and returns them in config order.
func (c *Config) EnabledEvents() ([]EventSpec, error) {
	var (
		out  []EventSpec
		errs []error
		seen = map[string]bool{}
	)
	for i, ec := range c.Events {
		name := strings.TrimSpace(ec.Name)
		path := fmt.Sprintf("events[%d]", i)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", path))
			continue
		}
		path = fmt.Sprintf("events[%s]", name)
		if seen[name] {
			errs = append(errs, fmt.Errorf("%s: duplicate name", path))
			continue
		}
		seen[name] = true
		if !ec.IsEnabled() {
			continue
		}

		ev, err := c.buildEvent(ec)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if _, err := template.New(name).Parse(ec.Message); err != nil {
			errs = append(errs, fmt.Errorf("%s: message: %w", path, err))
			continue
		}
		ec.Name = name
		out = append(out, EventSpec{EventConfig: ec, Event: ev})
	}
	return out, errors.Join(errs...)
}

func (c *Config) buildEvent(ec EventConfig) (weekly.Event, error) {
	hour, minute := ec.Hour, ec.Minute
	if strings.TrimSpace(ec.At) != "" {
		var err error
		hour, minute, err = ParseHHMM(ec.At)
		if err != nil {
			return weekly.Event{}, err
		}
	}
	tz := strings.TrimSpace(ec.Timezone)
	if tz == "" {
		tz = strings.TrimSpace(c.Timezone)
	}
	if tz == "" {
		tz = "UTC"
	}
	return weekly.ParseEvent(ec.Days, hour, minute, tz)
}

// ParseHHMM parses a 24h "HH:MM" time of day.
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
