package weekly

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestParseEventValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		days   []int
		hour   int
		minute int
		tz     string
		field  string
	}{
		{name: "no days", days: nil, hour: 9, minute: 0, tz: "UTC", field: "days"},
		{name: "negative day", days: []int{-1}, hour: 9, minute: 0, tz: "UTC", field: "days"},
		{name: "day seven", days: []int{1, 7}, hour: 9, minute: 0, tz: "UTC", field: "days"},
		{name: "hour 24", days: []int{1}, hour: 24, minute: 0, tz: "UTC", field: "hour"},
		{name: "negative minute", days: []int{1}, hour: 9, minute: -1, tz: "UTC", field: "minute"},
		{name: "minute 60", days: []int{1}, hour: 9, minute: 60, tz: "UTC", field: "minute"},
		{name: "empty tz", days: []int{1}, hour: 9, minute: 0, tz: " ", field: "timezone"},
		{name: "unknown tz", days: []int{1}, hour: 9, minute: 0, tz: "Mars/Olympus_Mons", field: "timezone"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseEvent(tt.days, tt.hour, tt.minute, tt.tz)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var ice *InvalidConfigError
			if !errors.As(err, &ice) {
				t.Fatalf("expected *InvalidConfigError, got %T", err)
			}
			if ice.Field != tt.field {
				t.Fatalf("Field = %q, want %q", ice.Field, tt.field)
			}
		})
	}
}

func TestParseEventVariants(t *testing.T) {
	t.Parallel()
	single, err := ParseEvent([]int{5}, 12, 42, "UTC")
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if single.Days().Kind() != DaysSingle {
		t.Fatalf("kind = %v, want single", single.Days().Kind())
	}

	multi, err := ParseEvent([]int{4, 0, 2, 0}, 16, 0, "UTC")
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if multi.Days().Kind() != DaysMultiple {
		t.Fatalf("kind = %v, want multiple", multi.Days().Kind())
	}
	if got, want := multi.Days().Weekdays(), []Weekday{Monday, Wednesday, Friday}; !slices.Equal(got, want) {
		t.Fatalf("Weekdays = %v, want %v", got, want)
	}
	if got := multi.String(); got != "Mon,Wed,Fri 16:00 UTC" {
		t.Fatalf("String = %q", got)
	}
}

func TestEventIsImmutable(t *testing.T) {
	t.Parallel()
	src := []Weekday{Monday, Friday}
	days := Multiple(src...)
	ev, err := NewEvent(days, 8, 0, time.UTC)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	src[0] = Sunday
	ev.Days().Weekdays()[0] = Saturday

	if got := ev.Days().Weekdays(); !slices.Equal(got, []Weekday{Monday, Friday}) {
		t.Fatalf("event days changed to %v", got)
	}
}

func TestNewEventRequiresLocation(t *testing.T) {
	t.Parallel()
	if _, err := NewEvent(Single(Monday), 8, 0, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewEvent(Days{}, 8, 0, time.UTC); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for empty days, got %v", err)
	}
	if _, err := NewEvent(Multiple(), 8, 0, time.UTC); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for empty set, got %v", err)
	}
}
