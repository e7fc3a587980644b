package weekly

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when an Event cannot be constructed.
	ErrInvalidConfig = errors.New("invalid event configuration")

	// ErrResolverInvariant means the resolver produced an occurrence that is
	// not strictly after now. It indicates a bug, not bad input.
	ErrResolverInvariant = errors.New("resolver produced a non-future occurrence")
)

// InvalidConfigError describes which Event field was rejected.
type InvalidConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidConfigError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

func invalid(field string, value any, reason string) error {
	return &InvalidConfigError{Field: field, Value: value, Reason: reason}
}
