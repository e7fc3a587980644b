package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is one firing of a reminder.
type Record struct {
	Event        string    `json:"event"`
	ScheduledFor time.Time `json:"scheduled_for"`
	FiredAt      time.Time `json:"fired_at"`
	TookMS       int64     `json:"took_ms"`
	Error        string    `json:"error,omitempty"`
}

func (r Record) OK() bool { return r.Error == "" }
