package notifier

import (
	"time"

	kit "weeklybot/internal/transport"
)

// Config controls delivery of notifications.
type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
	DedupWindow   time.Duration
}

// DefaultConfig holds the values used for unset fields. RetryMax 0 is a
// valid setting for the Service, so only the config layer defaults it.
func DefaultConfig() Config {
	return Config{
		RatePerSec:    1,
		RetryMax:      3,
		RetryBase:     500 * time.Millisecond,
		RetryMaxDelay: 10 * time.Second,
		SendTimeout:   15 * time.Second,
		DedupWindow:   2 * time.Minute,
	}
}

// Notification is one message to deliver. A non-empty Key suppresses
// repeated deliveries of the same key within the dedup window.
type Notification struct {
	Target  kit.ChatTarget
	Text    string
	Key     string
	Options *kit.SendOptions
}

// NotificationEvent is emitted on the event bus after each delivery attempt.
type NotificationEvent struct {
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Key      string    `json:"key,omitempty"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

const (
	EventSent   = "notifier.sent"
	EventFailed = "notifier.failed"
)
