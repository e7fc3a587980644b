package config

// Config is the on-disk configuration (JSON or YAML).
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Telegram TelegramConfig `json:"telegram"`
	Notifier NotifierConfig `json:"notifier"`
	Storage  StorageConfig  `json:"storage"`
	Debug    DebugConfig    `json:"debug"`

	// Timezone is the IANA zone used by events that don't set their own.
	Timezone string        `json:"timezone"`
	Events   []EventConfig `json:"events"`
}

// TelegramConfig configures message delivery. Without a token, messages are
// written to the log instead.
type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// OwnerUserIDs may use bot commands from any chat.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// Commands enables /next and /status.
	Commands bool `json:"commands,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// NotifierConfig controls delivery retries and rate limiting.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
	DedupWindow   string `json:"dedup_window,omitempty"`
}

// StorageConfig controls the firing history.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/weeklybot.db", "retention": "2160h" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	// Retention prunes history older than this once a day. Empty keeps everything.
	Retention string `json:"retention,omitempty"`
}

// EventConfig is one weekly reminder.
//
// Days use Monday=0 .. Sunday=6. The time of day is either Hour/Minute or
// At ("HH:MM"); At wins when set.
type EventConfig struct {
	Name     string `json:"name"`
	Enabled  *bool  `json:"enabled,omitempty"` // default true
	Days     []int  `json:"days"`
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	At       string `json:"at,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	// Message is a text/template; see app.renderMessage for fields.
	Message string `json:"message"`

	Recursive   *bool `json:"recursive,omitempty"` // default true
	StopOnError bool  `json:"stop_on_error,omitempty"`

	// Optional per-event destination; defaults to telegram.chat_id/thread_id.
	ChatID   int64 `json:"chat_id,omitempty"`
	ThreadID int   `json:"thread_id,omitempty"`
}

func (e EventConfig) IsEnabled() bool   { return e.Enabled == nil || *e.Enabled }
func (e EventConfig) IsRecursive() bool { return e.Recursive == nil || *e.Recursive }

// DebugConfig enables a local HTTP endpoint with /healthz, /status and
// /debug/pprof. A non-loopback addr needs a token or allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
