package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"weeklybot/internal/notifier"
	"weeklybot/internal/observability/debug"
	"weeklybot/internal/storage"
	logx "weeklybot/pkg/logx"
)

const defaultPollTimeout = 10 * time.Second

// Validate checks every section and builds every enabled event, so a config
// that passes can be scheduled as is.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if _, err := cfg.NotifierRuntime(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.StorageRuntime(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.StorageRetention(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.TelegramPollTimeout(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.DebugRuntime().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("debug.addr: %w", err))
	}
	if strings.TrimSpace(cfg.Telegram.Token) != "" && cfg.Telegram.ChatID == 0 {
		if !hasEventChat(cfg.Events) {
			errs = append(errs, errors.New("telegram.chat_id: required when telegram.token is set"))
		}
	}
	if _, err := cfg.EnabledEvents(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func hasEventChat(events []EventConfig) bool {
	for _, ev := range events {
		if ev.IsEnabled() && ev.ChatID == 0 {
			return false
		}
	}
	return true
}

// NotifierRuntime converts the notifier section, applying defaults.
func (c *Config) NotifierRuntime() (notifier.Config, error) {
	n := c.Notifier
	def := notifier.DefaultConfig()
	out := notifier.Config{
		RatePerSec: n.RatePerSec,
		RetryMax:   n.RetryMax,
	}
	if out.RatePerSec <= 0 {
		out.RatePerSec = def.RatePerSec
	}
	if out.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.retry_max: must be >= 0")
	}
	if out.RetryMax == 0 {
		out.RetryMax = def.RetryMax
	}

	var err error
	fields := []struct {
		path string
		raw  string
		dst  *time.Duration
		def  time.Duration
	}{
		{"notifier.retry_base", n.RetryBase, &out.RetryBase, def.RetryBase},
		{"notifier.retry_max_delay", n.RetryMaxDelay, &out.RetryMaxDelay, def.RetryMaxDelay},
		{"notifier.send_timeout", n.SendTimeout, &out.SendTimeout, def.SendTimeout},
		{"notifier.dedup_window", n.DedupWindow, &out.DedupWindow, def.DedupWindow},
	}
	for _, f := range fields {
		if *f.dst, err = ParseDurationField(f.path, f.raw); err != nil {
			return notifier.Config{}, err
		}
		if *f.dst == 0 {
			*f.dst = f.def
		}
	}
	return out, nil
}

// StorageRuntime converts the storage section. Driver "" means "none".
func (c *Config) StorageRuntime() (storage.Config, error) {
	s := c.Storage
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	switch driver {
	case "", "none", "file", "sqlite":
	default:
		return storage.Config{}, fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
	}
	if (driver == "file" || driver == "sqlite") && strings.TrimSpace(s.Path) == "" {
		return storage.Config{}, fmt.Errorf("storage.path: required for driver %q", driver)
	}
	busy, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(s.Path), BusyTimeout: busy}, nil
}

// StorageRetention returns how long history is kept. 0 keeps everything.
func (c *Config) StorageRetention() (time.Duration, error) {
	return ParseDurationField("storage.retention", c.Storage.Retention)
}

func (c *Config) TelegramPollTimeout() (time.Duration, error) {
	d, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		d = defaultPollTimeout
	}
	return d, nil
}

func (c *Config) LoggingRuntime() logx.Config {
	l := c.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     c.Telegram.ChatID,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func (c *Config) DebugRuntime() debug.Config {
	d := c.Debug
	return debug.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
	}
}
