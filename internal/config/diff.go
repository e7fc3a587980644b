package config

import (
	"reflect"
	"sort"
	"strings"

	logx "weeklybot/pkg/logx"
)

// SummarizeConfigChange returns (1) the changed sections, (2) safe attrs for
// logging (never the bot token) and (3) the names of events that were added,
// removed or modified.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.ChatID != nt.ChatID || ot.ThreadID != nt.ThreadID ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		ot.Commands != nt.Commands ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(nt.Token) != ""),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Int64("telegram.chat_id", nt.ChatID),
			logx.Bool("telegram.commands", nt.Commands),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.Int("notifier.retry_max", newCfg.Notifier.RetryMax),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.String("storage.retention", strings.TrimSpace(newCfg.Storage.Retention)),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newCfg.Debug.Addr)),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
		)
	}

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", strings.TrimSpace(newCfg.Timezone)))
	}

	events := diffEvents(oldCfg.Events, newCfg.Events)
	if len(events) > 0 {
		changed = append(changed, "events")
		attrs = append(attrs,
			logx.Int("events.changed_count", len(events)),
			logx.Int("events.enabled_count", countEnabled(newCfg.Events)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, events
}

func countEnabled(events []EventConfig) int {
	n := 0
	for _, ev := range events {
		if ev.IsEnabled() {
			n++
		}
	}
	return n
}

func diffEvents(oldEvs, newEvs []EventConfig) []string {
	index := func(evs []EventConfig) map[string]EventConfig {
		m := make(map[string]EventConfig, len(evs))
		for _, ev := range evs {
			m[strings.TrimSpace(ev.Name)] = ev
		}
		return m
	}
	om, nm := index(oldEvs), index(newEvs)

	set := map[string]struct{}{}
	for k := range om {
		set[k] = struct{}{}
	}
	for k := range nm {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o, okOld := om[name]
		n, okNew := nm[name]
		if okOld != okNew || !reflect.DeepEqual(o, n) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
