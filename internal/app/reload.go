package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"weeklybot/internal/config"
	logx "weeklybot/pkg/logx"
)

// reloadLoop applies hot-reloaded configs until ctx is done.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, events := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if oldCfg != nil && oldCfg.Telegram.Token != newCfg.Telegram.Token {
		a.log.Warn("telegram token changed; restart required for changes to take effect")
	}

	if a.tg != nil && oldCfg != nil {
		if chats := commandChats(newCfg); !slices.Equal(commandChats(oldCfg), chats) ||
			!slices.Equal(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) {
			a.tg.SetAccess(chats, newCfg.Telegram.OwnerUserIDs)
			a.log.Info("command access updated", logx.Int("chats", len(chats)))
		}
	}

	a.logs.Apply(newCfg.LoggingRuntime())

	if ncfg, err := newCfg.NotifierRuntime(); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	if slices.Contains(sections, "debug") {
		a.debug.Reconfigure(ctx, newCfg.DebugRuntime())
	}

	// Event loops keep no state, so a reload simply replaces them.
	if slices.Contains(sections, "events") || slices.Contains(sections, "timezone") || slices.Contains(sections, "telegram") {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.stopReminders(stopCtx); err != nil {
			a.log.Warn("previous reminders did not stop in time", logx.Err(err))
		}
		cancel()
		if ctx.Err() != nil {
			return
		}
		a.startReminders(newCfg)
		a.log.Info("reminders restarted",
			logx.Int("events", a.ReminderCount()),
			logx.String("changed_events", strings.Join(events, ",")),
		)
	}

	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}
