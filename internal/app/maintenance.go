package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	logx "weeklybot/pkg/logx"
)

const pruneSchedule = "@daily"

// startMaintenance schedules history pruning. It is a no-op without storage.
func (a *App) startMaintenance() error {
	if a.store == nil {
		return nil
	}
	a.cron = cron.New(cron.WithLocation(time.UTC))
	if _, err := a.cron.AddFunc(pruneSchedule, func() { a.pruneHistory(a.sup.Context()) }); err != nil {
		return err
	}
	a.cron.Start()
	a.sup.Go0("maintenance.prune_initial", func(c context.Context) { a.pruneHistory(c) })
	return nil
}

func (a *App) stopMaintenance(ctx context.Context) error {
	if a.cron == nil {
		return nil
	}
	select {
	case <-a.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pruneHistory deletes firings older than storage.retention.
func (a *App) pruneHistory(ctx context.Context) {
	cfg := a.cfgm.Get()
	if cfg == nil || a.store == nil {
		return
	}
	keep, err := cfg.StorageRetention()
	if err != nil || keep <= 0 {
		return
	}
	cutoff := a.clock().Add(-keep)
	n, err := a.store.PruneBefore(ctx, cutoff)
	if err != nil {
		a.log.Warn("history prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		a.log.Info("history pruned", logx.Int("removed", n), logx.Time("before", cutoff))
	}
}
