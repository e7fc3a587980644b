package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"weeklybot/internal/config"
	"weeklybot/internal/eventbus"
	"weeklybot/internal/notifier"
	"weeklybot/internal/observability/debug"
	rtsup "weeklybot/internal/runtime/supervisor"
	"weeklybot/internal/storage"
	kit "weeklybot/internal/transport"
	"weeklybot/internal/transport/console"
	"weeklybot/internal/transport/telegram"
	logx "weeklybot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	sender kit.Sender
	tg     *telegram.Adapter // nil when messages go to the log
	notif  *notifier.Service
	cron   *cron.Cron
	debug  *debug.Server
	clock  func() time.Time

	remMu sync.Mutex
	rem   *reminders
}

// Option customizes New.
type Option func(*options)

type options struct {
	sender kit.Sender
	clock  func() time.Time
}

// WithSender replaces the transport chosen from config.
func WithSender(s kit.Sender) Option { return func(o *options) { o.sender = s } }

// WithClock replaces the wall clock used by the reminder loops.
func WithClock(clock func() time.Time) Option { return func(o *options) { o.clock = clock } }

// New loads and validates the config at cfgPath and wires every component.
// Nothing runs until Start.
func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	sender := o.sender
	var tg *telegram.Adapter
	if sender == nil && strings.TrimSpace(cfg.Telegram.Token) != "" {
		poll, err := cfg.TelegramPollTimeout()
		if err != nil {
			return nil, err
		}
		tg, err = telegram.New(telegram.Config{
			Token:        cfg.Telegram.Token,
			PollTimeout:  poll,
			AllowedChats: commandChats(cfg),
			OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
		}, logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = tg
	}

	var logSender kit.Sender
	if tg != nil {
		logSender = tg
	}
	logSvc, log := logx.New(cfg.LoggingRuntime(), logSender)
	if tg != nil {
		tg.SetLogger(log.With(logx.String("comp", "telegram")))
	}
	if sender == nil {
		sender = console.New(log.With(logx.String("comp", "console")))
		log.Info("telegram token not set; messages are written to the log")
	}

	bus := eventbus.New()

	sc, err := cfg.StorageRuntime()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	ncfg, err := cfg.NotifierRuntime()
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, sender, log.With(logx.String("comp", "notifier")), bus)

	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgm:   cfgm,
		log:    log.With(logx.String("comp", "app")),
		logs:   logSvc,
		bus:    bus,
		store:  store,
		sender: sender,
		tg:     tg,
		notif:  notif,
		clock:  o.clock,
	}
	a.debug = debug.New(cfg.DebugRuntime(), func() any { return a.Statuses() }, log.With(logx.String("comp", "debug")))
	return a, nil
}

// Config returns the config currently in effect.
func (a *App) Config() *config.Config { return a.cfgm.Get() }

// Bus exposes reminder and notifier events.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Store returns the firing history, or nil when storage is disabled.
func (a *App) Store() storage.Store { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	if a.tg != nil {
		if cfg.Telegram.Commands {
			a.registerCommands()
		}
		if err := a.tg.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	if err := a.startMaintenance(); err != nil {
		return err
	}

	a.startReminders(cfg)
	a.debug.Start(a.sup.Context())

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.Int("events", a.ReminderCount()))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// Each step gets its own bound so one component can't stall the whole stop.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	}

	step("reminders", 5*time.Second, func(c context.Context) error { return a.stopReminders(c) })
	step("debug", 2*time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("maintenance", 2*time.Second, func(c context.Context) error { return a.stopMaintenance(c) })
	step("telegram", 2*time.Second, func(c context.Context) error {
		if a.tg != nil {
			return a.tg.Stop(c)
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
