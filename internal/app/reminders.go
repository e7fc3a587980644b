package app

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"weeklybot/internal/config"
	"weeklybot/internal/eventbus"
	"weeklybot/internal/notifier"
	rtsup "weeklybot/internal/runtime/supervisor"
	"weeklybot/internal/storage"
	kit "weeklybot/internal/transport"
	"weeklybot/internal/weekly"
	logx "weeklybot/pkg/logx"
)

// Event types published on the bus after every firing.
const (
	EventReminderFired  = "reminder.fired"
	EventReminderFailed = "reminder.failed"
)

const defaultMessage = `{{.Name}} ({{.Weekday}} {{.At.Format "15:04"}})`

// FiringEvent is the Data of reminder.* bus events.
type FiringEvent struct {
	Name         string    `json:"name"`
	ScheduledFor time.Time `json:"scheduled_for"`
	FiredAt      time.Time `json:"fired_at"`
	Error        string    `json:"error,omitempty"`
}

// Status is a point-in-time view of one reminder loop.
type Status struct {
	Name      string       `json:"name"`
	Event     string       `json:"event"`
	State     weekly.State `json:"state"`
	Next      time.Time    `json:"next,omitzero"`
	LastFired time.Time    `json:"last_fired,omitzero"`
	LastError string       `json:"last_error,omitempty"`
	Firings   int          `json:"firings"`
	Restarts  int          `json:"restarts"`
}

// reminders is the set of loops started from one config generation.
type reminders struct {
	sup *rtsup.Supervisor

	mu     sync.Mutex
	status map[string]*Status
	order  []string
}

func (r *reminders) observe(name string) func(weekly.Transition) {
	return func(tr weekly.Transition) {
		r.mu.Lock()
		defer r.mu.Unlock()
		st := r.status[name]
		st.State = tr.State
		if tr.State == weekly.StateWaiting {
			st.Next = tr.At
		}
	}
}

func (r *reminders) record(name string, at time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.status[name]
	st.LastFired = at
	st.Firings++
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
}

func (r *reminders) snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.order))
	for _, name := range r.order {
		st := *r.status[name]
		if task, ok := r.sup.Task(taskName(name)); ok {
			st.Restarts = task.Restarts
		}
		out = append(out, st)
	}
	return out
}

// messageData is what an event message template can reference.
type messageData struct {
	Name    string
	At      time.Time
	Weekday string
	Event   string
}

func compileMessage(spec config.EventSpec) (*template.Template, error) {
	text := spec.Message
	if strings.TrimSpace(text) == "" {
		text = defaultMessage
	}
	return template.New(spec.Name).Option("missingkey=error").Parse(text)
}

func renderMessage(tmpl *template.Template, spec config.EventSpec, at time.Time) (string, error) {
	var sb strings.Builder
	err := tmpl.Execute(&sb, messageData{
		Name:    spec.Name,
		At:      at,
		Weekday: at.Weekday().String(),
		Event:   spec.Event.String(),
	})
	return sb.String(), err
}

func target(cfg *config.Config, spec config.EventSpec) kit.ChatTarget {
	to := kit.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID}
	if spec.ChatID != 0 {
		to = kit.ChatTarget{ChatID: spec.ChatID, ThreadID: spec.ThreadID}
	} else if spec.ThreadID != 0 {
		to.ThreadID = spec.ThreadID
	}
	return to
}

// commandChats lists every chat the config sends to: the default chat and
// each event's own chat_id, without zeros or duplicates.
func commandChats(cfg *config.Config) []int64 {
	var out []int64
	add := func(id int64) {
		if id != 0 && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	add(cfg.Telegram.ChatID)
	for _, ev := range cfg.Events {
		add(ev.ChatID)
	}
	return out
}

// startReminders launches one loop per enabled event of cfg under a fresh
// supervisor. Events that fail to build are logged and skipped.
func (a *App) startReminders(cfg *config.Config) {
	specs, err := cfg.EnabledEvents()
	if err != nil {
		a.log.Error("some events are invalid and were skipped", logx.Err(err))
	}

	r := &reminders{
		sup:    rtsup.New(a.sup.Context(), rtsup.WithLogger(a.log.With(logx.String("comp", "reminders")))),
		status: make(map[string]*Status, len(specs)),
	}
	for _, spec := range specs {
		tmpl, err := compileMessage(spec)
		if err != nil {
			a.log.Error("invalid message template; event skipped", logx.String("event", spec.Name), logx.Err(err))
			continue
		}
		r.status[spec.Name] = &Status{Name: spec.Name, Event: spec.Event.String()}
		r.order = append(r.order, spec.Name)
		a.runReminder(r, spec, tmpl, target(cfg, spec))
	}

	a.remMu.Lock()
	a.rem = r
	a.remMu.Unlock()
}

func (a *App) runReminder(r *reminders, spec config.EventSpec, tmpl *template.Template, to kit.ChatTarget) {
	log := a.log.With(logx.String("event", spec.Name))
	sched := weekly.NewScheduler(a.fireAction(r, spec, tmpl, to, log))
	name := taskName(spec.Name)
	restart := spec.IsRecursive() && !spec.StopOnError

	run := func(ctx context.Context) error {
		err := sched.Run(ctx, spec.IsRecursive(), spec.Event,
			weekly.WithClock(a.clock),
			weekly.WithObserver(r.observe(spec.Name)),
			weekly.WithLogger(log),
		)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, weekly.ErrResolverInvariant):
			log.Error("resolver invariant violated", logx.Err(err))
		case !restart:
			log.Error("reminder stopped", logx.Err(err))
		}
		return err
	}

	log.Info("reminder scheduled",
		logx.String("rule", spec.Event.String()),
		logx.Bool("recursive", spec.IsRecursive()),
		logx.Bool("stop_on_error", spec.StopOnError),
	)

	if !restart {
		r.sup.Go(name, run)
		return
	}
	// A failed firing ends Run; the next cycle starts from a fresh now, so
	// the failed occurrence is never fired twice.
	r.sup.GoRestart(name, run,
		rtsup.WithRestartBackoff(time.Second, time.Minute),
		rtsup.WithStopOnCleanExit(true),
	)
}

func taskName(event string) string { return "reminder." + event }

func (a *App) fireAction(r *reminders, spec config.EventSpec, tmpl *template.Template, to kit.ChatTarget, log logx.Logger) weekly.Action {
	return func(ctx context.Context) error {
		at, _ := weekly.Occurrence(ctx)
		firedAt := a.clock()

		text, err := renderMessage(tmpl, spec, at)
		if err == nil {
			err = a.notif.Notify(ctx, notifier.Notification{
				Target: to,
				Text:   text,
				Key:    spec.Name + "@" + at.UTC().Format(time.RFC3339),
			})
		}
		took := a.clock().Sub(firedAt)

		rec := storage.Record{Event: spec.Name, ScheduledFor: at, FiredAt: firedAt, TookMS: took.Milliseconds()}
		ev := FiringEvent{Name: spec.Name, ScheduledFor: at, FiredAt: firedAt}
		typ := EventReminderFired
		if err != nil {
			rec.Error = err.Error()
			ev.Error = err.Error()
			typ = EventReminderFailed
			if errors.Is(err, kit.ErrPermanent) {
				log.Error("reminder undeliverable; check chat_id and bot membership", logx.Time("scheduled_for", at), logx.Err(err))
			} else {
				log.Warn("reminder failed", logx.Time("scheduled_for", at), logx.Err(err))
			}
		} else {
			log.Info("reminder fired", logx.Time("scheduled_for", at), logx.Duration("took", took))
		}

		if a.store != nil {
			if serr := a.store.AppendFiring(ctx, rec); serr != nil {
				log.Warn("record firing failed", logx.Err(serr))
			}
		}
		r.record(spec.Name, at, err)
		a.bus.Publish(eventbus.Event{Type: typ, Time: firedAt, Data: ev})
		return err
	}
}

// stopReminders cancels the current loops and waits for in-flight firings.
func (a *App) stopReminders(ctx context.Context) error {
	a.remMu.Lock()
	r := a.rem
	a.rem = nil
	a.remMu.Unlock()
	if r == nil {
		return nil
	}
	// Errors of loops that already ended were logged when they happened.
	if err := r.sup.Stop(ctx); err != nil && ctx.Err() != nil {
		return err
	}
	return nil
}

// ReminderCount is the number of reminder loops currently scheduled.
func (a *App) ReminderCount() int {
	a.remMu.Lock()
	defer a.remMu.Unlock()
	if a.rem == nil {
		return 0
	}
	return len(a.rem.order)
}

// Statuses reports every running reminder, ordered by next occurrence.
func (a *App) Statuses() []Status {
	a.remMu.Lock()
	r := a.rem
	a.remMu.Unlock()
	if r == nil {
		return nil
	}
	out := r.snapshot()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Next.IsZero() != out[j].Next.IsZero() {
			return !out[i].Next.IsZero()
		}
		return out[i].Next.Before(out[j].Next)
	})
	return out
}
