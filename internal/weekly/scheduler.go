package weekly

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "weeklybot/pkg/logx"
)

// Action is invoked once per occurrence. The scheduler waits for it to
// return before resolving the next occurrence.
type Action func(ctx context.Context) error

// Func adapts a plain callback that cannot fail.
func Func(f func()) Action {
	return func(context.Context) error {
		f()
		return nil
	}
}

// State is a step of the scheduling loop.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateWaiting
	StateFiring
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateWaiting:
		return "waiting"
	case StateFiring:
		return "firing"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Transition is reported to observers whenever the loop changes state.
// At and Wait are set from Waiting onwards; Err only on Terminated.
type Transition struct {
	State State
	At    time.Time
	Wait  time.Duration
	Err   error
}

type runConfig struct {
	now      time.Time
	clock    func() time.Time
	observer func(Transition)
	log      logx.Logger
}

type RunOption func(*runConfig)

// WithNow resolves the first cycle as if the current time were t. Later
// cycles read the clock again.
func WithNow(t time.Time) RunOption {
	return func(c *runConfig) { c.now = t }
}

// WithClock replaces the wall clock used to sample now.
func WithClock(clock func() time.Time) RunOption {
	return func(c *runConfig) { c.clock = clock }
}

// WithObserver registers a callback for state transitions. It runs on the
// scheduling goroutine and must not block.
func WithObserver(fn func(Transition)) RunOption {
	return func(c *runConfig) { c.observer = fn }
}

func WithLogger(log logx.Logger) RunOption {
	return func(c *runConfig) { c.log = log }
}

// Scheduler fires an action at each occurrence of an event.
// A Scheduler holds no state between runs and may be reused.
type Scheduler struct {
	action Action
}

func NewScheduler(action Action) *Scheduler {
	return &Scheduler{action: action}
}

// Run resolves the next occurrence of ev, waits for it and fires the action.
// With recursive set, it repeats until ctx is cancelled or the action fails.
//
// Cancellation while waiting returns ctx.Err() without firing. The action
// receives a context that keeps ctx's values but is never cancelled, so a
// firing in progress completes; Run then returns before resolving again.
// Action errors are returned unchanged and stop the loop.
func (s *Scheduler) Run(ctx context.Context, recursive bool, ev Event, opts ...RunOption) (err error) {
	cfg := runConfig{clock: time.Now}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log.IsZero() {
		cfg.log = logx.Nop()
	}
	notify := func(t Transition) {
		if cfg.observer != nil {
			cfg.observer(t)
		}
	}
	notify(Transition{State: StateIdle})
	defer func() { notify(Transition{State: StateTerminated, Err: err}) }()

	if s == nil || s.action == nil {
		return fmt.Errorf("%w: nil action", ErrInvalidConfig)
	}
	if err := ev.validate(); err != nil {
		return err
	}

	override := cfg.now
	// last is the occurrence fired by the previous cycle. Resolving from it
	// when the clock reads earlier (e.g. stepped back) keeps each occurrence
	// to a single firing.
	var last time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		notify(Transition{State: StateResolving})
		now := override
		if now.IsZero() {
			now = cfg.clock()
		}
		override = time.Time{}
		if now.Before(last) {
			now = last
		}
		now = now.In(ev.loc)

		at, err := Next(ev, now)
		if err != nil {
			return err
		}
		wait := max(at.Sub(now), 0)

		notify(Transition{State: StateWaiting, At: at, Wait: wait})
		cfg.log.Debug("waiting for next occurrence",
			logx.String("event", ev.String()),
			logx.Time("at", at),
			logx.Duration("wait", wait),
		)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		notify(Transition{State: StateFiring, At: at})
		if err := s.fire(ctx, at); err != nil {
			return err
		}
		last = at
		if !recursive {
			return nil
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, at time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked at %s: %v\n%s", at.Format(time.RFC3339), r, debug.Stack())
		}
	}()
	// An in-flight firing is never cut short by cancellation of the loop.
	actx := context.WithValue(context.WithoutCancel(ctx), occurrenceKey{}, at)
	return s.action(actx)
}

type occurrenceKey struct{}

// Occurrence returns the scheduled instant of the firing that ctx was
// passed to. It reports false outside an action.
func Occurrence(ctx context.Context) (time.Time, bool) {
	at, ok := ctx.Value(occurrenceKey{}).(time.Time)
	return at, ok
}

// sleep blocks for d or until ctx is done. The timer is always released.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
