// Package supervisor runs named goroutines under one cancellable context
// with panic recovery, optional restarts and per-task counters.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	logx "weeklybot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	cancelOnErr bool

	wg       sync.WaitGroup
	doneOnce sync.Once
	done     chan struct{}

	mu       sync.Mutex
	firstErr error
	tasks    map[string]*TaskStats
}

type Option func(*Supervisor)

// TaskStats counts the runs of one named task.
type TaskStats struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	Restarts  int       `json:"restarts"`
	Panics    int       `json:"panics"`
	StartedAt time.Time `json:"started_at,omitzero"`
	StoppedAt time.Time `json:"stopped_at,omitzero"`
	LastErr   string    `json:"last_err,omitempty"`
}

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the supervisor context on the first task error.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		tasks:  map[string]*TaskStats{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first task error, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Task returns the counters of the named task.
func (s *Supervisor) Task(name string) (TaskStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tasks[name]
	if !ok {
		return TaskStats{}, false
	}
	return *st, true
}

// Snapshot returns every task, running ones first, then by name.
func (s *Supervisor) Snapshot() []TaskStats {
	s.mu.Lock()
	out := make([]TaskStats, 0, len(s.tasks))
	for _, st := range s.tasks {
		out = append(out, *st)
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b TaskStats) int {
		if a.Running != b.Running {
			if a.Running {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func (s *Supervisor) update(name string, fn func(st *TaskStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.tasks[name]
	if st == nil {
		st = &TaskStats{Name: name}
		s.tasks[name] = st
	}
	fn(st)
}

func (s *Supervisor) started(name string) {
	s.update(name, func(st *TaskStats) {
		if st.Runs > 0 {
			st.Restarts++
		}
		st.Runs++
		st.Running = true
		st.StartedAt = time.Now()
	})
}

func (s *Supervisor) stopped(name string, err error, panicked bool) {
	s.update(name, func(st *TaskStats) {
		st.Running = false
		st.StoppedAt = time.Now()
		if panicked {
			st.Panics++
		}
		if err != nil {
			st.LastErr = err.Error()
		}
	})
}

// run executes fn once, turning a panic into an error. The returned error is
// nil on a clean exit or a cancellation.
func (s *Supervisor) run(name string, fn func(ctx context.Context) error) error {
	s.started(name)
	err, panicked := s.call(name, fn)
	if errors.Is(err, context.Canceled) || (err != nil && s.ctx.Err() != nil) {
		err = nil
	}
	s.stopped(name, err, panicked)
	return err
}

func (s *Supervisor) call(name string, fn func(ctx context.Context) error) (err error, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panicked", logx.String("task", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err, panicked = fmt.Errorf("panic: %v", r), true
		}
	}()
	return fn(s.ctx), false
}

// Go runs fn once in a named goroutine. Its error, other than a
// cancellation, becomes the supervisor's error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.run(name, fn); err != nil {
			s.fail(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

// Go0 is Go for functions that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

type RestartOption func(*restartPolicy)

type restartPolicy struct {
	minBackoff time.Duration
	maxBackoff time.Duration
	// stableAfter resets the backoff once a run lasted this long.
	stableAfter     time.Duration
	stopOnCleanExit bool
}

// WithRestartBackoff sets the exponential backoff window between restarts.
func WithRestartBackoff(lo, hi time.Duration) RestartOption {
	return func(p *restartPolicy) {
		if lo > 0 {
			p.minBackoff = lo
		}
		if hi > 0 {
			p.maxBackoff = hi
		}
	}
}

// WithStopOnCleanExit controls whether a nil return ends the task (default)
// or counts as a failure to restart from.
func WithStopOnCleanExit(enabled bool) RestartOption {
	return func(p *restartPolicy) { p.stopOnCleanExit = enabled }
}

// next returns the jittered wait for the current backoff and the backoff to
// use after it.
func (p restartPolicy) next(backoff time.Duration) (wait, following time.Duration) {
	wait = min(max(backoff, p.minBackoff), p.maxBackoff)
	if j := int64(wait) / 5; j > 0 {
		wait += time.Duration(rand.Int64N(j + 1))
	}
	return wait, min(backoff*2, p.maxBackoff)
}

// GoRestart runs fn and restarts it after every error or panic until the
// supervisor is cancelled. Restart errors are logged, not reported by Err.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	p := restartPolicy{
		minBackoff:      250 * time.Millisecond,
		maxBackoff:      30 * time.Second,
		stableAfter:     30 * time.Second,
		stopOnCleanExit: true,
	}
	for _, o := range opts {
		o(&p)
	}
	p.maxBackoff = max(p.maxBackoff, p.minBackoff)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := p.minBackoff
		for s.ctx.Err() == nil {
			began := time.Now()
			err := s.run(name, fn)
			if s.ctx.Err() != nil {
				return
			}
			if err == nil {
				if p.stopOnCleanExit {
					return
				}
				err = errors.New("exited")
			}
			if time.Since(began) >= p.stableAfter {
				backoff = p.minBackoff
			}

			var wait time.Duration
			wait, backoff = p.next(backoff)
			s.log.Warn("task restarting", logx.String("task", name), logx.Duration("backoff", wait), logx.Err(err))

			t := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
	}()
}

// Stop cancels every task and waits for them.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every task returned or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.Err()
	}
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.mu.Unlock()
	if s.cancelOnErr {
		s.cancel()
	}
}
