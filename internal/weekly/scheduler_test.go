package weekly

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunFiresOnceWithNowOverride(t *testing.T) {
	t.Parallel()
	ev := mustEvent(t, Single(Monday), 10, 0, time.UTC)
	at := day(t, time.UTC, 1, 10, 0)

	var calls atomic.Int32
	var states []Transition
	s := NewScheduler(Func(func() { calls.Add(1) }))

	err := s.Run(context.Background(), false, ev,
		WithNow(at.Add(-20*time.Millisecond)),
		WithObserver(func(tr Transition) { states = append(states, tr) }),
	)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}

	want := []State{StateIdle, StateResolving, StateWaiting, StateFiring, StateTerminated}
	if len(states) != len(want) {
		t.Fatalf("transitions = %v, want %v", states, want)
	}
	for i, st := range want {
		if states[i].State != st {
			t.Fatalf("transition %d = %v, want %v", i, states[i].State, st)
		}
	}
	if !states[2].At.Equal(at) {
		t.Fatalf("waiting for %s, want %s", states[2].At, at)
	}
	if states[2].Wait != 20*time.Millisecond {
		t.Fatalf("wait = %s, want 20ms", states[2].Wait)
	}
	if states[4].Err != nil {
		t.Fatalf("terminated with %v", states[4].Err)
	}
}

func TestRunRecursiveResamplesClock(t *testing.T) {
	t.Parallel()
	ev := mustEvent(t, Single(Monday), 10, 0, time.UTC)

	var (
		mu     sync.Mutex
		cur    = day(t, time.UTC, 1, 10, 0).Add(-10 * time.Millisecond)
		lastAt time.Time
		fired  []time.Time
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return cur
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var actionCtxErr error
	s := NewScheduler(func(actx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, lastAt)
		cur = lastAt.Add(7*24*time.Hour - 10*time.Millisecond)
		if len(fired) == 3 {
			cancel()
			actionCtxErr = actx.Err()
		}
		return nil
	})

	err := s.Run(ctx, true, ev,
		WithClock(clock),
		WithObserver(func(tr Transition) {
			if tr.State == StateWaiting {
				mu.Lock()
				lastAt = tr.At
				mu.Unlock()
			}
		}),
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if actionCtxErr != nil {
		t.Fatalf("action context cancelled mid-firing: %v", actionCtxErr)
	}
	want := []time.Time{day(t, time.UTC, 1, 10, 0), day(t, time.UTC, 8, 10, 0), day(t, time.UTC, 15, 10, 0)}
	if len(fired) != len(want) {
		t.Fatalf("fired %d times, want %d", len(fired), len(want))
	}
	for i := range want {
		if !fired[i].Equal(want[i]) {
			t.Fatalf("firing %d at %s, want %s", i, fired[i], want[i])
		}
	}
}

func TestRunCancelledWhileWaiting(t *testing.T) {
	t.Parallel()
	ev := mustEvent(t, Single(Friday), 10, 0, time.UTC)

	var calls atomic.Int32
	s := NewScheduler(Func(func() { calls.Add(1) }))

	ctx, cancel := context.WithCancel(context.Background())
	waiting := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, true, ev,
			WithNow(day(t, time.UTC, 1, 10, 0)),
			WithObserver(func(tr Transition) {
				if tr.State == StateWaiting {
					close(waiting)
				}
			}),
		)
	}()

	select {
	case <-waiting:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never started waiting")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if calls.Load() != 0 {
		t.Fatalf("action fired %d times after cancel", calls.Load())
	}
}

func TestRunAlreadyCancelled(t *testing.T) {
	t.Parallel()
	ev := mustEvent(t, Single(Monday), 10, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	err := NewScheduler(Func(func() { calls.Add(1) })).Run(ctx, false, ev)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if calls.Load() != 0 {
		t.Fatal("action fired on a cancelled context")
	}
}

func TestRunPropagatesActionError(t *testing.T) {
	t.Parallel()
	ev := mustEvent(t, Single(Monday), 10, 0, time.UTC)
	boom := errors.New("boom")

	var calls atomic.Int32
	s := NewScheduler(func(context.Context) error {
		calls.Add(1)
		return boom
	})
	err := s.Run(context.Background(), true, ev, WithNow(day(t, time.UTC, 1, 10, 0).Add(-time.Millisecond)))
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want boom", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1 (no retry)", calls.Load())
	}
}

func TestRunRecoversActionPanic(t *testing.T) {
	t.Parallel()
	ev := mustEvent(t, Single(Monday), 10, 0, time.UTC)
	s := NewScheduler(func(context.Context) error { panic("kaput") })

	err := s.Run(context.Background(), false, ev, WithNow(day(t, time.UTC, 1, 10, 0).Add(-time.Millisecond)))
	if err == nil || !strings.Contains(err.Error(), "kaput") {
		t.Fatalf("Run error = %v, want panic error", err)
	}
}

func TestRunRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	ev := mustEvent(t, Single(Monday), 10, 0, time.UTC)
	if err := NewScheduler(nil).Run(context.Background(), false, ev); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil action: got %v", err)
	}
	if err := NewScheduler(Func(func() {})).Run(context.Background(), false, Event{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("zero event: got %v", err)
	}
}

func TestActionSeesOccurrence(t *testing.T) {
	t.Parallel()
	ev := mustEvent(t, Multiple(Monday, Wednesday), 0, 0, time.UTC)
	// Tuesday 23:59:59.999 resolves to Wednesday midnight.
	want := day(t, time.UTC, 3, 0, 0)

	var got time.Time
	var ok bool
	s := NewScheduler(func(ctx context.Context) error {
		got, ok = Occurrence(ctx)
		return nil
	})
	if err := s.Run(context.Background(), false, ev, WithNow(want.Add(-time.Millisecond))); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !ok || !got.Equal(want) {
		t.Fatalf("Occurrence = %s (%v), want %s", got, ok, want)
	}
	if _, ok := Occurrence(context.Background()); ok {
		t.Fatalf("Occurrence outside an action should report false")
	}
}

func TestRunClockBehindFiredOccurrence(t *testing.T) {
	t.Parallel()
	ev := mustEvent(t, Single(Monday), 10, 0, time.UTC)
	at := day(t, time.UTC, 1, 10, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var (
		mu      sync.Mutex
		fired   []time.Time
		waiting []time.Time
	)
	s := NewScheduler(func(ctx context.Context) error {
		occ, _ := Occurrence(ctx)
		mu.Lock()
		fired = append(fired, occ)
		mu.Unlock()
		return nil
	})
	observer := func(tr Transition) {
		if tr.State != StateWaiting {
			return
		}
		mu.Lock()
		waiting = append(waiting, tr.At)
		n := len(waiting)
		mu.Unlock()
		if n == 2 {
			cancel()
		}
	}
	// The clock never reaches the occurrence it just fired.
	clock := func() time.Time { return at.Add(-50 * time.Millisecond) }

	err := s.Run(ctx, true, ev, WithClock(clock), WithObserver(observer))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || !fired[0].Equal(at) {
		t.Fatalf("fired = %v, want exactly [%s]", fired, at)
	}
	if len(waiting) != 2 || !waiting[1].Equal(at.AddDate(0, 0, 7)) {
		t.Fatalf("waiting = %v, want second wait for %s", waiting, at.AddDate(0, 0, 7))
	}
}
