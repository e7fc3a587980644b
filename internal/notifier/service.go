package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"weeklybot/internal/eventbus"
	kit "weeklybot/internal/transport"
	logx "weeklybot/pkg/logx"
)

var (
	ErrNoSender  = errors.New("notifier has no sender")
	ErrEmptyText = errors.New("notification text is empty")
)

// Service delivers notifications synchronously with a token-bucket rate
// limit, bounded retries and key-based dedup.
//
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	sender  kit.Sender
	log     logx.Logger
	bus     eventbus.Bus

	dmu   sync.Mutex
	dedup map[string]time.Time
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log, bus: bus, dedup: map[string]time.Time{}}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	def := DefaultConfig()
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = def.RatePerSec
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = def.RetryMaxDelay
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = def.DedupWindow
	}

	s.mu.Lock()
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Notify delivers n, retrying transient failures. A permanent failure (see
// kit.ErrPermanent) is not retried, and a retry-after hint from the sender
// stretches the wait. It returns the last send error once retries are
// exhausted, or ctx.Err() if cancelled while waiting. A duplicate key is
// silently skipped.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		return ErrNoSender
	}
	if n.Text == "" {
		return ErrEmptyText
	}
	if n.Key != "" && !s.dedupAllow(n.Key, cfg.DedupWindow) {
		s.log.Debug("notification suppressed (duplicate key)", logx.String("key", n.Key))
		return nil
	}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	attempt := 1
send:
	for ; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := sender.SendText(callCtx, n.Target, n.Text, n.Options)
		cancel()
		if err == nil {
			s.publish(EventSent, n, attempt, nil)
			return nil
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts || errors.Is(err, kit.ErrPermanent) {
			break
		}
		wait := retryDelay(cfg, attempt)
		if after, ok := kit.RetryAfter(err); ok {
			wait = max(wait, after)
		}
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			lastErr = ctx.Err()
			break send
		}
	}

	// The key was never delivered; let a later attempt through.
	if n.Key != "" {
		s.dmu.Lock()
		delete(s.dedup, n.Key)
		s.dmu.Unlock()
	}
	s.publish(EventFailed, n, min(attempt, maxAttempts), lastErr)
	return fmt.Errorf("notify chat %d: %w", n.Target.ChatID, lastErr)
}

func (s *Service) publish(typ string, n Notification, attempts int, err error) {
	if s.bus == nil {
		return
	}
	ev := NotificationEvent{
		ChatID:   n.Target.ChatID,
		ThreadID: n.Target.ThreadID,
		Key:      n.Key,
		Attempts: attempts,
		At:       time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

func (s *Service) dedupAllow(key string, window time.Duration) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)
	return true
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	return min(max(d, 0), cfg.RetryMaxDelay)
}
