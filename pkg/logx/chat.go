package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "weeklybot/internal/transport"
)

// ChatConfig forwards log lines at or above MinLevel to a chat.
type ChatConfig struct {
	Enabled    bool
	ChatID     int64
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

const (
	chatQueueSize   = 256
	chatSendTimeout = 10 * time.Second
	chatMaxLen      = 3500
	chatMaxField    = 600
	chatMaxStack    = 900
)

type chatLine struct {
	to   kit.ChatTarget
	text string
}

// chatSink is a zerolog.LevelWriter that never blocks the caller: lines over
// the rate limit or beyond the queue are dropped.
type chatSink struct {
	sender kit.Sender
	queue  chan chatLine

	mu      sync.Mutex
	to      kit.ChatTarget
	min     zerolog.Level
	limiter *rate.Limiter
	cancel  context.CancelFunc
	done    chan struct{}
}

func newChatSink(sender kit.Sender) *chatSink {
	return &chatSink{sender: sender, queue: make(chan chatLine, chatQueueSize)}
}

// configure applies cfg and reports whether the sink should be attached.
func (c *chatSink) configure(cfg ChatConfig) bool {
	if !cfg.Enabled || cfg.ChatID == 0 || c.sender == nil {
		return false
	}
	rps := max(1, cfg.RatePerSec)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.to = kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}
	c.min = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if c.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.done = make(chan struct{})
		go c.deliver(ctx, c.done)
	}
	return true
}

func (c *chatSink) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *chatSink) deliver(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-c.queue:
			sctx, cancel := context.WithTimeout(ctx, chatSendTimeout)
			_, _ = c.sender.SendText(sctx, line.to, line.text, &kit.SendOptions{DisablePreview: true})
			cancel()
		}
	}
}

func (c *chatSink) Write(p []byte) (int, error) { return c.WriteLevel(zerolog.InfoLevel, p) }

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	to, lim, minLvl := c.to, c.limiter, c.min
	c.mu.Unlock()

	if lim == nil || level < minLvl || !lim.Allow() {
		return len(p), nil
	}
	if text := formatChatLine(p); text != "" {
		select {
		case c.queue <- chatLine{to: to, text: text}:
		default:
		}
	}
	return len(p), nil
}

// formatChatLine renders a zerolog JSON line as
//
//	[WARN] comp: message
//	- key=value
//
// with keys sorted. Non-JSON input is sent trimmed.
func formatChatLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), chatMaxLen)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	if comp, _ := m["comp"].(string); comp != "" {
		b.WriteString(comp + ": ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	for _, k := range slices.Sorted(maps.Keys(m)) {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName, "comp":
			continue
		case "stack":
			b.WriteString("\n- stack=\n" + truncate(fmt.Sprint(m[k]), chatMaxStack))
		default:
			b.WriteString("\n- " + k + "=" + truncate(fmt.Sprint(m[k]), chatMaxField))
		}
	}
	return truncate(b.String(), chatMaxLen)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
