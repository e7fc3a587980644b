package logx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	kit "weeklybot/internal/transport"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []string
	to   []kit.ChatTarget
}

func (c *captureSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, text)
	c.to = append(c.to, to)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (c *captureSender) snapshot() ([]string, []kit.ChatTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...), append([]kit.ChatTarget(nil), c.to...)
}

func TestChatSinkFiltersByLevel(t *testing.T) {
	t.Parallel()

	sender := &captureSender{}
	cfg := Config{Level: "debug", Chat: ChatConfig{Enabled: true, ChatID: -100, ThreadID: 3, MinLevel: "warn", RatePerSec: 10}}
	svc, log := New(cfg, sender)
	defer svc.Close()

	log.Info("routine")
	log.With(String("comp", "storage")).Warn("disk almost full", String("path", "/data"))

	deadline := time.Now().Add(2 * time.Second)
	var msgs []string
	var to []kit.ChatTarget
	for time.Now().Before(deadline) {
		if msgs, to = sender.snapshot(); len(msgs) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one forwarded message, got %q", msgs)
	}
	if !strings.HasPrefix(msgs[0], "[WARN] storage: disk almost full\n") {
		t.Fatalf("unexpected message: %q", msgs[0])
	}
	if !strings.Contains(msgs[0], "- path=/data") || strings.Contains(msgs[0], "- comp=") {
		t.Fatalf("unexpected fields: %q", msgs[0])
	}
	if to[0] != (kit.ChatTarget{ChatID: -100, ThreadID: 3}) {
		t.Fatalf("unexpected target: %+v", to[0])
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Info("nothing", Int("n", 1), Err(nil))
	l.With(String("k", "v")).Error("still nothing")
	if Nop().IsZero() {
		t.Fatalf("Nop logger is not the zero value")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"Error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in, zerolog.InfoLevel); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestChatSinkNeedsTarget(t *testing.T) {
	t.Parallel()

	c := newChatSink(&captureSender{})
	if c.configure(ChatConfig{Enabled: true}) {
		t.Fatalf("sink attached without a chat id")
	}
	if newChatSink(nil).configure(ChatConfig{Enabled: true, ChatID: 1}) {
		t.Fatalf("sink attached without a sender")
	}
	if !c.configure(ChatConfig{Enabled: true, ChatID: 1}) {
		t.Fatalf("sink not attached")
	}
	c.stop()
	c.stop()
}

func TestFormatChatLine(t *testing.T) {
	t.Parallel()

	got := formatChatLine([]byte(`{"level":"error","time":"x","message":"boom","event":"standup","comp":"reminders","attempt":2}` + "\n"))
	if got != "[ERROR] reminders: boom\n- attempt=2\n- event=standup" {
		t.Fatalf("unexpected format: %q", got)
	}
	if got := formatChatLine([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("raw line = %q", got)
	}
	if got := truncate(strings.Repeat("a", 20), 12); got != "aaaaaaaaa..." {
		t.Fatalf("truncate = %q", got)
	}
}

func TestApplySwitchesLogFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}}, nil)
	defer svc.Close()
	log.Info("before switch")

	svc.mu.Lock()
	old := svc.file
	svc.mu.Unlock()

	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: second}})
	log.Info("after switch")

	if _, err := old.Write([]byte("x")); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("previous file still open: %v", err)
	}
	svc.mu.Lock()
	cur := svc.file
	svc.mu.Unlock()
	if cur == nil || cur == old {
		t.Fatal("new file not installed")
	}

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(a), "before switch") || strings.Contains(string(a), "after switch") {
		t.Fatalf("first file = %q", a)
	}
	if !strings.Contains(string(b), "after switch") {
		t.Fatalf("second file = %q", b)
	}
}
