package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"weeklybot/internal/notifier"
	"weeklybot/internal/weekly"
)

const sampleYAML = `
logging:
  level: debug
  console: true
telegram:
  token: ""
  chat_id: -100123
notifier:
  rate_per_sec: 2
  retry_base: 250ms
storage:
  driver: sqlite
  path: ./data/weeklybot.db
  retention: 720h
timezone: America/New_York
events:
  - name: meetings
    days: [4, 0, 2, 2]
    hour: 16
    minute: 0
    message: "Meeting starts now"
  - name: standup
    days: [1]
    at: "09:30"
    timezone: UTC
    recursive: false
  - name: paused
    enabled: false
    days: [9]
`

func TestDecodeYAML(t *testing.T) {
	t.Parallel()

	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Telegram.ChatID != -100123 {
		t.Fatalf("chat_id=%d", cfg.Telegram.ChatID)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	specs, err := cfg.EnabledEvents()
	if err != nil {
		t.Fatalf("EnabledEvents: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 enabled events, got %d", len(specs))
	}

	m := specs[0]
	if m.Name != "meetings" || !m.IsRecursive() {
		t.Fatalf("unexpected first event: %+v", m.EventConfig)
	}
	if got := m.Event.Days().String(); got != "Mon,Wed,Fri" {
		t.Fatalf("days=%q", got)
	}
	if got := m.Event.Location().String(); got != "America/New_York" {
		t.Fatalf("default timezone not applied: %q", got)
	}

	s := specs[1]
	if s.IsRecursive() {
		t.Fatalf("standup should not be recursive")
	}
	if s.Event.Hour() != 9 || s.Event.Minute() != 30 {
		t.Fatalf("at not applied: %02d:%02d", s.Event.Hour(), s.Event.Minute())
	}
	if s.Event.Days().Kind() != weekly.DaysSingle {
		t.Fatalf("single day list should be Single")
	}
}

func TestDecodeRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()

	if _, err := Decode("c.yaml", []byte("bogus: 1\n")); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if _, err := Decode("c.json", []byte(`{"timezone":"UTC"}{"timezone":"UTC"}`)); err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "bad weekday",
			cfg:  Config{Events: []EventConfig{{Name: "a", Days: []int{7}, Hour: 1}}},
			want: "events[a]",
		},
		{
			name: "bad hour",
			cfg:  Config{Events: []EventConfig{{Name: "a", Days: []int{0}, Hour: 24}}},
			want: "hour",
		},
		{
			name: "bad at",
			cfg:  Config{Events: []EventConfig{{Name: "a", Days: []int{0}, At: "9h"}}},
			want: "HH:MM",
		},
		{
			name: "bad timezone",
			cfg:  Config{Events: []EventConfig{{Name: "a", Days: []int{0}, Timezone: "Mars/Base"}}},
			want: "timezone",
		},
		{
			name: "duplicate name",
			cfg:  Config{Events: []EventConfig{{Name: "a", Days: []int{0}}, {Name: "a", Days: []int{1}}}},
			want: "duplicate",
		},
		{
			name: "missing name",
			cfg:  Config{Events: []EventConfig{{Days: []int{0}}}},
			want: "name is required",
		},
		{
			name: "storage driver",
			cfg:  Config{Storage: StorageConfig{Driver: "redis"}},
			want: "storage.driver",
		},
		{
			name: "storage path",
			cfg:  Config{Storage: StorageConfig{Driver: "file"}},
			want: "storage.path",
		},
		{
			name: "notifier duration",
			cfg:  Config{Notifier: NotifierConfig{RetryBase: "soon"}},
			want: "notifier.retry_base",
		},
		{
			name: "exposed debug server",
			cfg:  Config{Debug: DebugConfig{Enabled: true, Addr: "0.0.0.0:6060"}},
			want: "debug.addr",
		},
		{
			name: "token without chat",
			cfg:  Config{Telegram: TelegramConfig{Token: "x"}, Events: []EventConfig{{Name: "a", Days: []int{0}}}},
			want: "telegram.chat_id",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(&tc.cfg)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateInvalidEventWrapsSentinel(t *testing.T) {
	t.Parallel()

	cfg := Config{Events: []EventConfig{{Name: "a", Days: nil}}}
	_, err := cfg.EnabledEvents()
	if !errors.Is(err, weekly.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNotifierRuntimeDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	n, err := cfg.NotifierRuntime()
	if err != nil {
		t.Fatalf("NotifierRuntime: %v", err)
	}
	if want := notifier.DefaultConfig(); n != want {
		t.Fatalf("defaults = %+v, want %+v", n, want)
	}

	st, err := cfg.StorageRuntime()
	if err != nil || st.Driver != "" {
		t.Fatalf("empty storage should be disabled: %+v %v", st, err)
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		h, m int
		ok   bool
	}{
		{"00:00", 0, 0, true},
		{" 23:59 ", 23, 59, true},
		{"9:05", 9, 5, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"1200", 0, 0, false},
		{"a:b", 0, 0, false},
	}
	for _, tc := range cases {
		h, m, err := ParseHHMM(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("ParseHHMM(%q) err=%v", tc.in, err)
		}
		if tc.ok && (h != tc.h || m != tc.m) {
			t.Fatalf("ParseHHMM(%q)=%d:%d", tc.in, h, m)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg, err := Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	newCfg, err := Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}

	if changed, _, events := SummarizeConfigChange(oldCfg, newCfg); len(changed) != 0 || len(events) != 0 {
		t.Fatalf("identical configs reported changes: %v %v", changed, events)
	}

	newCfg.Events[0].Hour = 17
	newCfg.Events = newCfg.Events[:2]
	newCfg.Events = append(newCfg.Events, EventConfig{Name: "retro", Days: []int{4}})
	newCfg.Telegram.Token = "secret"

	changed, _, events := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "events,telegram" {
		t.Fatalf("changed=%v", changed)
	}
	if strings.Join(events, ",") != "meetings,paused,retro" {
		t.Fatalf("events=%v", events)
	}
}

func TestManagerLoadAndWatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(`{"timezone":"UTC","events":[{"name":"a","days":[0],"hour":8}]}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatalf("Get should return committed config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Give the watcher time to register before the first write.
	time.Sleep(100 * time.Millisecond)

	// Invalid config is rejected and never published.
	write(`{"timezone":"UTC","events":[{"name":"a","days":[8],"hour":8}]}`)
	select {
	case got := <-ch:
		t.Fatalf("invalid config published: %+v", got)
	case <-time.After(600 * time.Millisecond):
	}

	write(`{"timezone":"UTC","events":[{"name":"a","days":[0],"hour":9}]}`)
	select {
	case got := <-ch:
		if got.Events[0].Hour != 9 {
			t.Fatalf("unexpected published config: %+v", got.Events)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for reload")
	}

	cancel()
	<-done
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("events:\n  - name: x\n    days: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path)
	if _, err := m.Load(); err == nil {
		t.Fatalf("expected validation error")
	}
	if m.Get() != nil {
		t.Fatalf("invalid config must not be committed")
	}
}

func TestValidateRejectsBadTemplate(t *testing.T) {
	t.Parallel()

	cfg := Config{Timezone: "UTC", Events: []EventConfig{{Name: "a", Days: []int{0}, Message: "{{.Name"}}}
	err := Validate(&cfg)
	if err == nil || !strings.Contains(err.Error(), "message") {
		t.Fatalf("expected template error, got %v", err)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: " 90s ", want: 90 * time.Second},
		{raw: "720h", want: 720 * time.Hour},
		{raw: "30d", want: 30 * 24 * time.Hour},
		{raw: "2w", want: 14 * 24 * time.Hour},
		{raw: "1.5d", wantErr: true},
		{raw: "-1h", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("storage.retention", tt.raw)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseDurationField(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
		if err != nil {
			if !strings.HasPrefix(err.Error(), "storage.retention:") {
				t.Fatalf("error %q lacks the field path", err)
			}
			continue
		}
		if got != tt.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestDecodeYAMLEdgeCases(t *testing.T) {
	t.Parallel()

	cfg, err := Decode("empty.yml", nil)
	if err != nil || len(cfg.Events) != 0 {
		t.Fatalf("empty yaml: cfg=%+v err=%v", cfg, err)
	}
	if _, err := Decode("two.yaml", []byte("timezone: UTC\n---\ntimezone: UTC\n")); err == nil {
		t.Fatal("expected multi-document yaml to fail")
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	t.Parallel()

	fired := make(chan struct{}, 4)
	d := &debouncer{delay: 20 * time.Millisecond, fn: func() { fired <- struct{}{} }}
	for range 5 {
		d.trigger()
	}
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced fn never ran")
	}
	select {
	case <-fired:
		t.Fatal("debounced fn ran twice")
	case <-time.After(100 * time.Millisecond):
	}
	d.stop()
}

func TestExampleConfigIsValid(t *testing.T) {
	t.Parallel()

	for _, tz := range []string{"US/Eastern", "Europe/Berlin"} {
		if _, err := time.LoadLocation(tz); err != nil {
			t.Skipf("tzdata unavailable: %v", err)
		}
	}
	cfg, err := NewManager(filepath.Join("..", "..", "config.example.yaml")).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	specs, err := cfg.EnabledEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 2 || specs[1].Event.Hour() != 11 || specs[1].Event.Minute() != 30 {
		t.Fatalf("unexpected events: %+v", specs)
	}
}
