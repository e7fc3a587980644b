package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"weeklybot/internal/config"
	kit "weeklybot/internal/transport"
	"weeklybot/internal/weekly"
)

const maxUpcoming = 20

// Upcoming lists the next occurrences of one event.
type Upcoming struct {
	Name  string
	Event weekly.Event
	At    []time.Time
}

// Schedule resolves the next count occurrences of every enabled event of
// cfg after from, ordered by the first occurrence.
func Schedule(cfg *config.Config, from time.Time, count int) ([]Upcoming, error) {
	specs, err := cfg.EnabledEvents()
	if err != nil {
		return nil, err
	}
	count = min(max(count, 1), maxUpcoming)

	out := make([]Upcoming, 0, len(specs))
	for _, spec := range specs {
		at, err := weekly.Upcoming(spec.Event, from, count)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", spec.Name, err)
		}
		out = append(out, Upcoming{Name: spec.Name, Event: spec.Event, At: at})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At[0].Before(out[j].At[0]) })
	return out, nil
}

func (a *App) registerCommands() {
	a.tg.Handle("/next", a.cmdNext)
	a.tg.Handle("/status", a.cmdStatus)
}

// cmdNext answers "/next [count]".
func (a *App) cmdNext(_ context.Context, m kit.Message) (string, error) {
	count := 1
	if p := strings.TrimSpace(m.Payload); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return "usage: /next [count]", nil
		}
		count = n
	}

	up, err := Schedule(a.cfgm.Get(), a.clock(), count)
	if err != nil {
		return "", err
	}
	if len(up) == 0 {
		return "no events configured", nil
	}

	var sb strings.Builder
	for _, u := range up {
		fmt.Fprintf(&sb, "%s (%s)\n", u.Name, u.Event)
		for _, at := range u.At {
			fmt.Fprintf(&sb, "  %s\n", at.Format("Mon 2006-01-02 15:04 MST"))
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (a *App) cmdStatus(_ context.Context, _ kit.Message) (string, error) {
	st := a.Statuses()
	if len(st) == 0 {
		return "no reminders running", nil
	}
	now := a.clock()

	var sb strings.Builder
	for _, s := range st {
		fmt.Fprintf(&sb, "%s [%s] %s\n", s.Name, s.State, s.Event)
		if !s.Next.IsZero() {
			fmt.Fprintf(&sb, "  next: %s (in %s)\n", s.Next.Format("Mon 15:04 MST"), s.Next.Sub(now).Round(time.Minute))
		}
		if !s.LastFired.IsZero() {
			res := "ok"
			if s.LastError != "" {
				res = "error: " + s.LastError
			}
			fmt.Fprintf(&sb, "  last: %s, %s (%d total)\n", s.LastFired.Format("Mon 15:04 MST"), res, s.Firings)
		}
		if s.Restarts > 0 {
			fmt.Fprintf(&sb, "  restarts: %d\n", s.Restarts)
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
