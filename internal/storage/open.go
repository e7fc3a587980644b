package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "weeklybot/pkg/logx"
)

// Store is the persistence API used by the app.
type Store interface {
	AppendFiring(ctx context.Context, r Record) error
	// LastFiring returns the most recent record for event.
	LastFiring(ctx context.Context, event string) (r Record, ok bool, err error)
	// History returns up to limit records for event, newest first.
	History(ctx context.Context, event string, limit int) ([]Record, error)
	// PruneBefore removes records fired before t and reports how many.
	PruneBefore(ctx context.Context, t time.Time) (int, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
