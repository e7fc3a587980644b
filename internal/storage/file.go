package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	logx "weeklybot/pkg/logx"
)

// fileStore keeps firings in an append-only JSON Lines file
// (<prefix>.firings.jsonl) mirrored in memory. Pruning rewrites the file.
type fileStore struct {
	log logx.Logger

	mu      sync.Mutex
	path    string
	f       *os.File
	records []Record // oldest first
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	firingsPath := filepath.Join(dir, base) + ".firings.jsonl"

	records, err := loadRecords(firingsPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	f, err := os.OpenFile(firingsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file store opened", logx.String("path", firingsPath), logx.Int("records", len(records)))
	return &fileStore{log: log, path: firingsPath, f: f, records: records}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendFiring(ctx context.Context, r Record) error {
	_ = ctx
	if r.FiredAt.IsZero() {
		r.FiredAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("firings file closed")
	}
	if err := json.NewEncoder(s.f).Encode(r); err != nil {
		return err
	}
	s.records = append(s.records, r)
	return nil
}

func (s *fileStore) LastFiring(ctx context.Context, event string) (Record, bool, error) {
	recs, err := s.History(ctx, event, 1)
	if err != nil || len(recs) == 0 {
		return Record{}, false, err
	}
	return recs[0], true, nil
}

func (s *fileStore) History(ctx context.Context, event string, limit int) ([]Record, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if s.records[i].Event == event {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

func (s *fileStore) PruneBefore(ctx context.Context, t time.Time) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, errors.New("firings file closed")
	}

	kept := slices.DeleteFunc(slices.Clone(s.records), func(r Record) bool { return r.FiredAt.Before(t) })
	removed := len(s.records) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(f)
	for _, r := range kept {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return 0, err
		}
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return 0, err
	}

	// Reopen so appends go to the rewritten file.
	_ = s.f.Close()
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.f = nil
		return removed, err
	}
	s.f = nf
	s.records = kept
	return removed, nil
}

func loadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Event == "" {
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
