package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 300 * time.Millisecond

// PolicyStore holds the active policy. Readers always see a complete policy;
// a reload that fails validation leaves the previous one in place.
type PolicyStore struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Policy]
}

// NewPolicyStore loads the policy at path (empty for defaults).
func NewPolicyStore(path string, logger *slog.Logger) (*PolicyStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p, err := LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	s := &PolicyStore{path: path, logger: logger}
	s.current.Store(p)
	return s, nil
}

// NewStaticStore wraps an already validated policy.
func NewStaticStore(p *Policy) *PolicyStore {
	s := &PolicyStore{logger: slog.Default()}
	s.current.Store(p)
	return s
}

func (s *PolicyStore) Policy() *Policy {
	return s.current.Load()
}

// Reload re-reads the policy file and swaps it in if it is valid.
func (s *PolicyStore) Reload() error {
	p, err := LoadPolicy(s.path)
	if err != nil {
		return err
	}
	s.current.Store(p)
	return nil
}

// Watch reloads the policy whenever its file changes, until ctx is done.
// The parent directory is watched so editors that replace the file by rename
// are picked up.
func (s *PolicyStore) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("policy watch init: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("policy path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("policy watch: %w", err)
	}

	var timer *time.Timer
	trigger := func() {
		if err := s.Reload(); err != nil {
			s.logger.Error("policy reload rejected, keeping previous policy", "path", s.path, "error", err)
			return
		}
		p := s.Policy()
		s.logger.Info("policy reloaded", "path", s.path,
			"allowed_tables", len(p.AllowedTables), "max_row_limit", p.MaxRowLimit)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if name, err := filepath.Abs(ev.Name); err != nil || name != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, trigger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("policy watch error", "error", err)
		}
	}
}
