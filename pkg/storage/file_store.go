package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/polisai/gatekeeper/pkg/domain"
)

const defaultReloadDebounce = 100 * time.Millisecond

// FileStoreOptions configures a FileRuleStore.
type FileStoreOptions struct {
	// Required fails construction when the file is absent.
	Required bool
	// Watch reloads the file whenever it changes on disk.
	Watch bool
	// Debounce coalesces bursts of file events. Defaults to 100ms.
	Debounce time.Duration
	// OnReload is invoked after every reload attempt with the new rule count or the error.
	OnReload func(rules int, err error)
	Logger   *slog.Logger
}

// FileRuleStore serves rules loaded from a YAML file and optionally follows changes to it.
//
// Each successful reload publishes a complete new snapshot. A failed reload keeps the
// previous snapshot, so evaluations never observe a partially loaded document.
type FileRuleStore struct {
	path     string
	opts     FileStoreOptions
	logger   *slog.Logger
	snapshot atomic.Pointer[[]domain.PolicyRule]

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFileRuleStore loads path and, when opts.Watch is set, starts following it.
func NewFileRuleStore(path string, opts FileStoreOptions) (*FileRuleStore, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultReloadDebounce
	}

	s := &FileRuleStore{path: absPath, opts: opts, logger: logger}

	rules, err := LoadRules(absPath, LoadOptions{Required: opts.Required, Logger: logger})
	if err != nil {
		return nil, err
	}
	s.snapshot.Store(&rules)

	if !opts.Watch {
		return s, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are still observed.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.watcher = watcher
	s.cancel = cancel

	s.wg.Add(1)
	go s.watchLoop(ctx)

	return s, nil
}

// Rules returns the current snapshot.
func (s *FileRuleStore) Rules() []domain.PolicyRule {
	return *s.snapshot.Load()
}

// Path returns the absolute path of the rule file.
func (s *FileRuleStore) Path() string {
	return s.path
}

// Reload re-reads the file now. On error, including a file that has disappeared,
// the current snapshot is kept.
func (s *FileRuleStore) Reload() error {
	rules, err := LoadRules(s.path, LoadOptions{Required: true, Logger: s.logger})
	if err == nil {
		s.snapshot.Store(&rules)
	}
	if s.opts.OnReload != nil {
		s.opts.OnReload(len(rules), err)
	}
	return err
}

// Close stops watching the file.
func (s *FileRuleStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	s.cancel()
	err := s.watcher.Close()
	s.wg.Wait()
	return err
}

func (s *FileRuleStore) watchLoop(ctx context.Context) {
	defer s.wg.Done()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(s.opts.Debounce, func() {
				if ctx.Err() != nil {
					return
				}
				if err := s.Reload(); err != nil {
					s.logger.Error("policy rule reload failed, keeping previous rules", "path", s.path, "error", err)
					return
				}
				s.logger.Info("policy rules reloaded", "path", s.path, "rules", len(s.Rules()))
			})
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("policy rule watcher error", "error", err)
		}
	}
}
