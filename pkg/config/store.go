package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/metrics"
)

// reloadDebounce coalesces editor write bursts into a single reload.
const reloadDebounce = 100 * time.Millisecond

// Store owns the active configuration snapshot and keeps it fresh from
// disk. Readers call Snapshot and get an immutable view; reloads swap the
// pointer atomically so no reader observes a partial rule set.
type Store struct {
	log  *slog.Logger
	snap atomic.Pointer[Snapshot]

	mu      sync.Mutex
	path    string
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	// onReload, when set, is invoked with every newly activated snapshot.
	onReload func(*Snapshot)
}

// NewStore creates a store for the given root options file and performs the
// initial load. A failed initial load logs a warning and activates an empty
// snapshot; the store keeps running and will pick up a corrected file.
func NewStore(path string, log *slog.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	s := &Store{log: log, path: path}
	s.reload()
	return s
}

// OnReload registers a callback invoked with each newly activated snapshot,
// including the one produced by Reload calls. Must be set before Watch.
func (s *Store) OnReload(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = fn
}

// Snapshot returns the active configuration snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Path returns the root options file currently tracked.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// SetPath replaces the tracked options file and reloads immediately.
func (s *Store) SetPath(path string) {
	s.mu.Lock()
	s.path = path
	watcher := s.watcher
	s.mu.Unlock()

	s.reload()
	if watcher != nil {
		s.watchDirs(watcher)
	}
}

// Reload forces a reload of the active snapshot from disk.
func (s *Store) Reload() {
	s.reload()
}

// reload loads the configuration and swaps the snapshot. Load failures warn
// and fall back to an empty rule set.
func (s *Store) reload() {
	s.mu.Lock()
	path := s.path
	onReload := s.onReload
	s.mu.Unlock()

	snap, err := Load(path, s.log)
	if err != nil {
		s.log.Warn("failed to load configuration, using empty rule set",
			"file", path, "error", err)
		metrics.ConfigReloads.WithLabelValues("failed").Inc()
		snap = EmptySnapshot(path)
	} else {
		s.log.Info("configuration loaded",
			"file", path,
			"watchPatterns", len(snap.Watch.Patterns()),
			"mocks", snap.Mocks.Len(),
			"rewrites", snap.Rewrites.Len(),
		)
		metrics.ConfigReloads.WithLabelValues("ok").Inc()
	}

	s.snap.Store(snap)
	if onReload != nil {
		onReload(snap)
	}
}

// Watch starts the filesystem watcher and reloads on changes to the root
// file or the referenced mocks/rewrites files. It returns once the watcher
// is running; cancel ctx or call Close to stop it.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.watcher = watcher
	s.cancel = cancel
	s.mu.Unlock()

	s.watchDirs(watcher)
	go s.watchLoop(ctx, watcher)
	return nil
}

// watchDirs registers the directories of all tracked files. Directories are
// watched rather than files so atomic-rename saves keep working.
func (s *Store) watchDirs(watcher *fsnotify.Watcher) {
	for _, dir := range s.trackedDirs() {
		if err := watcher.Add(dir); err != nil {
			s.log.Warn("failed to watch config directory", "dir", dir, "error", err)
		}
	}
}

// trackedDirs returns the unique directories containing the root file and
// any referenced mocks/rewrites files.
func (s *Store) trackedDirs() []string {
	seen := make(map[string]struct{})
	var dirs []string
	add := func(p string) {
		dir := filepath.Dir(p)
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	s.mu.Lock()
	path := s.path
	s.mu.Unlock()
	add(path)

	if snap := s.Snapshot(); snap != nil {
		if snap.Options.MocksFile != "" {
			add(resolve(snap.BaseDir, snap.Options.MocksFile))
		}
		if snap.Options.RewritesFile != "" {
			add(resolve(snap.BaseDir, snap.Options.RewritesFile))
		}
	}
	return dirs
}

// trackedFiles returns the absolute paths the watcher should react to.
func (s *Store) trackedFiles() map[string]struct{} {
	files := make(map[string]struct{})

	s.mu.Lock()
	path := s.path
	s.mu.Unlock()
	files[filepath.Clean(path)] = struct{}{}

	if snap := s.Snapshot(); snap != nil {
		if snap.Options.MocksFile != "" {
			files[filepath.Clean(resolve(snap.BaseDir, snap.Options.MocksFile))] = struct{}{}
		}
		if snap.Options.RewritesFile != "" {
			files[filepath.Clean(resolve(snap.BaseDir, snap.Options.RewritesFile))] = struct{}{}
		}
	}
	return files
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if _, tracked := s.trackedFiles()[filepath.Clean(event.Name)]; !tracked {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				s.log.Info("configuration change detected", "file", event.Name)
				s.reload()
				// A reload may point at new mocks/rewrites files.
				s.watchDirs(watcher)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("config watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (s *Store) Close() error {
	s.mu.Lock()
	watcher := s.watcher
	cancel := s.cancel
	s.watcher = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if watcher != nil {
		return watcher.Close()
	}
	return nil
}
