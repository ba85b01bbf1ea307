package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Store holds the current catalog snapshot. Snapshots are immutable; a reload
// swaps in a new one.
type Store struct {
	current atomic.Pointer[Catalog]
	path    string
	log     zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
	reloads       atomic.Int64
	onReload      atomic.Pointer[func(*Catalog)]
}

// reloadDelay coalesces the Create/Write/Rename bursts editors produce.
const reloadDelay = 200 * time.Millisecond

// NewStore returns a store serving the bundled catalog, or the catalog file at
// path when path is non-empty.
func NewStore(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{path: path, log: log}
	if path == "" {
		s.current.Store(Bundled())
		return s, nil
	}
	c, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	s.current.Store(c)
	log.Info().Str("path", path).Int("cities", len(c.cities)).Msg("catalog loaded from file")
	return s, nil
}

// Catalog returns the current snapshot.
func (s *Store) Catalog() *Catalog {
	return s.current.Load()
}

// Reloads returns how many times the catalog file was reloaded.
func (s *Store) Reloads() int64 { return s.reloads.Load() }

// Watch starts reloading the catalog file when it changes. No-op for the
// bundled catalog.
func (s *Store) Watch() error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory so atomic rename-over saves are seen.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return err
	}
	s.watcher = w
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.watchLoop()
	s.log.Info().Str("path", s.path).Msg("catalog watcher started")
	return nil
}

// Close stops the watcher.
func (s *Store) Close() {
	if s.watcher == nil {
		return
	}
	close(s.done)
	s.watcher.Close()
	s.wg.Wait()
	s.debounceMu.Lock()
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceMu.Unlock()
}

func (s *Store) watchLoop() {
	defer s.wg.Done()
	target := filepath.Clean(s.path)
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			s.scheduleReload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Msg("catalog watcher error")
		}
	}
}

func (s *Store) scheduleReload() {
	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(reloadDelay, s.reload)
}

func (s *Store) reload() {
	if err := s.Reload(); err != nil {
		// Keep serving the previous snapshot.
		s.log.Warn().Err(err).Str("path", s.path).Msg("catalog reload failed")
	}
}

// Reload re-reads the catalog file and swaps in the new snapshot. The bundled
// catalog has nothing to reload and returns nil.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	c, err := loadFile(s.path)
	if err != nil {
		return err
	}
	s.current.Store(c)
	s.reloads.Add(1)
	s.log.Info().Str("path", s.path).Int("cities", len(c.cities)).Msg("catalog reloaded")
	if fn := s.onReload.Load(); fn != nil {
		(*fn)(c)
	}
	return nil
}

// OnReload registers fn to be called after each successful reload.
func (s *Store) OnReload(fn func(*Catalog)) {
	s.onReload.Store(&fn)
}

// Path returns the catalog file path, or "" for the bundled catalog.
func (s *Store) Path() string { return s.path }

func loadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data)
}
