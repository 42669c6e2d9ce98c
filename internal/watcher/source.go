package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/mattjoyce/watchit/internal/log"
)

// Source delivers raw filesystem events for a set of directory trees.
type Source interface {
	// Subscribe replaces the current subscription with roots.
	Subscribe(roots []string) error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Close() error
}

// FSNotifySource watches directory trees recursively with fsnotify.
// Directories created under a root are added as they appear.
type FSNotifySource struct {
	fsw    *fsnotify.Watcher
	ignore []string
	logger *slog.Logger

	events chan fsnotify.Event
	errors chan error
	done   chan struct{}

	mu    sync.Mutex
	roots []string

	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// NewFSNotifySource creates a source. ignore holds doublestar patterns
// matched against a directory's base name and its path relative to the root.
func NewFSNotifySource(ignore []string) (*FSNotifySource, error) {
	for _, pat := range ignore {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pat)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	s := &FSNotifySource{
		fsw:    fsw,
		ignore: ignore,
		logger: log.WithComponent("fsnotify"),
		events: make(chan fsnotify.Event, 256),
		errors: make(chan error, 16),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.forward()
	return s, nil
}

func (s *FSNotifySource) Events() <-chan fsnotify.Event { return s.events }

func (s *FSNotifySource) Errors() <-chan error { return s.errors }

// Roots returns the current subscription.
func (s *FSNotifySource) Roots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.roots...)
}

func (s *FSNotifySource) Subscribe(roots []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range s.fsw.WatchList() {
		if err := s.fsw.Remove(path); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			s.logger.Debug("remove watch", "path", path, "error", err)
		}
	}

	s.roots = append([]string(nil), roots...)
	var errs []error
	for _, root := range roots {
		if err := s.addTree(root); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// addTree adds root and every non-ignored directory beneath it.
func (s *FSNotifySource) addTree(root string) error {
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subdirectories are skipped, not fatal.
			s.logger.Warn("skipping inaccessible path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && s.ignored(root, path) {
			return filepath.SkipDir
		}
		if err := s.fsw.Add(path); err != nil {
			return fmt.Errorf("add directory %q: %w", path, err)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("watch %s: %w", root, walkErr)
	}
	return nil
}

func (s *FSNotifySource) ignored(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(path)
	for _, pat := range s.ignore {
		if doublestar.MatchUnvalidated(pat, base) || doublestar.MatchUnvalidated(pat, rel) {
			return true
		}
	}
	return false
}

// rootFor returns the subscribed root containing path.
func (s *FSNotifySource) rootFor(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, root := range s.roots {
		if underRoot(root, path) {
			return root, true
		}
	}
	return "", false
}

// maybeAddDir extends the subscription to a directory created after the
// initial walk.
func (s *FSNotifySource) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	root, ok := s.rootFor(path)
	if !ok || s.ignored(root, path) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.addTree(path); err != nil {
		s.logger.Warn("failed to watch new directory", "path", path, "error", err)
	}
}

func (s *FSNotifySource) forward() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return

		case ev, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) {
				s.maybeAddDir(ev.Name)
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			select {
			case s.errors <- err:
			default:
				s.logger.Warn("dropping fsnotify error", "error", err)
			}
		}
	}
}

// Close stops the source. Events and Errors are not closed; consumers
// select on their own context.
func (s *FSNotifySource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.fsw.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

func underRoot(root, path string) bool {
	if path == root {
		return true
	}
	if root == string(filepath.Separator) {
		return strings.HasPrefix(path, root)
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
