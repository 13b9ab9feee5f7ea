// Package watchmode implements the CLI's --watch flag: it reports each
// change to a tracked source file, on which the CLI re-renders its
// report.
//
// Every source_dirs root is watched directly (fsnotify
// has no native recursive mode, so each subdirectory is Add()ed
// individually), and every write/create event is filtered through the
// same eligibility.Policy the engine itself uses, rather than
// resolving a reverse-dependency graph.
package watchmode

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/covstar/luacov/internal/luacov/eligibility"
)

// WatchEvent is one filesystem change affecting an eligible file.
type WatchEvent struct {
	File string
	Op   fsnotify.Op
}

// Watcher watches source_dirs for changes to eligible Lua files.
type Watcher struct {
	mu sync.RWMutex

	fsWatcher *fsnotify.Watcher
	policy    eligibility.Policy
	roots     map[string]bool

	Events chan WatchEvent
	Errors chan error
	done   chan struct{}
}

// New creates a Watcher that filters events through policy.
func New(policy eligibility.Policy) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		policy:    policy,
		roots:     map[string]bool{},
		Events:    make(chan WatchEvent, 100),
		Errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}

	go w.run()

	return w, nil
}

// AddRoot recursively watches every directory under root.
func (w *Watcher) AddRoot(root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", root, err)
	}
	if w.roots[absRoot] {
		return nil
	}

	err = filepath.WalkDir(absRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if addErr := w.fsWatcher.Add(path); addErr != nil {
			w.Errors <- fmt.Errorf("watching %s: %w", path, addErr)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", absRoot, err)
	}

	w.roots[absRoot] = true
	return nil
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.Errors <- err
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.policy.Eligible(event.Name) {
		return
	}
	w.Events <- WatchEvent{File: event.Name, Op: event.Op}
}
