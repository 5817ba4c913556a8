package graph

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SourceWatcher watches a source tree for changes and calls Invalidate once
// writes settle, so a long-lived process never serves a graph built from a
// stale fingerprint. Grounded on theRebelliousNerd-codenerd's MangleWatcher:
// an fsnotify.Watcher plus a debounce map drained on a separate ticker.
type SourceWatcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	srcDir  string
	debounce map[string]time.Time
	debounceDur time.Duration
	invalidate func()
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSourceWatcher watches srcDir (recursively) for file events and calls
// invalidate, debounced by 300ms, whenever a non-excluded file settles.
func NewSourceWatcher(srcDir string, invalidate func(), logger *slog.Logger) (*SourceWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	sw := &SourceWatcher{
		watcher: w,
		srcDir: srcDir,
		debounce: make(map[string]time.Time),
		debounceDur: 300 * time.Millisecond,
		invalidate: invalidate,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	return sw, nil
}

// Start adds srcDir and its subdirectories to the watch list and begins the
// event loop in a goroutine. Non-blocking.
func (sw *SourceWatcher) Start() error {
	err := filepath.Walk(sw.srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		if IsExcludedDir(info.Name()) {
			return filepath.SkipDir
		}
		if addErr := sw.watcher.Add(path); addErr != nil {
			sw.logger.Warn("graph: watch directory failed", "path", path, "error", addErr)
		}
		return nil
	})
	if err != nil {
		return err
	}
	go sw.run()
	return nil
}

// Stop closes the underlying watcher and waits for the event loop to exit.
func (sw *SourceWatcher) Stop() {
	close(sw.stopCh)
	<-sw.doneCh
	_ = sw.watcher.Close()
}

func (sw *SourceWatcher) run() {
	defer close(sw.doneCh)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sw.stopCh:
			return
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if strings.HasSuffix(ev.Name, ".tmp") || strings.HasSuffix(ev.Name, "~") {
				continue
			}
			sw.mu.Lock()
			sw.debounce[ev.Name] = time.Now()
			sw.mu.Unlock()
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Warn("graph: watcher error", "error", err)
		case <-ticker.C:
			sw.drainSettled()
		}
	}
}

func (sw *SourceWatcher) drainSettled() {
	sw.mu.Lock()
	now := time.Now()
	settled := false
	for path, t := range sw.debounce {
		if now.Sub(t) >= sw.debounceDur {
			delete(sw.debounce, path)
			settled = true
		}
	}
	sw.mu.Unlock()
	if settled && sw.invalidate != nil {
		sw.invalidate()
	}
}
