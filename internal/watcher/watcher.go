// Package watcher ingests text files dropped into watched directories.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/docid"
	"github.com/hyperjump/kioku/internal/engine"
	"github.com/hyperjump/kioku/internal/models"
)

const (
	defaultDebounce = 400 * time.Millisecond
	// fileIntentScore is assigned to watched-file ingests; deliberately above
	// the chunking threshold so long drops become passage-searchable.
	fileIntentScore = 0.6
)

// Watcher watches directories and ingests matching files through the engine.
// The file's absolute path is used as the source key, so re-saving a file
// upserts its digest instead of creating a duplicate.
type Watcher struct {
	engine     *engine.Engine
	roots      []string
	extensions []string
	debounce   time.Duration
	logger     *zap.Logger

	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	watcher     *fsnotify.Watcher
	started     bool
}

// New creates a watcher over roots; extensions filter which files are
// ingested (empty means all).
func New(eng *engine.Engine, roots, extensions []string, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		engine:      eng,
		roots:       roots,
		extensions:  extensions,
		debounce:    defaultDebounce,
		logger:      logger,
		debounceMap: make(map[string]*time.Timer),
	}
}

// Start begins watching. It blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fsw
	w.started = true
	w.mu.Unlock()
	defer fsw.Close()

	for _, root := range w.roots {
		if err := fsw.Add(root); err != nil {
			w.logger.Warn("failed to watch directory", zap.String("dir", root), zap.Error(err))
			continue
		}
		w.logger.Info("watching directory", zap.String("dir", root))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !w.matches(event.Name) {
		return
	}
	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.scheduleIngest(ctx, event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.remove(ctx, event.Name)
	}
}

// scheduleIngest debounces rapid write bursts for the same file.
func (w *Watcher) scheduleIngest(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.debounceMap[path]; ok {
		timer.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("failed to read file", zap.String("path", path), zap.Error(err))
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	id, err := w.engine.Ingest(ctx, &models.IngestRequest{
		SourceKey:   abs,
		Title:       filepath.Base(path),
		Category:    "reference",
		IntentScore: fileIntentScore,
		Text:        string(data),
	})
	if err != nil {
		w.logger.Warn("failed to ingest file", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Debug("ingested file", zap.String("path", path), zap.String("id", id))
}

func (w *Watcher) remove(ctx context.Context, path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if err := w.engine.Delete(ctx, docid.FromSourceKey(abs)); err != nil {
		w.logger.Warn("failed to remove file document", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Debug("removed file document", zap.String("path", path))
}

func (w *Watcher) matches(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
