package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a YAML catalog file when it changes on disk. A file that
// fails to parse is logged and the previous catalog stays in effect.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Catalog)
	logger   *zap.Logger
}

// NewWatcher watches the directory holding path, so editors that replace the
// file by rename are picked up as well.
func NewWatcher(path string, onChange func(*Catalog), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		watcher:  fw,
		onChange: onChange,
		logger:   logger,
	}, nil
}

// Run processes file events until ctx is done
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Catalog watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	c, err := LoadFile(w.path)
	if err != nil {
		// Writers often truncate before writing; the next event carries the full file
		w.logger.Warn("Ignoring catalog change",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}

	w.logger.Info("Catalog reloaded",
		zap.String("path", w.path),
		zap.Int("treatments", len(c.Treatments)),
	)
	w.onChange(c)
}
