package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads mission templates as their source files change. Dev
// tooling only; the game itself loads once.
type Watcher struct {
	catalog *Catalog
	watcher *fsnotify.Watcher
}

// Watch starts watching the catalog directory tree. Changed files are fed
// through ReloadOne, new files are parsed and inserted. Stops when ctx is
// cancelled.
func (c *Catalog) Watch(ctx context.Context) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch every directory under the catalog root; fsnotify is not
	// recursive on its own.
	err = filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", c.dir, err)
	}

	w := &Watcher{catalog: c, watcher: fsw}
	go w.run(ctx)
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	c := w.catalog
	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, missionExt) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleChange(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			c.logger.WithError(err).Warn("watcher error")
		}
	}
}

func (w *Watcher) handleChange(path string) {
	c := w.catalog
	if t, ok := c.byFilename(path); ok {
		if err := c.ReloadOne(t.Name); err != nil {
			c.logger.WithError(err).Warnf("hot reload failed for %s, previous version retained", path)
		}
		return
	}
	if err := c.addFromFile(path); err != nil {
		c.logger.WithError(err).Warnf("new mission file %s not loaded", path)
		return
	}
	c.logger.Infof("new mission file %s loaded", path)
}
