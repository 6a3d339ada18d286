package rules

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ignite/notify-triage/internal/pkg/logger"
)

// debounceDelay absorbs editor rename/write bursts and partial writes.
const debounceDelay = 250 * time.Millisecond

// Watch reloads the rule file into the engine whenever it changes on disk,
// until ctx is cancelled. A file that fails to load or validate is logged
// and skipped; the engine keeps serving the previous set. The parent
// directory is watched rather than the file itself so atomic-rename saves
// (the common editor behavior) are still observed.
func Watch(ctx context.Context, engine *Engine, path string) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, func() {
			rs, err := LoadFile(path)
			if err != nil {
				logger.Warn("rules reload rejected, keeping active set",
					"path", path, "error", err.Error())
				return
			}
			if err := engine.Replace(rs); err != nil {
				logger.Warn("rules reload rejected, keeping active set",
					"path", path, "error", err.Error())
				return
			}
			logger.Info("rules reloaded", "path", path, "rules", len(rs.Rules))
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-w.Events:
			if ev.Name == filepath.Join(dir, file) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case <-w.Errors:
			// keep watching
		}
	}
}
