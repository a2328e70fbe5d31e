package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch calls onChange after the file at path was written, created or
// replaced, once no further event arrived for debounce. It returns when ctx is
// done.
//
// The parent directory is watched rather than the file, so editors that save
// by renaming a temporary file over the original are noticed too.
func Watch(ctx context.Context, path string, debounce time.Duration, log logrus.FieldLogger, onChange func()) error {
	if log == nil {
		log = logrus.StandardLogger()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debugf("Configuration file changed: %s (%s)", event.Name, event.Op)
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("Configuration watcher error")

		case <-timer.C:
			log.Infof("Configuration file %s changed", abs)
			onChange()
		}
	}
}
