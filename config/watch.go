// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/mattermost/reference-annotator/logger"
)

// Watch reloads the configuration file into container whenever it changes, until ctx is
// done. Files that fail to load are logged and the previous configuration is kept.
func Watch(ctx context.Context, path string, container *Container, log logger.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	// Editors replace files on save, so watch the directory and filter by name.
	absPath, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err := w.Add(filepath.Dir(absPath)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}

				cfg, err := Load(absPath)
				if err != nil {
					log.Warn("ignoring invalid configuration change", "path", absPath, "error", err)
					continue
				}
				container.Update(cfg)
				log.Info("configuration reloaded", "path", absPath)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", "error", err)
			}
		}
	}()

	return nil
}
