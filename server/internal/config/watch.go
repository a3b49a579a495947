package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path for changes and calls onChange with the newly loaded
// Config each time the file is written. It runs until ctx is cancelled.
//
// If a reload fails (e.g. invalid YAML) the error is logged and onChange is
// not called, so the previous config stays active.
//
// The parent directory is watched rather than the file itself so that
// editors saving through rename keep triggering reloads. When path is a
// symlink, a change of its resolved target also counts as a write, which
// covers mounts that publish updates by swapping a symlink (Kubernetes
// ConfigMaps via ..data).
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	target := resolve(abs)

	slog.Info("config: watching for changes", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) == abs {
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				target = resolve(abs)
			} else {
				next := resolve(abs)
				if next == "" || next == target {
					continue
				}
				target = next
			}

			cfg, err := Load(abs)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", abs, "err", err)
				continue
			}

			slog.Info("config: reloaded", "path", abs)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// resolve returns path with symlinks evaluated, or "" when it does not
// currently resolve.
func resolve(path string) string {
	p, err := filepath.EvalSymlinks(path)
	if err != nil {
		return ""
	}
	return p
}
