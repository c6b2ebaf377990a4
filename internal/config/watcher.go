// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"context"
	"crypto/sha1"
	"hash"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileDebounce is the default duration we wait for the contents to have
// stabilised to work around some editors writing an empty file and then the
// buffer.
const FileDebounce = 10 * time.Millisecond

// Change is a change to a watched file identified by a Watcher.
type Change struct {
	Event fsnotify.Event
	// Config is the new configuration when the change is
	// a valid write to the configuration file.
	Config *Config
	Err    error
}

// IsConfig returns whether the change relates to the configuration file
// being watched by w.
func (w *Watcher) IsConfig(c Change) bool {
	return w.config != "" && c.Event.Name == w.config
}

// Watcher watches a configuration file and a set of data files, reporting
// changes in their content. Files are watched via their parent directories
// so that files that are replaced by renaming are followed.
type Watcher struct {
	config   string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu     sync.Mutex
	files  map[string]bool
	dirs   map[string]bool
	hash   hash.Hash
	hashes map[string]Sum

	changes chan<- Change
	log     *slog.Logger
}

// NewWatcher returns a Watcher for the configuration file at config and the
// provided data files, sending change events on the changes channel. Either
// config or files may be empty. The debounce parameter specifies how long to
// wait after an fsnotify.Event before reading the file to ensure that writes
// will be reflected in the state checksum. If it is less than zero,
// FileDebounce is used.
func NewWatcher(config string, files []string, changes chan<- Change, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	if debounce < 0 {
		debounce = FileDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		debounce: debounce,
		watcher:  watcher,
		changes:  changes,
		hash:     sha1.New(),
		hashes:   make(map[string]Sum),
		log:      log.With(slog.String("component", "config.watcher")),
	}
	if config != "" {
		w.config, err = filepath.Abs(config)
		if err != nil {
			watcher.Close()
			return nil, err
		}
		files = append([]string{config}, files...)
	}
	for _, f := range files {
		err = w.Add(f)
		if err != nil {
			watcher.Close()
			return nil, err
		}
	}
	return w, nil
}

// Add adds the data file at path to the set of watched files.
func (w *Watcher) Add(path string) error {
	if path == "" {
		return nil
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files[path] {
		return nil
	}
	w.files[path] = true
	if b, err := os.ReadFile(path); err == nil {
		w.hashes[path] = w.sum(b)
	}
	dir := filepath.Dir(path)
	if w.dirs[dir] {
		return nil
	}
	err = w.watcher.Add(dir)
	if err != nil {
		delete(w.files, path)
		delete(w.hashes, path)
		return err
	}
	w.dirs[dir] = true
	return nil
}

// watched returns whether path is in the set of watched files.
func (w *Watcher) watched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[path]
}

// Watch watches for changes until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.watched(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Write | fsnotify.Create):
				w.log.LogAttrs(ctx, slog.LevelDebug, "write", slog.String("name", ev.Name), slog.String("op", ev.Op.String()))
				time.Sleep(w.debounce)

				fi, err := os.Stat(ev.Name)
				if err == nil && fi.IsDir() {
					continue
				}
				b, err := os.ReadFile(ev.Name)
				if err != nil {
					w.log.LogAttrs(ctx, slog.LevelError, "read file", slog.Any("error", err))
					w.send(ctx, Change{Event: ev, Err: err})
					continue
				}
				w.mu.Lock()
				sum := w.sum(b)
				prev, ok := w.hashes[ev.Name]
				w.hashes[ev.Name] = sum
				w.mu.Unlock()
				if ok && prev == sum {
					w.log.LogAttrs(ctx, slog.LevelDebug, "no change", slog.String("name", ev.Name), slog.Any("sum", sum))
					continue
				}
				c := Change{Event: ev}
				if ev.Name == w.config {
					c.Config, c.Err = Parse(b)
				}
				w.send(ctx, c)

			case ev.Has(fsnotify.Rename | fsnotify.Remove):
				w.log.LogAttrs(ctx, slog.LevelDebug, "remove", slog.String("name", ev.Name), slog.String("op", ev.Op.String()))
				w.mu.Lock()
				delete(w.hashes, ev.Name)
				w.mu.Unlock()
				w.send(ctx, Change{Event: ev})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.send(ctx, Change{Err: err})
		}
	}
}

func (w *Watcher) send(ctx context.Context, c Change) {
	w.log.LogAttrs(ctx, slog.LevelDebug, "change", slog.Any("change", changeValue{c}))
	select {
	case <-ctx.Done():
	case w.changes <- c:
	}
}

func (w *Watcher) sum(b []byte) Sum {
	w.hash.Reset()
	w.hash.Write(b)
	return ([sha1.Size]byte)(w.hash.Sum(nil))
}

// Close closes the underlying fsnotify.Watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
