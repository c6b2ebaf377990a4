// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"

	"github.com/kortschak/animtex/internal/slogext"
)

// result is the comparable part of a Change.
type result struct {
	Name   string
	Write  bool
	Remove bool
	Config *Config
	Err    bool
}

var operations = []struct {
	name string
	fn   func(dir string) error
	want *result
}{
	{
		name: "config",
		fn: func(dir string) error {
			return create(dir, "animtex.toml", 0o644, "source = \"anim.gif\"\nloop = false\n")
		},
		want: &result{
			Name:   "animtex.toml",
			Write:  true,
			Config: &Config{Source: "anim.gif", Loop: ptr(false)},
		},
	},
	{
		name: "config_no_change",
		fn: func(dir string) error {
			return create(dir, "animtex.toml", 0o644, "source = \"anim.gif\"\nloop = false\n")
		},
	},
	{
		name: "config_invalid",
		fn: func(dir string) error {
			return create(dir, "animtex.toml", 0o644, "delay_policy = \"average\"\n")
		},
		want: &result{
			Name:  "animtex.toml",
			Write: true,
			Err:   true,
		},
	},
	{
		name: "unwatched",
		fn: func(dir string) error {
			return create(dir, "other.gif", 0o644, "GIF89a")
		},
	},
	{
		name: "source",
		fn: func(dir string) error {
			return create(dir, "anim.gif", 0o644, "GIF89a new")
		},
		want: &result{
			Name:  "anim.gif",
			Write: true,
		},
	},
	{
		name: "source_remove",
		fn: func(dir string) error {
			return os.Remove(filepath.Join(dir, "anim.gif"))
		},
		want: &result{
			Name:   "anim.gif",
			Remove: true,
		},
	},
	{
		name: "source_replace",
		fn: func(dir string) error {
			err := create(dir, "anim.gif.tmp", 0o644, "GIF89a replaced")
			if err != nil {
				return err
			}
			return os.Rename(filepath.Join(dir, "anim.gif.tmp"), filepath.Join(dir, "anim.gif"))
		},
		want: &result{
			Name:  "anim.gif",
			Write: true,
		},
	},
}

func create(dir, name string, perm fs.FileMode, data string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(data), perm)
}

func TestWatcher(t *testing.T) {
	var logBuf bytes.Buffer
	log := slog.New(slogext.NewJSONHandler(&logBuf, &slogext.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: slogext.NewAtomicBool(*lines),
	}))
	defer func() {
		if *verbose {
			t.Logf("log:\n%s\n", &logBuf)
		}
	}()

	dir := t.TempDir()
	err := create(dir, "animtex.toml", 0o644, "source = \"anim.gif\"\n")
	if err != nil {
		t.Fatalf("unexpected error creating config: %v", err)
	}
	err = create(dir, "anim.gif", 0o644, "GIF89a")
	if err != nil {
		t.Fatalf("unexpected error creating source: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := make(chan Change)
	w, err := NewWatcher(filepath.Join(dir, "animtex.toml"), []string{filepath.Join(dir, "anim.gif")}, stream, -1, log)
	if err != nil {
		t.Fatalf("unexpected error creating watcher: %v", err)
	}
	defer w.Close()
	go w.Watch(ctx)

	for _, op := range operations {
		err := op.fn(dir)
		if err != nil {
			t.Errorf("unexpected error running operation %q: %v", op.name, err)
		}
		timer := time.NewTimer(100 * time.Millisecond)
		var got *result
		select {
		case <-timer.C:
		case c := <-stream:
			timer.Stop()
			got = &result{
				Name:   filepath.Base(c.Event.Name),
				Write:  c.Event.Has(fsnotify.Write | fsnotify.Create),
				Remove: c.Event.Has(fsnotify.Remove | fsnotify.Rename),
				Config: c.Config,
				Err:    c.Err != nil,
			}
			if w.IsConfig(c) != (got.Name == "animtex.toml") {
				t.Errorf("unexpected config classification for %q", op.name)
			}
		}
		if !cmp.Equal(op.want, got) {
			t.Errorf("unexpected result for %q:\n--- want:\n+++ got:\n%s", op.name, cmp.Diff(op.want, got))
		}
		// Drain any trailing events for the operation.
		for drained := false; !drained; {
			select {
			case <-stream:
			case <-time.After(50 * time.Millisecond):
				drained = true
			}
		}
	}
}

func TestWatcherAdd(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "other")
	err := os.Mkdir(other, 0o755)
	if err != nil {
		t.Fatalf("unexpected error creating directory: %v", err)
	}
	err = create(other, "next.gif", 0o644, "GIF89a")
	if err != nil {
		t.Fatalf("unexpected error creating source: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := make(chan Change)
	w, err := NewWatcher("", nil, stream, -1, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("unexpected error creating watcher: %v", err)
	}
	defer w.Close()
	go w.Watch(ctx)

	path := filepath.Join(other, "next.gif")
	err = w.Add(path)
	if err != nil {
		t.Fatalf("unexpected error adding file: %v", err)
	}
	// Adding twice is a no-op.
	err = w.Add(path)
	if err != nil {
		t.Fatalf("unexpected error re-adding file: %v", err)
	}

	err = create(other, "next.gif", 0o644, "GIF89a changed")
	if err != nil {
		t.Fatalf("unexpected error writing source: %v", err)
	}
	select {
	case c := <-stream:
		if filepath.Base(c.Event.Name) != "next.gif" {
			t.Errorf("unexpected change for %q", c.Event.Name)
		}
		if w.IsConfig(c) {
			t.Error("unexpected config classification")
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for change")
	}
}
