// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kortschak/animtex/internal/animation"
	"github.com/kortschak/animtex/internal/config"
	"github.com/kortschak/animtex/internal/control"
	"github.com/kortschak/animtex/internal/sink"
	"github.com/kortschak/animtex/internal/state"
)

// textBounds is the canvas used for text sources when no output size is
// configured.
var textBounds = image.Rect(0, 0, 128, 32)

// track is a configured source with the controller that plays it and the
// sink that consumes its output.
type track struct {
	cfg  *config.Config
	ctrl *animation.Controller

	// key identifies the source in the state database.
	key    string
	path   string // absolute path of a file source
	decode animation.DecodeFunc

	sink *sink.Sink
}

// player owns the playing track and everything that consumes its output.
// All methods must be called from the render loop goroutine.
type player struct {
	*track
	// next is a reconfigured track whose source is
	// being loaded. It replaces the playing track
	// only when its load succeeds.
	next *track

	overrides flags

	db *state.DB

	level *slog.LevelVar
	root  *slog.Logger
	log   *slog.Logger
}

func newPlayer(cfg *config.Config, overrides flags, db *state.DB, level *slog.LevelVar, log *slog.Logger) (*player, error) {
	p := &player{
		overrides: overrides,
		db:        db,
		level:     level,
		root:      log,
		log:       log.With(slog.String("component", "animtex.player")),
	}
	t, err := p.prepare(cfg)
	if err != nil {
		return nil, err
	}
	p.track = t
	return p, nil
}

// prepare returns a track for cfg with a new controller that has no source
// loaded. The sink of the playing track is reused if the output
// configuration is unchanged.
func (p *player) prepare(cfg *config.Config) (*track, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	opts.Notify = p.notify
	opts.Log = p.root

	var s *sink.Sink
	if p.track != nil && outputEqual(cfg.Output, p.cfg.Output) {
		s = p.sink
	}
	if s == nil && cfg.Output != nil && cfg.Output.Dir != "" {
		format, err := sink.ParseFormat(cfg.Output.Format)
		if err != nil {
			return nil, err
		}
		size := image.Pt(cfg.Output.Width, cfg.Output.Height)
		if size.X == 0 || size.Y == 0 {
			size = image.Point{}
		}
		s, err = sink.New(cfg.Output.Dir, format, size, cfg.Output.Every, p.root)
		if err != nil {
			return nil, err
		}
	}

	var (
		key, path string
		decode    animation.DecodeFunc
	)
	switch {
	case cfg.Source != "":
		path, err = filepath.Abs(cfg.Source)
		if err != nil {
			return nil, err
		}
		key = path
		decode = animation.FileSource(path)
	case cfg.Text != "":
		bounds := textBounds
		if o := cfg.Output; o != nil && o.Width > 0 && o.Height > 0 {
			bounds = image.Rect(0, 0, o.Width, o.Height)
		}
		key = "text:" + cfg.Text
		decode = animation.Text(cfg.Text).Source(bounds, color.White, color.Black)
	default:
		return nil, errors.New("no source")
	}

	return &track{
		cfg:    cfg,
		ctrl:   animation.NewController(opts),
		key:    key,
		path:   path,
		decode: decode,
		sink:   s,
	}, nil
}

// latest returns the most recently configured track.
func (p *player) latest() *track {
	if p.next != nil {
		return p.next
	}
	return p.track
}

// nextReady returns the load completion channel of the pending track, or
// nil if there is none.
func (p *player) nextReady() <-chan struct{} {
	if p.next == nil {
		return nil
	}
	return p.next.ctrl.Ready()
}

// promote installs the pending track if its load has succeeded. A failed
// load discards the pending track and leaves the playing track in place.
func (p *player) promote(ctx context.Context) {
	t := p.next
	ok, err := t.ctrl.ApplyPending()
	if err != nil {
		p.log.LogAttrs(ctx, slog.LevelWarn, "reconfigure", slog.String("source", t.key), slog.Any("error", err))
		t.ctrl.Close()
		p.next = nil
		return
	}
	if !ok {
		return
	}
	p.save(ctx)
	p.ctrl.Close()
	p.track, p.next = t, nil
	p.restore(ctx)
	p.log.LogAttrs(ctx, slog.LevelInfo, "reconfigured", slog.String("source", p.key))
}

// load decodes the source synchronously and restores any saved position.
func (p *player) load(ctx context.Context) error {
	frames, screen, err := p.decode(ctx)
	if err != nil {
		return err
	}
	err = p.ctrl.Load(frames, screen)
	if err != nil {
		return err
	}
	p.restore(ctx)
	return nil
}

// restore applies the position saved for the current source.
func (p *player) restore(ctx context.Context) {
	if p.db == nil {
		return
	}
	pos, err := p.db.Load(p.key)
	if err != nil {
		if err != state.ErrNotFound {
			p.log.LogAttrs(ctx, slog.LevelWarn, "restore", slog.Any("error", err))
		}
		return
	}
	if pos.State == animation.Stopped.String() {
		p.ctrl.Stop()
		return
	}
	err = p.ctrl.SetFrame(pos.Frame)
	if err != nil {
		p.log.LogAttrs(ctx, slog.LevelWarn, "restore", slog.Any("position", pos), slog.Any("error", err))
		return
	}
	switch pos.State {
	case animation.Playing.String():
		p.ctrl.Play()
	case animation.Paused.String():
		p.ctrl.Pause()
	}
	p.log.LogAttrs(ctx, slog.LevelInfo, "restore", slog.Any("position", pos))
}

// save stores the current playback position.
func (p *player) save(ctx context.Context) {
	if p.db == nil || p.ctrl.Len() == 0 {
		return
	}
	err := p.db.Save(state.Position{
		Source: p.key,
		Frame:  p.ctrl.Index(),
		State:  p.ctrl.State().String(),
	})
	if err != nil {
		p.log.LogAttrs(ctx, slog.LevelError, "save", slog.Any("error", err))
	}
}

// run is the render loop. It ticks the controller at the given interval,
// serves control commands and applies file changes until ctx is done.
func (p *player) run(ctx context.Context, interval time.Duration, commands <-chan control.Command, changes <-chan config.Change, watcher *config.Watcher) error {
	defer func() {
		p.save(context.Background())
		p.ctrl.Close()
		if p.next != nil {
			p.next.ctrl.Close()
		}
	}()

	// Write the initial composite.
	err := p.flush(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				p.log.LogAttrs(ctx, slog.LevelInfo, "duration elapsed")
			}
			return nil

		case now := <-ticker.C:
			p.ctrl.Tick(now)

		case <-p.ctrl.Ready():
			p.ctrl.ApplyPending()

		case <-p.nextReady():
			p.promote(ctx)

		case cmd := <-commands:
			status, err := control.Apply(p.ctrl, cmd)
			status.Source = p.key
			status.Loading = p.ctrl.Loading() || p.next != nil
			cmd.Reply <- control.Reply{Status: status, Err: err}

		case c := <-changes:
			err := p.change(ctx, c, watcher)
			if err != nil {
				p.log.LogAttrs(ctx, slog.LevelWarn, "change", slog.Any("error", err))
			}
		}
		err = p.flush(ctx)
		if err != nil {
			return err
		}
	}
}

// change applies a watched file change.
func (p *player) change(ctx context.Context, c config.Change, watcher *config.Watcher) error {
	if c.Err != nil {
		return c.Err
	}
	switch {
	case watcher.IsConfig(c):
		if c.Config == nil {
			p.log.LogAttrs(ctx, slog.LevelWarn, "config removed", slog.String("path", c.Event.Name))
			return nil
		}
		cfg := p.overrides.apply(c.Config)
		if cfg.LogLevel != "" {
			l, err := cfg.Level()
			if err != nil {
				return err
			}
			p.level.Set(l)
		}
		latest := p.latest()
		if cfg.Equal(latest.cfg) && outputEqual(cfg.Output, latest.cfg.Output) {
			p.log.LogAttrs(ctx, slog.LevelDebug, "config unchanged")
			return nil
		}
		t, err := p.prepare(cfg)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if t.path != "" {
			err = watcher.Add(t.path)
			if err != nil {
				p.log.LogAttrs(ctx, slog.LevelWarn, "watch source", slog.String("path", t.path), slog.Any("error", err))
			}
		}
		if p.next != nil {
			p.next.ctrl.Close()
		}
		p.next = t
		p.log.LogAttrs(ctx, slog.LevelInfo, "reconfigure", slog.String("source", t.key))
		t.ctrl.LoadAsync(ctx, t.decode)

	case p.next != nil && c.Event.Name == p.next.path:
		if c.Event.Has(fsnotify.Remove | fsnotify.Rename) {
			return nil
		}
		p.next.ctrl.LoadAsync(ctx, p.next.decode)

	case c.Event.Name == p.path:
		if c.Event.Has(fsnotify.Remove | fsnotify.Rename) {
			p.log.LogAttrs(ctx, slog.LevelWarn, "source removed", slog.String("path", p.path))
			return nil
		}
		p.log.LogAttrs(ctx, slog.LevelInfo, "reload", slog.String("path", p.path))
		p.ctrl.LoadAsync(ctx, p.decode)
	}
	return nil
}

func outputEqual(a, b *config.Output) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// flush writes the composite to the sink if it has changed.
func (p *player) flush(ctx context.Context) error {
	if !p.ctrl.TakeDirty() || p.sink == nil {
		return nil
	}
	_, err := p.sink.Write(ctx, p.ctrl.Buffer(), p.ctrl.Index())
	return err
}

// notify logs controller events.
func (p *player) notify(e animation.Event) {
	ctx := context.Background()
	switch e.Kind {
	case animation.EventUpdated:
		p.log.LogAttrs(ctx, slog.LevelDebug, "event", slog.String("kind", e.Kind.String()), slog.Int("frame", e.Frame))
	case animation.EventError:
		p.log.LogAttrs(ctx, slog.LevelWarn, "event", slog.String("kind", e.Kind.String()), slog.Int("frame", e.Frame), slog.Any("error", e.Err))
	default:
		p.log.LogAttrs(ctx, slog.LevelInfo, "event", slog.String("kind", e.Kind.String()), slog.Int("frame", e.Frame))
	}
}
