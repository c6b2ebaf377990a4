// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"
)

// State is a playback state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind is the type of a controller event.
type EventKind int

const (
	// EventUpdated indicates the composite buffer has changed.
	EventUpdated EventKind = iota
	// EventError indicates a recovered or load failure.
	EventError
	// EventLoadCancelled indicates a pending load was superseded.
	EventLoadCancelled
	// EventEnded indicates a non-looping animation has finished.
	EventEnded
)

func (k EventKind) String() string {
	switch k {
	case EventUpdated:
		return "updated"
	case EventError:
		return "error"
	case EventLoadCancelled:
		return "load_cancelled"
	case EventEnded:
		return "ended"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a notification from a Controller.
type Event struct {
	Kind  EventKind
	Frame int
	Err   error
}

// Options configures a Controller.
type Options struct {
	// Autoplay starts playback when a source is loaded.
	Autoplay bool
	// Loop restarts the animation after the last frame.
	Loop bool
	// Policy is the delay policy.
	Policy DelayPolicy
	// MinDelay is the display period for frames without a delay.
	MinDelay time.Duration
	// Resync is the lag threshold for schedule resynchronisation.
	Resync time.Duration
	// CheckpointInterval is the frame interval between saved
	// composite states used to accelerate SetFrame. Zero disables
	// checkpoints.
	CheckpointInterval int

	// Notify is called synchronously with controller events
	// if it is not nil.
	Notify func(Event)
	// Log is the controller's logger. If nil, logging is
	// discarded.
	Log *slog.Logger
}

// DefaultOptions returns the default controller options.
func DefaultOptions() Options {
	return Options{
		Autoplay:           true,
		Loop:               true,
		Policy:             NormalizedDelay,
		MinDelay:           DefaultMinDelay,
		Resync:             DefaultResync,
		CheckpointInterval: 16,
	}
}

// Controller drives an animated texture. It owns a frame store, a
// compositor and a clock and must only be used from a single goroutine,
// with the exception of decodes started by LoadAsync.
type Controller struct {
	opts Options
	log  *slog.Logger

	store *Store
	comp  Compositor
	clock *Clock
	state State

	// shown is the index of the frame currently held
	// in the composite.
	shown int

	// ended is set when a non-looping animation
	// has displayed its final frame for its full
	// display period.
	ended bool

	// checkpoints holds saved composite states indexed
	// by frame.
	checkpoints []*Checkpoint

	loader Loader
}

// NewController returns a new Controller with the provided options.
func NewController(opts Options) *Controller {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		opts: opts,
		log:  log.With(slog.String("component", "animation.controller")),
	}
}

// Load replaces the controller's source with frames, displays the first
// frame and starts playback if Autoplay is set or, for the first load, if
// Play was called before it. If screen is not the zero
// point it is used as the canvas size. If the frames cannot be used, the
// previous source and composite are retained and the error is returned.
func (c *Controller) Load(frames []Frame, screen image.Point) error {
	ctx := context.Background()
	store, err := NewStore(frames, screen)
	if err != nil {
		c.log.LogAttrs(ctx, slog.LevelWarn, "load", slog.Any("error", err))
		c.emit(Event{Kind: EventError, Err: err})
		return err
	}
	c.install(store)
	c.log.LogAttrs(ctx, slog.LevelInfo, "load",
		slog.Int("frames", store.Len()),
		slog.String("size", store.Size().String()),
		slog.String("policy", c.opts.Policy.String()),
	)
	return nil
}

func (c *Controller) install(store *Store) {
	// A Play before the first load is honoured.
	play := c.opts.Autoplay || (c.store == nil && c.state == Playing)
	c.store = store
	c.comp.Reset(store.Bounds())
	c.clock = NewClock(store.Delays(c.opts.Policy, c.opts.MinDelay), c.opts.Loop, c.opts.Resync)
	c.checkpoints = make([]*Checkpoint, store.Len())
	c.shown = 0
	c.ended = false
	c.state = Paused
	c.draw(0)
	c.emit(Event{Kind: EventUpdated, Frame: 0})
	if play {
		c.Play()
	}
}

// LoadAsync starts decoding a new source off the render loop. The decoded
// frames replace the current source on a later call to Tick or
// ApplyPending. A LoadAsync call cancels any decode started by an earlier
// call that has not completed.
func (c *Controller) LoadAsync(ctx context.Context, decode DecodeFunc) {
	if c.loader.Start(ctx, decode) {
		c.log.LogAttrs(ctx, slog.LevelDebug, "load cancelled")
		c.emit(Event{Kind: EventLoadCancelled})
	}
}

// Ready returns a channel that receives when an asynchronous load has
// completed and can be applied with ApplyPending.
func (c *Controller) Ready() <-chan struct{} {
	return c.loader.Ready()
}

// Loading returns whether an asynchronous load is in flight.
func (c *Controller) Loading() bool {
	return c.loader.Busy()
}

// ApplyPending installs the result of a completed asynchronous load. It
// reports whether a new source was installed. If the load failed, the
// current source is retained and the error is returned.
func (c *Controller) ApplyPending() (bool, error) {
	r, ok := c.loader.take()
	if !ok {
		return false, nil
	}
	if r.err != nil {
		c.log.LogAttrs(context.Background(), slog.LevelWarn, "async load", slog.Any("error", r.err))
		c.emit(Event{Kind: EventError, Err: r.err})
		return false, r.err
	}
	err := c.Load(r.frames, r.screen)
	return err == nil, err
}

// Close cancels any pending asynchronous load.
func (c *Controller) Close() {
	if c.loader.Cancel() {
		c.emit(Event{Kind: EventLoadCancelled})
	}
}

// Play starts playback. It is a no-op if the controller is playing.
func (c *Controller) Play() {
	if c.state == Playing {
		return
	}
	c.state = Playing
	if c.clock != nil {
		if c.ended {
			// Replay a finished animation from the start.
			c.ended = false
			c.seek(0)
			c.clock.SetIndex(0)
			c.emit(Event{Kind: EventUpdated, Frame: 0})
		}
		c.clock.Start()
	}
	c.log.LogAttrs(context.Background(), slog.LevelDebug, "play", slog.Int("frame", c.shown))
}

// Pause pauses playback, retaining the current frame. It is a no-op
// unless the controller is playing.
func (c *Controller) Pause() {
	if c.state != Playing {
		return
	}
	c.state = Paused
	if c.clock != nil {
		c.clock.Stop()
	}
	c.log.LogAttrs(context.Background(), slog.LevelDebug, "pause", slog.Int("frame", c.shown))
}

// TogglePlayback pauses a playing controller and plays a paused or
// stopped one.
func (c *Controller) TogglePlayback() {
	if c.state == Playing {
		c.Pause()
	} else {
		c.Play()
	}
}

// Stop stops playback and displays the first frame.
func (c *Controller) Stop() {
	c.state = Stopped
	if c.store == nil {
		return
	}
	c.clock.Stop()
	c.clock.SetIndex(0)
	c.seek(0)
	c.ended = false
	c.emit(Event{Kind: EventUpdated, Frame: 0})
	c.log.LogAttrs(context.Background(), slog.LevelDebug, "stop")
}

// SetFrame displays the i'th frame. The composite is reconstructed by
// replaying frames forward from the nearest available state, which may
// be the first frame. The playback state is unchanged; if playing, the
// frame receives its full display period.
func (c *Controller) SetFrame(i int) error {
	if c.store == nil {
		return &IndexError{Index: i, Len: 0}
	}
	if i < 0 || i >= c.store.Len() {
		err := &IndexError{Index: i, Len: c.store.Len()}
		c.emit(Event{Kind: EventError, Frame: i, Err: err})
		return err
	}
	c.seek(i)
	c.ended = false
	c.clock.SetIndex(i)
	c.emit(Event{Kind: EventUpdated, Frame: i})
	return nil
}

// Tick advances playback to now, installing any completed asynchronous
// load first. It is a no-op for the animation unless the controller is
// playing.
func (c *Controller) Tick(now time.Time) {
	c.ApplyPending()
	if c.state != Playing || c.store == nil {
		return
	}
	advanced, ended := c.clock.Tick(now)
	if ended {
		c.ended = true
		c.state = Paused
		c.clock.Stop()
		c.log.LogAttrs(context.Background(), slog.LevelDebug, "ended", slog.Int("frame", c.shown))
		c.emit(Event{Kind: EventEnded, Frame: c.shown})
		return
	}
	if !advanced {
		return
	}
	target := c.clock.Index()
	if target == c.shown {
		return
	}
	err := c.advance(target)
	if err != nil {
		c.state = Stopped
		c.clock.Stop()
		c.log.LogAttrs(context.Background(), slog.LevelError, "tick", slog.Int("frame", target), slog.Any("error", err))
		c.emit(Event{Kind: EventError, Frame: target, Err: err})
		return
	}
	c.emit(Event{Kind: EventUpdated, Frame: c.shown})
}

// advance composites each frame from the one currently shown up to
// target, wrapping at the end of the sequence.
func (c *Controller) advance(target int) error {
	n := c.store.Len()
	if target < 0 || target >= n {
		return &IndexError{Index: target, Len: n}
	}
	for c.shown != target {
		c.draw((c.shown + 1) % n)
	}
	return nil
}

// seek reconstructs the composite for frame i from the closest state
// available: the current composite when i is ahead of it, a checkpoint,
// or the first frame.
func (c *Controller) seek(i int) {
	if i == c.shown {
		return
	}
	start := -1
	if i > c.shown {
		start = c.shown
	}
	for k := i; k > start && k > 0; k-- {
		cp := c.checkpoints[k]
		if cp != nil && c.comp.Restore(cp) {
			start = k
			c.shown = k
			break
		}
	}
	if start < 0 {
		c.draw(0)
	}
	for c.shown != i {
		c.draw(c.shown + 1)
	}
}

// draw composites frame i over the current composite and records it as
// shown. Clipped frames are reported but are not fatal.
func (c *Controller) draw(i int) {
	if i == 0 {
		c.comp.Restart()
	}
	f := c.store.frames[i]
	err := c.comp.composite(c.store.patch(i), f.Disposal)
	if err != nil {
		var mf *MalformedFrameError
		if errors.As(err, &mf) {
			mf.Index = i
		}
		c.log.LogAttrs(context.Background(), slog.LevelWarn, "composite", slog.Int("frame", i), slog.Any("error", err))
		c.emit(Event{Kind: EventError, Frame: i, Err: err})
	}
	c.shown = i
	if k := c.opts.CheckpointInterval; k > 0 && i != 0 && i%k == 0 && c.checkpoints[i] == nil {
		cp := &Checkpoint{}
		c.comp.Save(cp)
		c.checkpoints[i] = cp
	}
}

func (c *Controller) emit(e Event) {
	if c.opts.Notify != nil {
		c.opts.Notify(e)
	}
}

// Buffer returns the composite buffer. The buffer is updated in place.
// It is nil until a source has been loaded.
func (c *Controller) Buffer() *image.RGBA {
	return c.comp.Image()
}

// TakeDirty reports whether the composite buffer has changed since the
// last call and clears the flag.
func (c *Controller) TakeDirty() bool {
	return c.comp.TakeDirty()
}

// State returns the playback state.
func (c *Controller) State() State {
	return c.state
}

// Index returns the index of the displayed frame.
func (c *Controller) Index() int {
	return c.shown
}

// Len returns the number of frames in the current source, or zero if
// none is loaded.
func (c *Controller) Len() int {
	if c.store == nil {
		return 0
	}
	return c.store.Len()
}

// Clock returns the controller's clock, or nil if no source has been
// loaded.
func (c *Controller) Clock() *Clock {
	return c.clock
}

// Store returns the controller's current frame store, or nil if no source
// has been loaded.
func (c *Controller) Store() *Store {
	return c.store
}
