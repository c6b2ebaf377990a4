// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"fmt"
	"time"
)

// DelayPolicy selects how frame display periods are derived from the
// decoded per-frame delays.
type DelayPolicy int

const (
	// NormalizedDelay uses the mean of all frame delays for every
	// frame.
	NormalizedDelay DelayPolicy = iota
	// PerFrameDelay uses each frame's own delay.
	PerFrameDelay
)

func (p DelayPolicy) String() string {
	switch p {
	case NormalizedDelay:
		return "normalized"
	case PerFrameDelay:
		return "per_frame"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseDelayPolicy returns the policy named by s.
func ParseDelayPolicy(s string) (DelayPolicy, error) {
	switch s {
	case "normalized", "":
		return NormalizedDelay, nil
	case "per_frame":
		return PerFrameDelay, nil
	default:
		return 0, fmt.Errorf("unknown delay policy: %q", s)
	}
}

const (
	// DefaultMinDelay is the display period used for frames with
	// a zero delay.
	DefaultMinDelay = 100 * time.Millisecond

	// DefaultResync is the lag behind schedule beyond which the
	// clock abandons its schedule and restarts it from the current
	// time.
	DefaultResync = time.Second
)

// Clock maps host time to a frame index. A Clock is idle until Start is
// called. The first Tick after Start establishes the timing origin and
// never advances the frame.
//
// Clock values must not be shared between goroutines.
type Clock struct {
	delays []time.Duration
	loop   bool
	resync time.Duration

	index   int
	running bool
	started bool
	ended   bool

	origin   time.Time
	deadline time.Time
}

// NewClock returns an idle clock over the provided display periods. If
// loop is false, the clock stops advancing at the last frame. Lags
// greater than resync cause the schedule to be restarted; if resync is
// not positive, DefaultResync is used.
func NewClock(delays []time.Duration, loop bool, resync time.Duration) *Clock {
	if resync <= 0 {
		resync = DefaultResync
	}
	return &Clock{delays: delays, loop: loop, resync: resync}
}

// Start moves the clock into the running state. Timing will be
// re-established on the next call to Tick. Start is a no-op if the
// clock is already running.
func (c *Clock) Start() {
	if c.running {
		return
	}
	c.running = true
	c.started = false
	c.ended = false
}

// Stop moves the clock into the idle state, retaining the current frame
// index and discarding timing.
func (c *Clock) Stop() {
	c.running = false
	c.started = false
}

// Running returns whether the clock is running.
func (c *Clock) Running() bool {
	return c.running
}

// Index returns the current frame index.
func (c *Clock) Index() int {
	return c.index
}

// SetIndex sets the current frame index and discards timing so that the
// frame receives its full display period from the next tick.
func (c *Clock) SetIndex(i int) {
	c.index = i
	c.started = false
	c.ended = false
}

// Origin returns the time at which the current schedule was established.
func (c *Clock) Origin() time.Time {
	return c.origin
}

// Deadline returns the time at which the current frame should be
// replaced. It is only meaningful while the clock is running and has
// been ticked at least once.
func (c *Clock) Deadline() time.Time {
	return c.deadline
}

// Delay returns the display period of the i'th frame.
func (c *Clock) Delay(i int) time.Duration {
	return c.delays[i]
}

// Tick advances the clock to now. It reports whether the current frame
// index changed, and whether a non-looping animation has reached the end
// of its final frame. At most one frame advance happens per call.
func (c *Clock) Tick(now time.Time) (advanced, ended bool) {
	if !c.running || len(c.delays) == 0 {
		return false, false
	}
	if !c.started {
		c.started = true
		c.origin = now
		c.deadline = now.Add(c.delays[c.index])
		return false, false
	}
	if now.Before(c.deadline) {
		return false, false
	}
	next := c.index + 1
	if next == len(c.delays) {
		if !c.loop {
			if !c.ended {
				c.ended = true
				return false, true
			}
			return false, false
		}
		next = 0
	}
	c.index = next
	c.deadline = c.deadline.Add(c.delays[c.index])
	if now.Sub(c.deadline) > c.resync {
		c.deadline = now.Add(c.delays[c.index])
	}
	return true, false
}
