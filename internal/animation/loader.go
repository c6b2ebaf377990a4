// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"context"
	"image"
	"sync"
)

// DecodeFunc decodes a source into frames and an optional logical screen
// size. Implementations should return promptly when ctx is cancelled.
type DecodeFunc func(ctx context.Context) ([]Frame, image.Point, error)

// Loader runs decodes off the render loop. Only the result of the most
// recently started decode is retained; starting a new decode cancels any
// decode still in flight.
type Loader struct {
	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	pending *loadResult
	ready   chan struct{}
}

type loadResult struct {
	frames []Frame
	screen image.Point
	err    error
}

// Start begins decoding with decode in a new goroutine. It reports whether
// an earlier decode was cancelled while in flight or its completed result
// was discarded before being taken.
func (l *Loader) Start(ctx context.Context, decode DecodeFunc) (cancelled bool) {
	ctx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	if l.ready == nil {
		l.ready = make(chan struct{}, 1)
	}
	if l.cancel != nil {
		l.cancel()
		cancelled = true
	}
	if l.discard() {
		cancelled = true
	}
	l.gen++
	gen := l.gen
	l.cancel = cancel
	l.mu.Unlock()

	go func() {
		defer cancel()
		frames, screen, err := decode(ctx)
		l.mu.Lock()
		defer l.mu.Unlock()
		if gen != l.gen {
			return
		}
		l.cancel = nil
		l.pending = &loadResult{frames: frames, screen: screen, err: err}
		select {
		case l.ready <- struct{}{}:
		default:
		}
	}()
	return cancelled
}

// Ready returns a channel that receives a value when a decode completes.
func (l *Loader) Ready() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready == nil {
		l.ready = make(chan struct{}, 1)
	}
	return l.ready
}

// Busy returns whether a decode is in flight.
func (l *Loader) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// take returns the completed decode result, if any, removing it from the
// loader.
func (l *Loader) take() (*loadResult, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.pending
	l.pending = nil
	return r, r != nil
}

// Cancel cancels any decode in flight and discards any result that has
// not been taken. It reports whether a decode was cancelled or a result
// discarded.
func (l *Loader) Cancel() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	discarded := l.discard()
	if l.cancel == nil {
		return discarded
	}
	l.cancel()
	l.cancel = nil
	return true
}

// discard drops a completed result that has not been taken along with its
// ready notification. It must be called with l.mu held.
func (l *Loader) discard() bool {
	if l.pending == nil {
		return false
	}
	l.pending = nil
	select {
	case <-l.ready:
	default:
	}
	return true
}
