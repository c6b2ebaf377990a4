// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"fmt"
	"image"
	"log/slog"
	"time"
)

// Disposal is a GIF89a disposal method. The numeric values correspond
// to the graphic control extension disposal codes.
type Disposal byte

const (
	// DisposalNone indicates no disposal was specified. It is treated
	// as DisposalDoNotDispose.
	DisposalNone Disposal = iota
	// DisposalDoNotDispose leaves the frame in place for the next
	// frame to draw over.
	DisposalDoNotDispose
	// DisposalRestoreBackground clears the frame's rectangle to the
	// background once its display period ends.
	DisposalRestoreBackground
	// DisposalRestorePrevious restores the frame's rectangle to the
	// content it covered before it was drawn.
	DisposalRestorePrevious
)

func (d Disposal) String() string {
	switch d {
	case DisposalNone:
		return "none"
	case DisposalDoNotDispose:
		return "do_not_dispose"
	case DisposalRestoreBackground:
		return "restore_background"
	case DisposalRestorePrevious:
		return "restore_previous"
	default:
		return fmt.Sprintf("disposal(%d)", byte(d))
	}
}

// Frame is a single decoded animation frame.
type Frame struct {
	// Patch is the row-major, non-premultiplied RGBA pixel
	// data for the frame's rectangle. Its length must be
	// 4×Rect.Dx()×Rect.Dy().
	Patch []byte
	// Rect is the region of the canvas covered by Patch.
	Rect image.Rectangle
	// Disposal is the treatment of Rect after the frame's
	// display period ends.
	Disposal Disposal
	// Delay is the display period of the frame. A zero
	// Delay is raised to the clock's minimum delay.
	Delay time.Duration
}

// LogValue implements slog.LogValuer.
func (f Frame) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("rect", f.Rect.String()),
		slog.String("disposal", f.Disposal.String()),
		slog.Duration("delay", f.Delay),
	)
}

// image returns an image.NRGBA view of the frame's patch without
// copying the pixel data.
func (f Frame) image() *image.NRGBA {
	return &image.NRGBA{Pix: f.Patch, Stride: 4 * f.Rect.Dx(), Rect: f.Rect}
}

// Store is an immutable sequence of frames sharing a canvas. Store values
// are safe for concurrent use by multiple readers.
type Store struct {
	frames  []Frame
	patches []*image.NRGBA
	bounds  image.Rectangle
}

// NewStore returns a Store holding the provided frames. If screen is not
// the zero point, it is used as the canvas size, otherwise the size of the
// first frame's rectangle is used. The canvas origin is always (0, 0).
// NewStore returns ErrEmptySource if frames is empty and a
// *MalformedFrameError if any frame's patch length does not match its
// rectangle. Frames whose rectangles extend beyond the canvas are accepted
// and are clipped when composited.
//
// The frames slice is copied, but the patch data is not. Callers must not
// modify patch data after the call.
func NewStore(frames []Frame, screen image.Point) (*Store, error) {
	if len(frames) == 0 {
		return nil, ErrEmptySource
	}
	if screen == (image.Point{}) {
		screen = frames[0].Rect.Size()
	}
	s := &Store{
		frames:  make([]Frame, len(frames)),
		patches: make([]*image.NRGBA, len(frames)),
		bounds:  image.Rectangle{Max: screen},
	}
	if s.bounds.Empty() {
		return nil, &MalformedFrameError{Index: 0, Rect: frames[0].Rect, Bounds: s.bounds, Reason: "empty canvas"}
	}
	copy(s.frames, frames)
	for i, f := range s.frames {
		if f.Delay < 0 {
			return nil, &MalformedFrameError{Index: i, Rect: f.Rect, Bounds: s.bounds, Reason: "negative delay"}
		}
		if f.Rect.Empty() {
			if len(f.Patch) != 0 {
				return nil, &MalformedFrameError{Index: i, Rect: f.Rect, Bounds: s.bounds, Reason: "patch data for empty rectangle"}
			}
			s.patches[i] = &image.NRGBA{Rect: f.Rect}
			continue
		}
		if want := 4 * f.Rect.Dx() * f.Rect.Dy(); len(f.Patch) != want {
			return nil, &MalformedFrameError{
				Index:  i,
				Rect:   f.Rect,
				Bounds: s.bounds,
				Reason: fmt.Sprintf("patch length %d does not match rectangle (want %d)", len(f.Patch), want),
			}
		}
		s.patches[i] = f.image()
	}
	return s, nil
}

// Len returns the number of frames in the store.
func (s *Store) Len() int {
	return len(s.frames)
}

// Size returns the canvas dimensions.
func (s *Store) Size() image.Point {
	return s.bounds.Size()
}

// Bounds returns the canvas rectangle.
func (s *Store) Bounds() image.Rectangle {
	return s.bounds
}

// Frame returns the i'th frame. It returns an *IndexError if i is not a
// valid index.
func (s *Store) Frame(i int) (Frame, error) {
	if i < 0 || i >= len(s.frames) {
		return Frame{}, &IndexError{Index: i, Len: len(s.frames)}
	}
	return s.frames[i], nil
}

// patch returns the image view of the i'th frame's patch. i must be
// a valid index.
func (s *Store) patch(i int) *image.NRGBA {
	return s.patches[i]
}

// Delays returns the per-frame display periods under the provided policy.
// Delays less than or equal to zero are raised to floor before the policy
// is applied. If floor is not positive, DefaultMinDelay is used.
func (s *Store) Delays(policy DelayPolicy, floor time.Duration) []time.Duration {
	if floor <= 0 {
		floor = DefaultMinDelay
	}
	delays := make([]time.Duration, len(s.frames))
	var sum time.Duration
	for i, f := range s.frames {
		d := f.Delay
		if d <= 0 {
			d = floor
		}
		delays[i] = d
		sum += d
	}
	if policy == NormalizedDelay {
		mean := sum / time.Duration(len(delays))
		if mean <= 0 {
			mean = floor
		}
		for i := range delays {
			delays[i] = mean
		}
	}
	return delays
}
