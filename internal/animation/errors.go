// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrEmptySource is returned when a source has no frames.
	ErrEmptySource = errors.New("empty source")

	// ErrIndexOutOfRange is wrapped by *IndexError.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrNoSource is returned by operations that require a loaded
	// source when none is available.
	ErrNoSource = errors.New("no source loaded")
)

// IndexError is returned when a frame index is not valid for a store.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("frame index %d out of range [0,%d)", e.Index, e.Len)
}

func (e *IndexError) Unwrap() error {
	return ErrIndexOutOfRange
}

// MalformedFrameError is returned when a frame's geometry or pixel data
// is not consistent with its canvas. When it is returned by
// Compositor.Composite, the frame has been drawn clipped to the canvas.
type MalformedFrameError struct {
	Index  int
	Rect   image.Rectangle
	Bounds image.Rectangle
	Reason string
}

func (e *MalformedFrameError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("malformed frame %v in canvas %v: %s", e.Rect, e.Bounds, e.Reason)
	}
	return fmt.Sprintf("malformed frame %d %v in canvas %v: %s", e.Index, e.Rect, e.Bounds, e.Reason)
}
