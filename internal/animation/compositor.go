// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"image"

	"golang.org/x/image/draw"
)

// Compositor maintains the visible composite of an animation across
// frames, applying GIF89a disposal semantics. The disposal method that
// is applied before a frame is drawn is that of the previously drawn
// frame, not the incoming frame.
//
// The zero Compositor is not usable; call Reset before compositing.
// Compositor values must not be shared between goroutines.
type Compositor struct {
	// buf is the visible composite.
	buf *image.RGBA
	// snap holds the pixels under prev before the previous
	// frame was drawn. It is only meaningful when snapValid
	// is true.
	snap      *image.RGBA
	snapValid bool

	// prev and prevDisposal describe the most recently
	// drawn frame.
	prev         image.Rectangle
	prevDisposal Disposal

	dirty bool
}

// Reset prepares the compositor for a canvas with the given bounds,
// reusing its buffers when the bounds are unchanged. After Reset the
// composite is fully transparent and the next frame is treated as the
// first of a pass.
func (c *Compositor) Reset(bounds image.Rectangle) {
	if c.buf == nil || c.buf.Rect != bounds {
		c.buf = image.NewRGBA(bounds)
		c.snap = image.NewRGBA(bounds)
	} else {
		clear(c.buf.Pix)
		clear(c.snap.Pix)
	}
	c.Restart()
	c.dirty = true
}

// Restart marks the next frame as the first of a pass. The frame will be
// drawn as if preceded by a frame covering the whole canvas that was
// disposed to the background.
func (c *Compositor) Restart() {
	c.prev = c.buf.Rect
	c.prevDisposal = DisposalRestoreBackground
	c.snapValid = false
}

// Bounds returns the canvas bounds.
func (c *Compositor) Bounds() image.Rectangle {
	if c.buf == nil {
		return image.Rectangle{}
	}
	return c.buf.Rect
}

// Image returns the composite buffer. The returned image is updated in
// place by subsequent calls to Composite.
func (c *Compositor) Image() *image.RGBA {
	return c.buf
}

// TakeDirty reports whether the composite has changed since the last
// call to TakeDirty and clears the flag.
func (c *Compositor) TakeDirty() bool {
	d := c.dirty
	c.dirty = false
	return d
}

// Composite disposes of the previously drawn frame and draws f into the
// composite. If f's rectangle extends beyond the canvas, the frame is
// drawn clipped and a *MalformedFrameError with a negative index is
// returned.
func (c *Compositor) Composite(f Frame) error {
	if want := 4 * f.Rect.Dx() * f.Rect.Dy(); len(f.Patch) != want {
		return &MalformedFrameError{Index: -1, Rect: f.Rect, Bounds: c.buf.Rect, Reason: "patch length does not match rectangle"}
	}
	return c.composite(f.image(), f.Disposal)
}

// composite implements Composite for a validated patch.
func (c *Compositor) composite(patch *image.NRGBA, disposal Disposal) error {
	switch c.prevDisposal {
	case DisposalRestoreBackground:
		draw.Draw(c.buf, c.prev, image.Transparent, image.Point{}, draw.Src)
	case DisposalRestorePrevious:
		if c.snapValid {
			draw.Draw(c.buf, c.prev, c.snap, c.prev.Min, draw.Src)
		} else {
			// Nothing was captured, so there is nothing to
			// restore to other than the background.
			draw.Draw(c.buf, c.prev, image.Transparent, image.Point{}, draw.Src)
		}
	}
	c.snapValid = false

	if patch.Rect.Empty() {
		// A frame with no pixels only carries its disposal
		// and delay.
		c.prev = image.Rectangle{}
		c.prevDisposal = disposal
		c.dirty = true
		return nil
	}

	r := patch.Rect.Intersect(c.buf.Rect)
	if disposal == DisposalRestorePrevious {
		draw.Draw(c.snap, r, c.buf, r.Min, draw.Src)
		c.snapValid = true
	}
	draw.Draw(c.buf, r, patch, r.Min, draw.Over)

	c.prev = r
	c.prevDisposal = disposal
	c.dirty = true

	if r != patch.Rect {
		return &MalformedFrameError{Index: -1, Rect: patch.Rect, Bounds: c.buf.Rect, Reason: "rectangle outside canvas"}
	}
	return nil
}

// Checkpoint is a saved compositor state.
type Checkpoint struct {
	buf, snap    *image.RGBA
	snapValid    bool
	prev         image.Rectangle
	prevDisposal Disposal
}

// Save copies the compositor's state into cp, reusing cp's buffers when
// they match the canvas.
func (c *Compositor) Save(cp *Checkpoint) {
	if cp.buf == nil || cp.buf.Rect != c.buf.Rect {
		cp.buf = image.NewRGBA(c.buf.Rect)
		cp.snap = image.NewRGBA(c.buf.Rect)
	}
	copy(cp.buf.Pix, c.buf.Pix)
	copy(cp.snap.Pix, c.snap.Pix)
	cp.snapValid = c.snapValid
	cp.prev = c.prev
	cp.prevDisposal = c.prevDisposal
}

// Restore returns the compositor to the state held by cp. It reports
// whether cp is compatible with the current canvas; if it is not, the
// compositor is left unchanged.
func (c *Compositor) Restore(cp *Checkpoint) bool {
	if cp.buf == nil || cp.buf.Rect != c.buf.Rect {
		return false
	}
	copy(c.buf.Pix, cp.buf.Pix)
	copy(c.snap.Pix, cp.snap.Pix)
	c.snapValid = cp.snapValid
	c.prev = cp.prev
	c.prevDisposal = cp.prevDisposal
	c.dirty = true
	return true
}
