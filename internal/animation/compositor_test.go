// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var (
	red   = color.NRGBA{R: 0xff, A: 0xff}
	green = color.NRGBA{G: 0xff, A: 0xff}
	blue  = color.NRGBA{B: 0xff, A: 0xff}
	glass = color.NRGBA{R: 0x40, G: 0x80, B: 0xc0, A: 0x80}
)

// solid returns a frame filling r with c.
func solid(r image.Rectangle, c color.NRGBA, d Disposal) Frame {
	p := make([]byte, 4*r.Dx()*r.Dy())
	for i := 0; i < len(p); i += 4 {
		p[i+0] = c.R
		p[i+1] = c.G
		p[i+2] = c.B
		p[i+3] = c.A
	}
	return Frame{Patch: p, Rect: r, Disposal: d, Delay: 100 * time.Millisecond}
}

func premul(c color.NRGBA) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}

// checkRegion checks that every pixel of img in r is want.
func checkRegion(t *testing.T, img *image.RGBA, r image.Rectangle, want color.RGBA) {
	t.Helper()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if got := img.RGBAAt(x, y); got != want {
				t.Errorf("unexpected pixel at (%d,%d): got:%v want:%v", x, y, got, want)
			}
		}
	}
}

func TestCompositorDisposal(t *testing.T) {
	bounds := image.Rect(0, 0, 4, 4)
	topLeft := image.Rect(0, 0, 2, 2)

	t.Run("restore_background", func(t *testing.T) {
		var c Compositor
		c.Reset(bounds)
		for i, f := range []Frame{
			solid(bounds, red, DisposalDoNotDispose),
			solid(topLeft, green, DisposalRestoreBackground),
			solid(image.Rect(0, 0, 1, 1), blue, DisposalDoNotDispose),
		} {
			err := c.Composite(f)
			if err != nil {
				t.Fatalf("unexpected error compositing frame %d: %v", i, err)
			}
		}
		img := c.Image()
		checkRegion(t, img, image.Rect(0, 0, 1, 1), premul(blue))
		checkRegion(t, img, image.Rect(1, 0, 2, 2), color.RGBA{})
		checkRegion(t, img, image.Rect(0, 1, 1, 2), color.RGBA{})
		checkRegion(t, img, image.Rect(2, 0, 4, 4), premul(red))
		checkRegion(t, img, image.Rect(0, 2, 2, 4), premul(red))
	})

	t.Run("incoming_disposal_deferred", func(t *testing.T) {
		var c Compositor
		c.Reset(bounds)
		for i, f := range []Frame{
			solid(bounds, red, DisposalDoNotDispose),
			solid(topLeft, green, DisposalDoNotDispose),
			solid(image.Rect(3, 3, 4, 4), blue, DisposalRestoreBackground),
		} {
			err := c.Composite(f)
			if err != nil {
				t.Fatalf("unexpected error compositing frame %d: %v", i, err)
			}
		}
		img := c.Image()
		checkRegion(t, img, topLeft, premul(green))
		checkRegion(t, img, image.Rect(3, 3, 4, 4), premul(blue))
	})

	t.Run("restart_clears", func(t *testing.T) {
		var c Compositor
		c.Reset(bounds)
		for i, f := range []Frame{
			solid(bounds, red, DisposalDoNotDispose),
			solid(topLeft, glass, DisposalDoNotDispose),
		} {
			err := c.Composite(f)
			if err != nil {
				t.Fatalf("unexpected error compositing frame %d: %v", i, err)
			}
		}
		c.Restart()
		err := c.Composite(solid(topLeft, green, DisposalDoNotDispose))
		if err != nil {
			t.Fatalf("unexpected error compositing after restart: %v", err)
		}
		img := c.Image()
		checkRegion(t, img, topLeft, premul(green))
		checkRegion(t, img, image.Rect(2, 0, 4, 4), color.RGBA{})
	})
}

func TestCompositorRestorePrevious(t *testing.T) {
	bounds := image.Rect(0, 0, 8, 8)
	sub := image.Rect(2, 3, 6, 7)

	var c Compositor
	c.Reset(bounds)
	for i, f := range []Frame{
		solid(bounds, red, DisposalDoNotDispose),
		solid(image.Rect(1, 1, 5, 5), glass, DisposalDoNotDispose),
	} {
		err := c.Composite(f)
		if err != nil {
			t.Fatalf("unexpected error compositing frame %d: %v", i, err)
		}
	}
	before := image.NewRGBA(bounds)
	copy(before.Pix, c.Image().Pix)

	err := c.Composite(solid(sub, glass, DisposalRestorePrevious))
	if err != nil {
		t.Fatalf("unexpected error compositing restore previous frame: %v", err)
	}
	if cmp.Equal(before.Pix, c.Image().Pix) {
		t.Fatal("restore previous frame was not drawn")
	}

	// The next frame does not overlap sub, so only the restoration
	// affects it.
	err = c.Composite(solid(image.Rect(7, 0, 8, 1), blue, DisposalDoNotDispose))
	if err != nil {
		t.Fatalf("unexpected error compositing following frame: %v", err)
	}
	img := c.Image()
	for y := sub.Min.Y; y < sub.Max.Y; y++ {
		for x := sub.Min.X; x < sub.Max.X; x++ {
			if got, want := img.RGBAAt(x, y), before.RGBAAt(x, y); got != want {
				t.Errorf("unexpected pixel at (%d,%d) after restoration: got:%v want:%v", x, y, got, want)
			}
		}
	}
	checkRegion(t, img, image.Rect(7, 0, 8, 1), premul(blue))
}

func TestCompositorClip(t *testing.T) {
	var c Compositor
	c.Reset(image.Rect(0, 0, 4, 4))
	err := c.Composite(solid(image.Rect(2, 2, 6, 6), green, DisposalDoNotDispose))
	var mf *MalformedFrameError
	if !errors.As(err, &mf) {
		t.Fatalf("expected malformed frame error, got: %v", err)
	}
	checkRegion(t, c.Image(), image.Rect(2, 2, 4, 4), premul(green))
	checkRegion(t, c.Image(), image.Rect(0, 0, 2, 4), color.RGBA{})
}

func TestCompositorEmptyFrame(t *testing.T) {
	bounds := image.Rect(0, 0, 4, 4)
	topLeft := image.Rect(0, 0, 2, 2)
	var c Compositor
	c.Reset(bounds)
	for i, f := range []Frame{
		solid(bounds, red, DisposalDoNotDispose),
		solid(topLeft, green, DisposalRestoreBackground),
		{Rect: image.Rect(2, 2, 2, 2), Disposal: DisposalDoNotDispose},
		solid(image.Rect(0, 0, 1, 1), blue, DisposalDoNotDispose),
	} {
		err := c.Composite(f)
		if err != nil {
			t.Fatalf("unexpected error compositing frame %d: %v", i, err)
		}
	}
	img := c.Image()
	checkRegion(t, img, image.Rect(0, 0, 1, 1), premul(blue))
	checkRegion(t, img, image.Rect(1, 0, 2, 2), color.RGBA{})
	checkRegion(t, img, image.Rect(2, 0, 4, 4), premul(red))
}

func TestCompositorPatchLength(t *testing.T) {
	var c Compositor
	c.Reset(image.Rect(0, 0, 4, 4))
	c.TakeDirty()
	f := solid(image.Rect(0, 0, 2, 2), green, DisposalDoNotDispose)
	f.Patch = f.Patch[:8]
	err := c.Composite(f)
	var mf *MalformedFrameError
	if !errors.As(err, &mf) {
		t.Fatalf("expected malformed frame error, got: %v", err)
	}
	if c.TakeDirty() {
		t.Error("composite changed by rejected frame")
	}
}

func TestCompositorCheckpoint(t *testing.T) {
	bounds := image.Rect(0, 0, 4, 4)
	frames := []Frame{
		solid(bounds, red, DisposalDoNotDispose),
		solid(image.Rect(0, 0, 2, 2), green, DisposalRestorePrevious),
		solid(image.Rect(2, 2, 4, 4), blue, DisposalRestoreBackground),
	}

	var want Compositor
	want.Reset(bounds)
	for _, f := range frames {
		want.Composite(f)
	}

	var c Compositor
	c.Reset(bounds)
	c.Composite(frames[0])
	c.Composite(frames[1])
	var cp Checkpoint
	c.Save(&cp)
	c.Composite(frames[2])
	c.Composite(solid(bounds, glass, DisposalDoNotDispose))

	if !c.Restore(&cp) {
		t.Fatal("failed to restore checkpoint")
	}
	c.Composite(frames[2])
	if !cmp.Equal(want.Image().Pix, c.Image().Pix) {
		t.Error("restored composite does not match sequential composite")
	}

	var other Compositor
	other.Reset(image.Rect(0, 0, 2, 2))
	if other.Restore(&cp) {
		t.Error("unexpected restoration of checkpoint to mismatched canvas")
	}
}
