// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"time"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// IsGIF returns whether the data held by r is a GIF image.
func IsGIF(r ReadPeeker) bool {
	return hasMagic("GIF8?a", r)
}

// ReadPeeker is an io.Reader that can also peek n bytes ahead.
type ReadPeeker interface {
	io.Reader
	Peek(n int) ([]byte, error)
}

// AsReadPeeker converts an io.Reader to a ReadPeeker.
func AsReadPeeker(r io.Reader) ReadPeeker {
	if r, ok := r.(ReadPeeker); ok {
		return r
	}
	return bufio.NewReader(r)
}

// hasMagic returns whether r starts with the provided magic bytes.
func hasMagic(magic string, r ReadPeeker) bool {
	b, err := r.Peek(len(magic))
	if err != nil || len(b) != len(magic) {
		return false
	}
	for i, c := range b {
		if magic[i] != c && magic[i] != '?' {
			return false
		}
	}
	return true
}

// Decode decodes an animation from r. GIF data is decoded with DecodeGIF.
// Any other registered image format is decoded as a single frame covering
// the whole canvas.
func Decode(ctx context.Context, r io.Reader) ([]Frame, image.Point, error) {
	rp := AsReadPeeker(r)
	if IsGIF(rp) {
		return DecodeGIF(ctx, rp)
	}
	img, _, err := image.Decode(rp)
	if err != nil {
		return nil, image.Point{}, err
	}
	b := img.Bounds()
	f := toFrame(img, b.Sub(b.Min))
	f.Disposal = DisposalDoNotDispose
	return []Frame{f}, f.Rect.Size(), nil
}

// DecodeGIF returns the frames and logical screen size of the GIF read from
// r. Each frame's patch holds the frame's pixels in non-premultiplied RGBA
// with transparent palette entries mapped to transparent pixels. GIF delays
// are converted from hundredths of a second. Delay and disposal counts are
// checked for consistency with the frame count.
func DecodeGIF(ctx context.Context, r io.Reader) ([]Frame, image.Point, error) {
	g, err := gif.DecodeAll(r)
	if err != nil {
		return nil, image.Point{}, err
	}
	if len(g.Image) == 0 {
		return nil, image.Point{}, ErrEmptySource
	}
	if len(g.Image) != len(g.Delay) && g.Delay != nil {
		return nil, image.Point{}, fmt.Errorf("mismatched image count and delay count: %d != %d", len(g.Image), len(g.Delay))
	}
	if len(g.Image) != len(g.Disposal) && g.Disposal != nil {
		return nil, image.Point{}, fmt.Errorf("mismatched image count and disposal count: %d != %d", len(g.Image), len(g.Disposal))
	}
	frames := make([]Frame, len(g.Image))
	for i, m := range g.Image {
		select {
		case <-ctx.Done():
			return nil, image.Point{}, ctx.Err()
		default:
		}
		frames[i] = toFrame(m, m.Rect)
		if g.Delay != nil {
			frames[i].Delay = 10 * time.Duration(g.Delay[i]) * time.Millisecond
		}
		if g.Disposal != nil {
			frames[i].Disposal = gifDisposal(g.Disposal[i])
		}
	}
	return frames, image.Point{X: g.Config.Width, Y: g.Config.Height}, nil
}

// gifDisposal maps a GIF graphic control extension disposal code to a
// Disposal. Reserved codes are treated as unspecified.
func gifDisposal(d byte) Disposal {
	switch d {
	case gif.DisposalNone:
		return DisposalDoNotDispose
	case gif.DisposalBackground:
		return DisposalRestoreBackground
	case gif.DisposalPrevious:
		return DisposalRestorePrevious
	default:
		return DisposalNone
	}
}

// toFrame converts img to a frame placed at the canvas rectangle at, which
// must have the same size as img's bounds.
func toFrame(img image.Image, at image.Rectangle) Frame {
	dst := image.NewNRGBA(at)
	draw.Draw(dst, at, img, img.Bounds().Min, draw.Src)
	return Frame{Patch: dst.Pix, Rect: at}
}

// FileSource returns a DecodeFunc that decodes the image file at path.
func FileSource(path string) DecodeFunc {
	return func(ctx context.Context) ([]Frame, image.Point, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, image.Point{}, err
		}
		defer f.Close()
		frames, screen, err := Decode(ctx, f)
		if err != nil {
			return nil, image.Point{}, fmt.Errorf("%s: %w", path, err)
		}
		return frames, screen, nil
	}
}
