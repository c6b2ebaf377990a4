// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font/basicfont"

	"github.com/kortschak/animtex/internal/text"
)

// TextDelay is the display period of each frame of a scrolling Text.
const TextDelay = 150 * time.Millisecond

// Text is a text animation source.
type Text string

// Frames returns the frames required to present the full length of the
// receiver within the given bounds using [basicfont.Face7x13] drawn in fg
// over bg. Text that fits within the bounds is presented centered and word
// wrapped as a single frame. Longer text scrolls one character per frame.
func (t Text) Frames(bound image.Rectangle, fg, bg color.Color) ([]Frame, error) {
	bound = bound.Sub(bound.Min)
	rows, cols := text.Size(bound, basicfont.Face7x13)
	s := string(t)
	if text.Fits(s, rows, cols) {
		return []Frame{t.frame(bound, s, fg, bg, 0.5, true)}, nil
	}
	if rows*cols < 4 {
		return nil, errors.New("bound too small")
	}
	s = strings.Repeat(" ", rows*cols-4) + s
	frames := make([]Frame, 0, len(s))
	for i := range s {
		frames = append(frames, t.frame(bound, s[i:], fg, bg, 0, false))
	}
	return frames, nil
}

func (Text) frame(bound image.Rectangle, s string, fg, bg color.Color, pos float64, words bool) Frame {
	dst := image.NewNRGBA(bound)
	draw.Draw(dst, bound, &image.Uniform{bg}, image.Point{}, draw.Src)
	text.Draw(dst, s, fg, basicfont.Face7x13, pos, pos, words)
	return Frame{
		Patch:    dst.Pix,
		Rect:     bound,
		Disposal: DisposalDoNotDispose,
		Delay:    TextDelay,
	}
}

// Source returns a DecodeFunc that renders the receiver with Frames.
func (t Text) Source(bound image.Rectangle, fg, bg color.Color) DecodeFunc {
	return func(ctx context.Context) ([]Frame, image.Point, error) {
		if err := ctx.Err(); err != nil {
			return nil, image.Point{}, err
		}
		frames, err := t.Frames(bound, fg, bg)
		if err != nil {
			return nil, image.Point{}, err
		}
		return frames, bound.Size(), nil
	}
}
