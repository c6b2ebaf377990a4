// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package text provides functions for rendering [basicfont.Face] fonts to
// an image.
package text

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/bbrks/wrap/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Size returns the size, in font rows and columns, of the bounding rectangle.
func Size(bound image.Rectangle, fnt *basicfont.Face) (rows, cols int) {
	rows = bound.Dy() / fnt.Height
	cols = bound.Dx() / (fnt.Width + 1)
	return rows, cols
}

// Fits returns whether s can be presented within rows and cols without
// truncation when wrapped at word boundaries.
func Fits(s string, rows, cols int) bool {
	if rows <= 0 || cols <= 0 {
		return false
	}
	lines := Lines(s, cols, true)
	return len(lines) <= rows
}

// Lines splits s into lines of at most cols runes. If words is true, lines
// are broken at word boundaries where possible and surrounding space is
// trimmed from each line.
func Lines(s string, cols int, words bool) []string {
	if cols <= 0 {
		return nil
	}
	if words {
		wrapper := wrap.NewWrapper()
		wrapper.StripTrailingNewline = true
		wrapper.CutLongWords = true
		lines := strings.Split(wrapper.Wrap(s, cols), "\n")
		if len(lines) < 2 || lines[0] != "" {
			for i, l := range lines {
				lines[i] = strings.TrimSpace(l)
			}
		}
		return lines
	}
	var lines []string
	for t := []rune(s); len(t) != 0; {
		n := min(cols, len(t))
		lines = append(lines, string(t[:n]))
		t = t[n:]
	}
	return lines
}

// KeepAspectRatio returns a draw rectangle that can be used in a call to
// a draw.Scaler to maintain the src aspect ratio in the dst image. The
// returned rectangle is centered within dst's bounds.
//
//	draw.BiLinear.Scale(dst, KeepAspectRatio(dst.Bounds(), src.Bounds()), src, src.Bounds(), op, opts)
func KeepAspectRatio(dst, src image.Rectangle) image.Rectangle {
	sx, sy := src.Dx(), src.Dy()
	bx, by := dst.Dx(), dst.Dy()
	if sx == 0 || sy == 0 || bx == 0 || by == 0 {
		return image.Rectangle{Min: dst.Min, Max: dst.Min}
	}
	dx, dy := bx, sy*bx/sx
	if dy > by {
		dx, dy = sx*by/sy, by
	}
	offset := dst.Min.Add(image.Point{X: (bx - dx) / 2, Y: (by - dy) / 2})
	return image.Rectangle{Max: image.Point{X: dx, Y: dy}}.Add(offset)
}

// Draw draws the provided text to the destination in the provided color.
// Relative position of the text is specified by dx and dy which must be
// in the range [0, 1]. If words is true, text spanning lines will be broken
// at word boundaries where possible. Text that does not fit is truncated
// with an ellipsis.
func Draw(dst draw.Image, text string, col color.Color, fnt *basicfont.Face, dx, dy float64, words bool) {
	rows, cols := Size(dst.Bounds(), fnt)
	if rows == 0 || cols == 0 {
		return
	}

	lines := Lines(text, cols, words)
	if len(lines) > rows {
		const ellipsis = "..."
		lines = lines[:rows]
		last := []rune(lines[rows-1])
		if len(last) > cols-len(ellipsis) {
			last = last[:max(cols-len(ellipsis), 0)]
		}
		lines[rows-1] = string(last) + ellipsis
	}

	origin := dst.Bounds().Min
	if dx != 0 || dy != 0 {
		var ink inkBounds
		for i, l := range lines {
			ink.add(l, fnt, dot(origin, fnt, i))
		}
		origin = origin.Add(ink.offset(dst.Bounds(), dx, dy))
	}
	fg := &image.Uniform{col}
	for i, l := range lines {
		d := font.Drawer{Dst: dst, Src: fg, Face: fnt, Dot: dot(origin, fnt, i)}
		d.DrawString(l)
	}
}

// dot returns the baseline origin of the i'th line of text.
func dot(origin image.Point, fnt *basicfont.Face, i int) fixed.Point26_6 {
	return fixed.P(origin.X, origin.Y+fnt.Ascent+fnt.Height*i)
}

// inkBounds accumulates the pixel bounds of rendered glyphs.
type inkBounds struct {
	r   image.Rectangle
	set bool
}

func (b *inkBounds) add(s string, fnt font.Face, dot fixed.Point26_6) {
	prev := rune(-1)
	for _, c := range s {
		if prev >= 0 {
			dot.X += fnt.Kern(prev, c)
		}
		dr, _, _, advance, ok := fnt.Glyph(dot, c)
		if !ok {
			continue
		}
		if b.set {
			b.r = b.r.Union(dr)
		} else {
			b.r, b.set = dr, true
		}
		dot.X += advance
		prev = c
	}
}

// offset returns the translation that places the ink at the relative
// position (dx, dy) within bound.
func (b *inkBounds) offset(bound image.Rectangle, dx, dy float64) image.Point {
	if !b.set {
		return image.Point{}
	}
	d := bound.Max.Sub(b.r.Max)
	return image.Point{X: int(float64(d.X) * dx), Y: int(float64(d.Y) * dy)}
}
