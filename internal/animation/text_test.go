// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"context"
	"image"
	"image/color"
	"testing"
)

var textTests = []struct {
	name       string
	text       string
	rect       image.Rectangle
	wantFrames int
	wantErr    bool
}{
	{
		name:       "small",
		text:       "text",
		rect:       image.Rect(0, 0, 72, 72),
		wantFrames: 1,
	},
	{
		name:       "sentence",
		text:       "Lorem ipsum dolor sit amet, consectetur adipisci elit, sed eiusmod tempor incidunt ut labore et dolore magna aliqua.",
		rect:       image.Rect(0, 0, 72, 72),
		wantFrames: 5*9 - 4 + 116,
	},
	{
		name:       "offset",
		text:       "text",
		rect:       image.Rect(10, 10, 82, 82),
		wantFrames: 1,
	},
	{
		name:    "too_small",
		text:    "text",
		rect:    image.Rect(0, 0, 8, 13),
		wantErr: true,
	},
}

func TestText(t *testing.T) {
	for _, test := range textTests {
		t.Run(test.name, func(t *testing.T) {
			frames, err := Text(test.text).Frames(test.rect, color.White, color.Black)
			if (err != nil) != test.wantErr {
				t.Fatalf("unexpected error: %v", err)
			}
			if err != nil {
				return
			}
			if len(frames) != test.wantFrames {
				t.Errorf("unexpected number of frames: got:%d want:%d", len(frames), test.wantFrames)
			}
			size := test.rect.Size()
			s, err := NewStore(frames, size)
			if err != nil {
				t.Fatalf("unexpected error building store: %v", err)
			}
			for i := 0; i < s.Len(); i++ {
				f, _ := s.Frame(i)
				if f.Rect != (image.Rectangle{Max: size}) {
					t.Errorf("unexpected frame %d rectangle: got:%v want:%v", i, f.Rect, image.Rectangle{Max: size})
				}
				if f.Delay != TextDelay {
					t.Errorf("unexpected frame %d delay: got:%v want:%v", i, f.Delay, TextDelay)
				}
			}
			if !hasInk(frames[0]) {
				t.Error("no text drawn in first frame")
			}
		})
	}
}

func TestTextSource(t *testing.T) {
	frames, screen, err := Text("text").Source(image.Rect(0, 0, 72, 72), color.White, color.Black)(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || screen != (image.Point{X: 72, Y: 72}) {
		t.Errorf("unexpected result: %d frames on %v", len(frames), screen)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = Text("text").Source(image.Rect(0, 0, 72, 72), color.White, color.Black)(ctx)
	if err != context.Canceled {
		t.Errorf("unexpected error: got:%v want:%v", err, context.Canceled)
	}
}

// hasInk returns whether f has any pixel that is not opaque black.
func hasInk(f Frame) bool {
	for i := 0; i < len(f.Patch); i += 4 {
		if f.Patch[i] != 0 || f.Patch[i+1] != 0 || f.Patch[i+2] != 0 {
			return true
		}
	}
	return false
}
