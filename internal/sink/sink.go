// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sink provides a file-backed consumer of composited animation
// frames.
package sink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/kortschak/animtex/internal/text"
)

// Format is an image file encoding.
type Format string

const (
	PNG  Format = "png"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

// ParseFormat returns the Format named by s. An empty s is PNG.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return PNG, nil
	case PNG, BMP, TIFF:
		return f, nil
	default:
		return "", fmt.Errorf("unknown image format: %q", s)
	}
}

func (f Format) encode(w io.Writer, img image.Image) error {
	switch f {
	case PNG:
		return png.Encode(w, img)
	case BMP:
		return bmp.Encode(w, img)
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unknown image format: %q", string(f))
	}
}

// Sink writes frames to a directory as numbered image files.
type Sink struct {
	dir    string
	format Format
	size   image.Point
	every  int

	// seen is the number of frames offered.
	seen int
	// written is the number of files written.
	written int

	scaled *image.RGBA

	log *slog.Logger
}

// New returns a Sink writing into dir, creating it if necessary. If size
// is not the zero point, frames are scaled to fit within size, keeping
// their aspect ratio. Only every n'th frame offered is written; every
// values less than one are treated as one.
func New(dir string, format Format, size image.Point, every int, log *slog.Logger) (*Sink, error) {
	if every < 1 {
		every = 1
	}
	if size.X < 0 || size.Y < 0 {
		return nil, fmt.Errorf("invalid output size: %v", size)
	}
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, err
	}
	s := &Sink{
		dir:    dir,
		format: format,
		size:   size,
		every:  every,
		log:    log.With(slog.String("component", "sink")),
	}
	if size != (image.Point{}) {
		s.scaled = image.NewRGBA(image.Rectangle{Max: size})
	}
	return s, nil
}

// Write offers img to the sink, writing it to a new file if it falls on
// the sink's write interval. The frame parameter is used for logging.
// Write reports the path of the written file, or an empty string if the
// frame was skipped.
func (s *Sink) Write(ctx context.Context, img image.Image, frame int) (string, error) {
	n := s.seen
	s.seen++
	if n%s.every != 0 {
		return "", nil
	}
	if s.scaled != nil {
		draw.Draw(s.scaled, s.scaled.Bounds(), image.Transparent, image.Point{}, draw.Src)
		draw.BiLinear.Scale(s.scaled, text.KeepAspectRatio(s.scaled.Bounds(), img.Bounds()), img, img.Bounds(), draw.Src, nil)
		img = s.scaled
	}
	path := filepath.Join(s.dir, fmt.Sprintf("frame-%06d.%s", s.written, s.format))
	err := s.writeFile(path, img)
	if err != nil {
		s.log.LogAttrs(ctx, slog.LevelError, "write", slog.String("path", path), slog.Int("frame", frame), slog.Any("error", err))
		return "", err
	}
	s.written++
	s.log.LogAttrs(ctx, slog.LevelDebug, "write", slog.String("path", path), slog.Int("frame", frame))
	return path, nil
}

func (s *Sink) writeFile(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	err = s.format.encode(w, img)
	if err != nil {
		return err
	}
	return w.Flush()
}

// Written returns the number of files written by the sink.
func (s *Sink) Written() int {
	return s.written
}
