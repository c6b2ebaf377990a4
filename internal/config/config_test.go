// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kortschak/animtex/internal/animation"
)

var (
	verbose = flag.Bool("verbose_log", false, "print full logging")
	lines   = flag.Bool("show_lines", false, "log source code position")
)

func ptr[T any](v T) *T { return &v }

var parseTests = []struct {
	name    string
	toml    string
	want    *Config
	wantErr bool
}{
	{
		name: "empty",
		toml: ``,
		want: &Config{},
	},
	{
		name: "full",
		toml: `source = "spinner.gif"
autoplay = false
loop = true
delay_policy = "per_frame"
min_delay = "20ms"
resync_threshold = "1.5s"
checkpoint_interval = 8
log_level = "debug"

[output]
dir = "frames"
format = "bmp"
width = 64
height = 32
every = 2
`,
		want: &Config{
			Source:             "spinner.gif",
			Autoplay:           ptr(false),
			Loop:               ptr(true),
			DelayPolicy:        "per_frame",
			MinDelay:           "20ms",
			ResyncThreshold:    "1.5s",
			CheckpointInterval: ptr(8),
			LogLevel:           "debug",
			Output: &Output{
				Dir:    "frames",
				Format: "bmp",
				Width:  64,
				Height: 32,
				Every:  2,
			},
		},
	},
	{
		name: "text",
		toml: `text = "hello, world"`,
		want: &Config{Text: "hello, world"},
	},
	{
		name:    "bad_policy",
		toml:    `delay_policy = "average"`,
		wantErr: true,
	},
	{
		name:    "bad_duration",
		toml:    `min_delay = "10 parsecs"`,
		wantErr: true,
	},
	{
		name:    "bad_format",
		toml:    "[output]\ndir = \"frames\"\nformat = \"jpeg\"\n",
		wantErr: true,
	},
	{
		name:    "bad_toml",
		toml:    `source = `,
		wantErr: true,
	},
}

func TestParse(t *testing.T) {
	for _, test := range parseTests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Parse([]byte(test.toml))
			if (err != nil) != test.wantErr {
				t.Fatalf("unexpected error: %v", err)
			}
			if !cmp.Equal(test.want, got) {
				t.Errorf("unexpected config:\n--- want:\n+++ got:\n%s", cmp.Diff(test.want, got))
			}
		})
	}
}

var validateTests = []struct {
	name      string
	config    *Config
	wantPaths [][]string
	wantErr   bool
}{
	{
		name:   "valid",
		config: &Config{Source: "a.gif", DelayPolicy: "normalized", MinDelay: "100ms"},
	},
	{
		name:      "policy",
		config:    &Config{DelayPolicy: "average"},
		wantPaths: [][]string{{"delay_policy"}},
		wantErr:   true,
	},
	{
		name:      "duration",
		config:    &Config{ResyncThreshold: "soon"},
		wantPaths: [][]string{{"resync_threshold"}},
		wantErr:   true,
	},
	{
		name:      "negative_interval",
		config:    &Config{CheckpointInterval: ptr(-1)},
		wantPaths: [][]string{{"checkpoint_interval"}},
		wantErr:   true,
	},
	{
		name:      "output_without_dir",
		config:    &Config{Output: &Output{Format: "png"}},
		wantPaths: [][]string{{"output", "dir"}},
		wantErr:   true,
	},
}

func TestValidate(t *testing.T) {
	for _, test := range validateTests {
		t.Run(test.name, func(t *testing.T) {
			paths, err := Validate(Schema, test.config)
			if (err != nil) != test.wantErr {
				t.Errorf("unexpected error: %v", err)
			}
			if !cmp.Equal(test.wantPaths, paths) {
				t.Errorf("unexpected paths:\n--- want:\n+++ got:\n%s", cmp.Diff(test.wantPaths, paths))
			}
		})
	}
}

func TestOptions(t *testing.T) {
	var nilConfig *Config
	got, err := nilConfig.Options()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cmp.Equal(got, animation.DefaultOptions()) {
		t.Errorf("unexpected default options:\n--- want:\n+++ got:\n%s", cmp.Diff(animation.DefaultOptions(), got))
	}

	cfg := &Config{
		Autoplay:           ptr(false),
		Loop:               ptr(false),
		DelayPolicy:        "per_frame",
		MinDelay:           "20ms",
		ResyncThreshold:    "2s",
		CheckpointInterval: ptr(0),
	}
	got, err = cfg.Options()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := animation.Options{
		Autoplay:           false,
		Loop:               false,
		Policy:             animation.PerFrameDelay,
		MinDelay:           20 * time.Millisecond,
		Resync:             2 * time.Second,
		CheckpointInterval: 0,
	}
	if !cmp.Equal(got, want) {
		t.Errorf("unexpected options:\n--- want:\n+++ got:\n%s", cmp.Diff(want, got))
	}

	_, err = (&Config{MinDelay: "soon"}).Options()
	if err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLevel(t *testing.T) {
	level, err := (&Config{LogLevel: "warn"}).Level()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != slog.LevelWarn {
		t.Errorf("unexpected level: got:%v want:%v", level, slog.LevelWarn)
	}
}

func TestEqual(t *testing.T) {
	a := &Config{Source: "a.gif", DelayPolicy: "normalized", LogLevel: "debug"}
	b := &Config{Source: "a.gif", Autoplay: ptr(true), MinDelay: "100ms"}
	if !a.Equal(b) {
		t.Error("expected configurations with equal effect to be equal")
	}
	c := &Config{Source: "a.gif", DelayPolicy: "per_frame"}
	if a.Equal(c) {
		t.Error("expected configurations with different policies to differ")
	}
	if a.Equal(nil) {
		t.Error("expected configuration to differ from nil")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "animtex.toml")
	err := os.WriteFile(path, []byte(`source = "a.gif"`), 0o644)
	if err != nil {
		t.Fatalf("unexpected error writing config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}
	if cfg.Source != "a.gif" {
		t.Errorf("unexpected source: got:%q want:%q", cfg.Source, "a.gif")
	}
	_, err = Load(filepath.Join(dir, "missing.toml"))
	if !os.IsNotExist(err) {
		t.Errorf("unexpected error for missing file: %v", err)
	}
}

var sumTests = []struct {
	a, b *Sum
	want bool
}{
	{a: nil, b: nil, want: true},
	{a: nil, b: &Sum{}, want: false},
	{a: &Sum{}, b: nil, want: false},
	{a: &Sum{}, b: &Sum{}, want: true},
	{a: &Sum{0: 1}, b: &Sum{}, want: false},
}

func TestSum(t *testing.T) {
	for _, test := range sumTests {
		got := test.a.Equal(test.b)
		if got != test.want {
			t.Errorf("unexpected result for %v.Equal(%v): got:%t want:%t", test.a, test.b, got, test.want)
		}
	}
}
