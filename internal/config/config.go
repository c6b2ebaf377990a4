// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config provides animtex configuration loading, vetting and live
// reloading.
package config

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kortschak/animtex/internal/animation"
	"github.com/kortschak/animtex/internal/slogext"
)

// Config is an animtex configuration. Unset fields take their default
// values.
type Config struct {
	// Source is the path to the image or animation to play.
	Source string `json:"source,omitempty" toml:"source"`
	// Text is rendered as the animation when Source is empty.
	Text string `json:"text,omitempty" toml:"text"`

	Autoplay *bool `json:"autoplay,omitempty" toml:"autoplay"`
	Loop     *bool `json:"loop,omitempty" toml:"loop"`
	// DelayPolicy is "normalized" or "per_frame".
	DelayPolicy string `json:"delay_policy,omitempty" toml:"delay_policy"`
	// MinDelay and ResyncThreshold are Go duration strings.
	MinDelay           string `json:"min_delay,omitempty" toml:"min_delay"`
	ResyncThreshold    string `json:"resync_threshold,omitempty" toml:"resync_threshold"`
	CheckpointInterval *int   `json:"checkpoint_interval,omitempty" toml:"checkpoint_interval"`

	LogLevel     string `json:"log_level,omitempty" toml:"log_level"`
	LogAddSource *bool  `json:"log_add_source,omitempty" toml:"log_add_source"`

	Output *Output `json:"output,omitempty" toml:"output"`
}

// Output is the frame output configuration.
type Output struct {
	// Dir is the directory frames are written to.
	Dir string `json:"dir,omitempty" toml:"dir"`
	// Format is the image encoding; "png", "bmp" or "tiff".
	Format string `json:"format,omitempty" toml:"format"`
	// Width and Height are the output image dimensions. If
	// either is zero, the canvas size is used.
	Width  int `json:"width,omitempty" toml:"width"`
	Height int `json:"height,omitempty" toml:"height"`
	// Every is the frame update interval between writes.
	Every int `json:"every,omitempty" toml:"every"`
}

// Schema is the CUE schema for a valid configuration.
const Schema = `
{
	source?:              string
	text?:                string
	autoplay?:            bool
	loop?:                bool
	delay_policy?:        "normalized" | "per_frame"
	min_delay?:           _#duration
	resync_threshold?:    _#duration
	checkpoint_interval?: int & >=0
	log_level?:           "debug" | "info" | "warn" | "error" | "DEBUG" | "INFO" | "WARN" | "ERROR"
	log_add_source?:      bool
	output?:              _#output
}

_#duration: =~ #"^([0-9]+(\.[0-9]*)?(ns|us|µs|ms|s|m|h))+$"#

_#output: {
	dir:     string & !=""
	format?: "png" | "bmp" | "tiff"
	width?:  int & >=0
	height?: int & >=0
	every?:  int & >0
}
`

// Sum is a configuration checksum.
type Sum [sha1.Size]byte

func (s *Sum) Equal(other *Sum) bool {
	if s == nil || other == nil {
		return s == other
	}
	return *s == *other
}

func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

func (s Sum) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// Load reads, decodes and vets the TOML configuration file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and vets a TOML configuration.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	err := toml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}
	_, err = Validate(Schema, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Options returns the controller options described by the configuration,
// starting from [animation.DefaultOptions].
func (c *Config) Options() (animation.Options, error) {
	opts := animation.DefaultOptions()
	if c == nil {
		return opts, nil
	}
	if c.Autoplay != nil {
		opts.Autoplay = *c.Autoplay
	}
	if c.Loop != nil {
		opts.Loop = *c.Loop
	}
	var err error
	opts.Policy, err = animation.ParseDelayPolicy(c.DelayPolicy)
	if err != nil {
		return opts, err
	}
	opts.MinDelay, err = duration(c.MinDelay, opts.MinDelay)
	if err != nil {
		return opts, fmt.Errorf("min_delay: %w", err)
	}
	opts.Resync, err = duration(c.ResyncThreshold, opts.Resync)
	if err != nil {
		return opts, fmt.Errorf("resync_threshold: %w", err)
	}
	if c.CheckpointInterval != nil {
		opts.CheckpointInterval = *c.CheckpointInterval
	}
	return opts, nil
}

func duration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// Level returns the configured logging level.
func (c *Config) Level() (slog.Level, error) {
	if c == nil {
		return slog.LevelInfo, nil
	}
	return slogext.ParseLevel(c.LogLevel)
}

// Equal returns whether c and other describe the same playback. Logging
// and output settings are not considered.
func (c *Config) Equal(other *Config) bool {
	if c == nil || other == nil {
		return c == other
	}
	a, errA := c.Options()
	b, errB := other.Options()
	if errA != nil || errB != nil {
		return false
	}
	return c.Source == other.Source && c.Text == other.Text &&
		a.Autoplay == b.Autoplay && a.Loop == b.Loop &&
		a.Policy == b.Policy && a.MinDelay == b.MinDelay &&
		a.Resync == b.Resync && a.CheckpointInterval == b.CheckpointInterval
}
