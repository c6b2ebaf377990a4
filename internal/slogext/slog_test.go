// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slogext

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONHandlerAddSource(t *testing.T) {
	var buf bytes.Buffer
	addSource := NewAtomicBool(false)
	log := slog.New(GoID{NewJSONHandler(&buf, &HandlerOptions{AddSource: addSource, Level: slog.LevelDebug})})
	log = log.With(slog.String("component", "test"))

	log.LogAttrs(context.Background(), slog.LevelDebug, "without")
	addSource.Store(true)
	log.LogAttrs(context.Background(), slog.LevelDebug, "with")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected number of log lines: got:%d want:2\n%s", len(lines), &buf)
	}
	for i, want := range []bool{false, true} {
		var rec map[string]any
		err := json.Unmarshal([]byte(lines[i]), &rec)
		if err != nil {
			t.Fatalf("unexpected error unmarshaling log line: %v", err)
		}
		if _, ok := rec[slog.SourceKey]; ok != want {
			t.Errorf("unexpected source presence for line %d: got:%t want:%t", i, ok, want)
		}
		if _, ok := rec["goid"]; !ok {
			t.Errorf("missing goid in line %d", i)
		}
		if rec["component"] != "test" {
			t.Errorf("unexpected component in line %d: %v", i, rec["component"])
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, test := range []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "WARN", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", wantErr: true},
	} {
		got, err := ParseLevel(test.in)
		if (err != nil) != test.wantErr {
			t.Errorf("unexpected error for %q: %v", test.in, err)
			continue
		}
		if err == nil && got != test.want {
			t.Errorf("unexpected level for %q: got:%v want:%v", test.in, got, test.want)
		}
	}
}
