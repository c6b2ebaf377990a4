// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The animtex executable plays an animated GIF, still image or scrolling
// text as a texture, writing composited frames to a directory and
// accepting playback control over JSON RPC.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/kortschak/animtex/internal/config"
	"github.com/kortschak/animtex/internal/control"
	"github.com/kortschak/animtex/internal/slogext"
	"github.com/kortschak/animtex/internal/state"
	"github.com/kortschak/animtex/internal/version"
	"github.com/kortschak/animtex/internal/xdg"
)

// Exit status codes.
const (
	success       = 0
	internalError = 1 << (iota - 1)
	invocationError
)

const app = "animtex"

func main() { os.Exit(Main()) }

func Main() int {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `Usage of %[1]s:
  %[1]s [options]
  %[1]s -ctl <addr> play|pause|toggle|stop|state|seek <frame>

`, app)
		flag.PrintDefaults()
	}
	cfgPath := flag.String("config", "", "path to a TOML configuration file (default from the XDG config directory)")
	source := flag.String("source", "", "image or animation file to play")
	txt := flag.String("text", "", "text to play when no source is given")
	out := flag.String("out", "", "directory to write composited frames to")
	format := flag.String("format", "", "frame output format (png, bmp or tiff)")
	every := flag.Int("every", 0, "write every n'th updated frame")
	fps := flag.Int("fps", 60, "render tick rate")
	duration := flag.Duration("duration", 0, "play for the given duration and exit (zero plays until interrupted)")
	statePath := flag.String("state", "", `playback position database (default from the XDG state directory, "none" disables persistence)`)
	positions := flag.Bool("positions", false, "print saved playback positions and exit")
	network := flag.String("network", "unix", "network for control (unix or tcp)")
	listen := flag.String("listen", "", `control server address ("auto" uses a unix socket in the XDG runtime directory)`)
	ctl := flag.String("ctl", "", "send a control command to the server at the given address and exit")
	logging := flag.String("log", "info", "logging level (debug, info, warn or error)")
	lines := flag.Bool("lines", false, "display source line details in logs")
	v := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *v {
		err := version.Print(os.Stdout)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return internalError
		}
		return success
	}

	if *ctl != "" {
		addr, err := controlAddr(*network, *ctl)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return invocationError
		}
		return command(*network, addr, flag.Args())
	}
	if flag.NArg() != 0 {
		flag.Usage()
		return invocationError
	}

	var level slog.LevelVar
	err := level.UnmarshalText([]byte(*logging))
	if err != nil {
		flag.Usage()
		return invocationError
	}
	addSource := slogext.NewAtomicBool(*lines)
	log := slog.New(slogext.GoID{Handler: slogext.NewJSONHandler(os.Stderr, &slogext.HandlerOptions{
		Level:     &level,
		AddSource: addSource,
	})})
	mlog := log.With(slog.String("component", "animtex.main"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		mlog.LogAttrs(ctx, slog.LevelInfo, "terminating")
		cancel()
	}()

	db, unlock, err := openState(ctx, *statePath, mlog, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return internalError
	}
	if db != nil {
		defer func() {
			db.Close()
			unlock()
		}()
	}
	if *positions {
		if db == nil {
			fmt.Fprintln(os.Stderr, "no state database")
			return invocationError
		}
		return printPositions(db)
	}

	if *cfgPath == "" {
		path, err := xdg.Config(app, app+".toml", false)
		if err == nil {
			*cfgPath = path
		}
	}
	cfg := &config.Config{}
	if *cfgPath != "" {
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			return invocationError
		}
		mlog.LogAttrs(ctx, slog.LevelInfo, "config", slog.String("path", *cfgPath))
	}
	overrides := flags{
		source: *source,
		text:   *txt,
		out:    *out,
		format: *format,
		every:  *every,
	}
	cfg = overrides.apply(cfg)
	if cfg.LogLevel != "" && !isSet("log") {
		l, err := cfg.Level()
		if err == nil {
			level.Set(l)
		}
	}
	if cfg.LogAddSource != nil && !isSet("lines") {
		addSource.Store(*cfg.LogAddSource)
	}
	if cfg.Source == "" && cfg.Text == "" {
		fmt.Fprintln(os.Stderr, "no source: one of -source, -text or a configured source is required")
		flag.Usage()
		return invocationError
	}
	if *fps <= 0 {
		fmt.Fprintln(os.Stderr, "invalid -fps: must be positive")
		return invocationError
	}

	p, err := newPlayer(cfg, overrides, db, &level, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return invocationError
	}
	err = p.load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load source: %v\n", err)
		return internalError
	}

	var commands chan control.Command
	if *listen != "" {
		addr, err := controlAddr(*network, *listen)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return invocationError
		}
		commands = make(chan control.Command)
		srv, err := control.NewServer(ctx, *network, addr, commands, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start control server: %v\n", err)
			return internalError
		}
		defer srv.Close()
		mlog.LogAttrs(ctx, slog.LevelInfo, "control", slog.String("network", *network), slog.Any("addr", slogext.Stringer{Stringer: srv.Addr()}))
	}

	changes := make(chan config.Change)
	watcher, err := config.NewWatcher(*cfgPath, []string{cfg.Source}, changes, -1, log)
	if err != nil {
		mlog.LogAttrs(ctx, slog.LevelWarn, "failed to start watcher", slog.Any("error", err))
		changes = nil
	} else {
		defer watcher.Close()
		go watcher.Watch(ctx)
	}

	if *duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, *duration)
		defer stop()
	}
	err = p.run(ctx, time.Second/time.Duration(*fps), commands, changes, watcher)
	if err != nil {
		mlog.LogAttrs(ctx, slog.LevelError, "run", slog.Any("error", err))
		return internalError
	}
	return success
}

// controlAddr resolves the control address. The address "auto" is the
// animtex socket in the XDG runtime directory.
func controlAddr(network, addr string) (string, error) {
	if addr != "auto" {
		return addr, nil
	}
	if network != "unix" {
		return "", fmt.Errorf("auto address requires unix network: %s", network)
	}
	path, err := xdg.RuntimePath(app, app+".sock")
	if err != nil {
		return "", fmt.Errorf("no runtime directory for control socket: %w", err)
	}
	return path, nil
}

// isSet returns whether the named flag was set on the command line.
func isSet(name string) bool {
	var set bool
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// flags holds command line settings that override the configuration file.
type flags struct {
	source, text string
	out, format  string
	every        int
}

// apply returns a copy of cfg with the non-zero flag values applied.
func (f flags) apply(cfg *config.Config) *config.Config {
	c := *cfg
	if f.source != "" {
		c.Source = f.source
		c.Text = ""
	}
	if f.text != "" && f.source == "" {
		c.Text = f.text
		c.Source = ""
	}
	if f.out != "" || f.format != "" || f.every != 0 {
		var o config.Output
		if c.Output != nil {
			o = *c.Output
		}
		if f.out != "" {
			o.Dir = f.out
		}
		if f.format != "" {
			o.Format = f.format
		}
		if f.every != 0 {
			o.Every = f.every
		}
		c.Output = &o
	}
	return &c
}

// openState opens the playback position database at path, taking an
// exclusive lock on it. An empty path uses the XDG state directory; if
// that is not available persistence is disabled. The path "none" disables
// persistence.
func openState(ctx context.Context, path string, mlog, log *slog.Logger) (*state.DB, func(), error) {
	switch path {
	case "none":
		return nil, nil, nil
	case "":
		var err error
		path, err = xdg.StatePath(app, "state.sqlite3")
		if err != nil {
			mlog.LogAttrs(ctx, slog.LevelWarn, "no state directory: positions will not be saved", slog.Any("error", err))
			return nil, nil, nil
		}
	}
	lockPath := path + ".lock"
	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%s is already running with state %s", app, path)
	}
	unlock := func() {
		fl.Unlock()
		os.Remove(lockPath)
	}
	db, err := state.Open(path, log)
	if err != nil {
		unlock()
		return nil, nil, fmt.Errorf("failed to open state: %w", err)
	}
	mlog.LogAttrs(ctx, slog.LevelInfo, "state", slog.String("path", path))
	return db, unlock, nil
}

func printPositions(db *state.DB) int {
	positions, err := db.Dump()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return internalError
	}
	enc := json.NewEncoder(os.Stdout)
	for _, p := range positions {
		err = enc.Encode(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return internalError
		}
	}
	return success
}

// command sends a single control command to the server at addr and prints
// the resulting status.
func command(network, addr string, args []string) int {
	if len(args) == 0 {
		flag.Usage()
		return invocationError
	}
	method := args[0]
	var params any = control.None{}
	switch method {
	case control.Play, control.Pause, control.Toggle, control.Stop, control.State:
		if len(args) != 1 {
			flag.Usage()
			return invocationError
		}
	case control.Seek:
		if len(args) != 2 {
			flag.Usage()
			return invocationError
		}
		i, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid frame: %v\n", err)
			return invocationError
		}
		params = control.Frame{Frame: i}
	default:
		fmt.Fprintf(os.Stderr, "unknown control command: %q\n", method)
		return invocationError
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if network == "unix" {
		addr = filepath.Clean(addr)
	}
	client, err := control.Dial(ctx, network, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		return internalError
	}
	defer client.Close()
	status, err := client.Call(ctx, method, params)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return internalError
	}
	b, err := json.Marshal(status)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return internalError
	}
	fmt.Println(string(b))
	return success
}
