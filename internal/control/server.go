// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/kortschak/jsonrpc2"

	"github.com/kortschak/animtex/internal/animation"
	"github.com/kortschak/animtex/internal/slogext"
)

// Command is a control request forwarded to the render loop. The render
// loop must send exactly one Reply on Reply for each Command it receives.
// Reply is buffered, so sending never blocks.
type Command struct {
	Method string
	// Frame is the target frame for Seek.
	Frame int
	Reply chan<- Reply
}

func (c Command) LogValue() slog.Value {
	if c.Method == Seek {
		return slog.GroupValue(slog.String("method", c.Method), slog.Int("frame", c.Frame))
	}
	return slog.GroupValue(slog.String("method", c.Method))
}

// Reply is the render loop's response to a Command.
type Reply struct {
	Status Status
	Err    error
}

// Server is a JSON RPC 2 control server. It does not touch the animation
// itself; each request is passed to the render loop as a Command.
type Server struct {
	listener *netListener
	server   *jsonrpc2.Server
	commands chan<- Command

	closeOnce sync.Once
	done      chan struct{}

	log *slog.Logger
}

// NewServer returns a new Server listening on the provided network and
// address. The network may be either "unix" or "tcp". Requests are sent
// to the render loop on commands.
func NewServer(ctx context.Context, network, addr string, commands chan<- Command, log *slog.Logger) (*Server, error) {
	s := Server{
		commands: commands,
		done:     make(chan struct{}),
		log:      log.With(slog.String("component", "control")),
	}
	var err error
	s.listener, err = newNetListener(ctx, network, addr, jsonrpc2.NetListenOptions{})
	if err != nil {
		return nil, err
	}
	s.server = jsonrpc2.NewServer(ctx, s.listener, &s)
	s.log.LogAttrs(ctx, slog.LevelDebug, "new server", slog.String("network", network), slog.Any("addr", slogext.Stringer{Stringer: s.listener.Addr()}))
	return &s, nil
}

// Addr returns the listener address of the server.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Bind binds the server's handler to a connection.
func (s *Server) Bind(ctx context.Context, conn *jsonrpc2.Connection) jsonrpc2.ConnectionOptions {
	s.log.LogAttrs(ctx, slog.LevelDebug, "binding")
	return jsonrpc2.ConnectionOptions{
		Handler: s,
	}
}

// Handle is the server's message handler.
func (s *Server) Handle(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	s.log.LogAttrs(ctx, slog.LevelDebug, "handle", slog.Any("req", slogext.Request{Request: req}))

	var cmd Command
	switch req.Method {
	case Play, Pause, Toggle, Stop, State:
		var p None
		err := Unmarshal(req.Params, &p)
		if err != nil {
			s.log.LogAttrs(ctx, slog.LevelError, req.Method, slog.Any("error", err))
			return nil, err
		}
		cmd = Command{Method: req.Method}

	case Seek:
		var p Frame
		err := Unmarshal(req.Params, &p)
		if err != nil {
			s.log.LogAttrs(ctx, slog.LevelError, req.Method, slog.Any("error", err))
			return nil, err
		}
		cmd = Command{Method: req.Method, Frame: p.Frame}

	default:
		return nil, jsonrpc2.ErrNotHandled
	}

	status, err := s.do(ctx, cmd)
	if err != nil {
		s.log.LogAttrs(ctx, slog.LevelWarn, req.Method, slog.Any("command", cmd), slog.Any("error", err))
		err = wireError(err)
	}
	if !req.IsCall() {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return status, nil
}

// do sends cmd to the render loop and waits for its reply.
func (s *Server) do(ctx context.Context, cmd Command) (Status, error) {
	reply := make(chan Reply, 1)
	cmd.Reply = reply
	select {
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-s.done:
		return Status{}, errClosed
	case s.commands <- cmd:
	}
	select {
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-s.done:
		return Status{}, errClosed
	case r := <-reply:
		return r.Status, r.Err
	}
}

var errClosed = errors.New("control server closed")

// wireError converts render loop errors to their RPC encoding.
func wireError(err error) error {
	var ierr *animation.IndexError
	switch {
	case errors.As(err, &ierr):
		return NewError(ErrCodeBounds, err.Error(), map[string]any{"index": ierr.Index, "len": ierr.Len})
	case errors.Is(err, animation.ErrIndexOutOfRange):
		return NewError(ErrCodeBounds, err.Error(), nil)
	case errors.Is(err, animation.ErrNoSource):
		return NewError(ErrCodeNoSource, err.Error(), nil)
	case errors.Is(err, errClosed):
		return NewError(ErrCodeClosed, err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return NewError(ErrCodeInternal, err.Error(), nil)
	}
}

// Player is the set of playback operations a Command acts on.
// [*animation.Controller] satisfies Player.
type Player interface {
	Play()
	Pause()
	TogglePlayback()
	Stop()
	SetFrame(int) error
	State() animation.State
	Index() int
	Len() int
}

// Apply performs cmd on p and returns the resulting status. It must be
// called from the goroutine that owns p.
func Apply(p Player, cmd Command) (Status, error) {
	var err error
	switch cmd.Method {
	case Play:
		p.Play()
	case Pause:
		p.Pause()
	case Toggle:
		p.TogglePlayback()
	case Stop:
		p.Stop()
	case Seek:
		if p.Len() == 0 {
			err = animation.ErrNoSource
			break
		}
		err = p.SetFrame(cmd.Frame)
	case State:
	default:
		err = fmt.Errorf("unknown control method: %q", cmd.Method)
	}
	return Status{
		State:  p.State().String(),
		Frame:  p.Index(),
		Frames: p.Len(),
	}, err
}

// Close stops the server, waiting for active connections to terminate.
// Requests waiting on the render loop are released.
func (s *Server) Close() error {
	s.log.LogAttrs(context.Background(), slog.LevelDebug, "close")
	s.closeOnce.Do(func() { close(s.done) })
	s.server.Shutdown()
	return s.server.Wait()
}
