// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package control

import (
	"context"
	"net"

	"github.com/kortschak/jsonrpc2"
)

// Client is a connection to a control Server.
type Client struct {
	conn *jsonrpc2.Connection
}

// Dial returns a new Client connected to the control server listening on
// the provided network and address.
func Dial(ctx context.Context, network, addr string) (*Client, error) {
	conn, err := jsonrpc2.Dial(ctx, jsonrpc2.NetDialer(network, addr, net.Dialer{}), jsonrpc2.ConnectionOptions{})
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Play starts or resumes playback.
func (c *Client) Play(ctx context.Context) (Status, error) {
	return c.Call(ctx, Play, None{})
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) (Status, error) {
	return c.Call(ctx, Pause, None{})
}

// Toggle toggles between playing and paused.
func (c *Client) Toggle(ctx context.Context) (Status, error) {
	return c.Call(ctx, Toggle, None{})
}

// Stop stops playback and rewinds to the first frame.
func (c *Client) Stop(ctx context.Context) (Status, error) {
	return c.Call(ctx, Stop, None{})
}

// Seek displays frame i.
func (c *Client) Seek(ctx context.Context, i int) (Status, error) {
	return c.Call(ctx, Seek, Frame{Frame: i})
}

// State returns the current playback status.
func (c *Client) State(ctx context.Context) (Status, error) {
	return c.Call(ctx, State, None{})
}

// Call invokes the control method with the given parameters and waits
// for the resulting status.
func (c *Client) Call(ctx context.Context, method string, params any) (Status, error) {
	var status Status
	err := c.conn.Call(ctx, method, params).Await(ctx, &status)
	return status, err
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
