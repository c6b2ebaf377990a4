// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package control provides a JSON RPC 2 control surface for a running
// animation.
package control

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kortschak/jsonrpc2"
)

// Control methods.
const (
	Play   = "play"   // call None → Status
	Pause  = "pause"  // call None → Status
	Toggle = "toggle" // call None → Status
	Stop   = "stop"   // call None → Status
	Seek   = "seek"   // call Frame → Status
	State  = "state"  // call None → Status
)

// JSON RPC error codes.
const (
	ErrCodeInvalidMessage = 1 // an RPC message is invalid
	// Invalid message sub-codes:
	ErrCodeMessageSyntax       = 11 // syntax
	ErrCodeMessageUnknownField = 12 // unknown field
	ErrCodeShortMessage        = 13 // truncation
	ErrCodeMessageType         = 14 // type mismatch

	ErrCodeInvalidData = 3  // data sent in a call was invalid
	ErrCodeNoSource    = 31 // no animation loaded
	ErrCodeBounds      = 35 // out of bounds

	ErrCodeInternal = 4  // an internal error happened
	ErrCodeClosed   = 41 // render loop has terminated
)

// None is an empty parameter slot.
type None struct{}

// Frame is the parameter of a seek call.
type Frame struct {
	Frame int `json:"frame"`
}

// Status is the playback status returned by all control calls.
type Status struct {
	State   string `json:"state"`
	Frame   int    `json:"frame"`
	Frames  int    `json:"frames"`
	Source  string `json:"source,omitempty"`
	Loading bool   `json:"loading,omitempty"`
}

// Unmarshal is a strict equivalent of [json.Unmarshal]. An empty data
// slice is treated as a JSON null.
func Unmarshal[T any](data []byte, v *T) error {
	if len(data) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err != nil {
		return &jsonrpc2.WireError{
			Code:    ErrCodeInvalidMessage,
			Message: err.Error(),
			Data:    encodeErrData(err, data),
		}
	}
	if dec.More() {
		off := dec.InputOffset()
		return &jsonrpc2.WireError{
			Code:    ErrCodeInvalidMessage,
			Message: fmt.Sprintf("invalid character "+quoteChar(data[off])+" after top-level value at offset %d", off),
			Data:    encodeErrData(&json.SyntaxError{Offset: off}, data),
		}
	}
	return nil
}

// encodeErrData return the JSON encoding for an error's extra data.
func encodeErrData(err error, data []byte) json.RawMessage {
	type extra struct {
		Type    int    `json:"type,omitempty"`
		Offset  int64  `json:"offset,omitempty"`
		Message []byte `json:"msg"`
	}
	e := extra{
		Message: data,
	}
	switch err := err.(type) {
	case nil:
		return nil
	case *json.SyntaxError:
		e.Type = ErrCodeMessageSyntax
		e.Offset = err.Offset
	case *json.UnmarshalTypeError:
		e.Type = ErrCodeMessageType
		e.Offset = err.Offset
	default:
		switch {
		case err == io.EOF, err == io.ErrUnexpectedEOF:
			e.Type = ErrCodeShortMessage
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			e.Type = ErrCodeMessageUnknownField
		}
	}
	return wireErrorData(e)
}

// NewError returns an error that will be encoded correctly in the RPC protocol.
func NewError(code int64, message string, data any) error {
	return &jsonrpc2.WireError{
		Code:    code,
		Message: message,
		Data:    wireErrorData(data),
	}
}

func wireErrorData(data any) json.RawMessage {
	if data == nil {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(data)
	if err != nil {
		b, _ := json.Marshal("!" + err.Error())
		return b
	}
	return bytes.TrimSpace(buf.Bytes())
}

// quoteChar formats c as a quoted character literal.
func quoteChar(c byte) string {
	// special cases - different from quoted strings
	if c == '\'' {
		return `'\''`
	}
	if c == '"' {
		return `'"'`
	}

	// use quoted string with different quotation marks
	s := strconv.Quote(string(c))
	return "'" + s[1:len(s)-1] + "'"
}
