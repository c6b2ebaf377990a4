// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import "log/slog"

type changeValue struct {
	Change
}

func (v changeValue) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Any("event", eventValue{
			Name: v.Event.Name,
			Op:   v.Event.Op.String(),
			Code: int(v.Event.Op),
		}),
	}
	if v.Config != nil {
		attrs = append(attrs, slog.Any("config", v.Config))
	}
	if v.Err != nil {
		attrs = append(attrs, slog.Any("err", v.Err))
	}
	return slog.GroupValue(attrs...)
}

type eventValue struct {
	Name string `json:"name"`
	Op   string `json:"op"`
	Code int    `json:"op_code"`
}
