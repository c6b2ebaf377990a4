// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package animation provides animated raster textures.
//
// A [Store] holds the decoded frames of an animation. A [Compositor]
// maintains the visible image across frames according to the GIF89a
// disposal rules, and a [Clock] maps host time to frame indices. The
// [Controller] ties these together behind a play, pause, stop and seek
// interface that is driven by periodic calls to [Controller.Tick] from a
// single render loop. Sources are decoded off the render loop with
// [Controller.LoadAsync].
package animation
