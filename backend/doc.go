// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend defines the host graphics capability interface the
// renderer core drives.
//
// A Backend is chosen once at startup, either explicitly or through the
// registry by priority, and is then owned by the render thread. All
// methods are called from that thread only.
//
// Host objects are named by opaque IDs. The zero value of every ID type is
// invalid, so a zero ID can be used as "none" in descriptors.
//
// Two implementations ship with the module:
//
//   - backend/headless keeps images in memory and is exact, for tests and
//     batch replays;
//   - backend/wgpu drives a wgpu HAL device handed in by the host.
package backend
