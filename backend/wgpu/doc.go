// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements the renderer backend on a gogpu/wgpu HAL device.
//
// The device is owned by the host: New takes a gpucontext.DeviceProvider
// that exposes HAL types, and the backend never creates or destroys the
// device itself. NewNoopProvider supplies a provider backed by the HAL
// noop device, which is registered as "wgpu-noop" for dry runs and tests.
//
// Guest state that WebGPU bakes into pipelines (depth, stencil, cull,
// blend, topology, vertex layout) is tracked per context and resolved to a
// pipeline variant at draw time. Variants live in a bounded cache and are
// destroyed on eviction.
//
// Limitations: polygon modes other than fill, line width and the
// "inside" clip mode have no WebGPU equivalent and are ignored. Component
// views are not supported, and sampled sub-rectangles need a copy.
package wgpu
