// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package surface caches host images that stand for guest memory.
//
// Guest code renders into and samples from plain memory addresses. The
// [Cache] maps those addresses to host images so that a surface rendered
// in one scene can be sampled in the next without a round trip through
// guest memory, and keeps the two sides coherent when guest code does
// look at the memory.
//
// # Lookup
//
// Each surface kind has an address index ordered by base address. A
// request first finds the entry with the closest base at or below its
// address. An exact base with a compatible layout is reused; a size,
// stride or format change invalidates the entry and builds a new one. An
// address a few bytes past a base, inside one pixel, is a second render
// target packed into the same pixels and gets a view at that byte offset.
// Any other overlap means the old owner is gone and the entry is
// invalidated. New surfaces take the least recently used slot of a fixed
// ring and start cleared to a sentinel colour.
//
// Textures take the same path but also accept sub-rectangles and format
// reinterpretations, served through normalized coordinates or casted
// copies refreshed at most once per scene. Textures outside any surface
// are uploaded from guest memory and cached by content hash.
//
// # Coherency
//
// When the GPU writes a linear colour surface the cache arms a page trap
// on its guest range. The first guest access calls the sync requester,
// which must run [Cache.Sync] on the render thread: the host image is
// read back, converted to the guest format and written to guest memory
// before the access proceeds. The surface is then dirty, and its next GPU
// use re-uploads guest memory if its hash changed. Without trap support,
// and for tiled or swizzled surfaces, GPU output is flushed at the end of
// every scene instead.
//
// # Destruction
//
// Evicted surfaces are retired and destroyed at the end of the scene:
// casted copies and alternate views first, then the primary view and
// image. Framebuffers are cached by their view pair and swept before any
// view they reference is destroyed.
package surface
