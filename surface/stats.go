// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import "fmt"

// Stats counts surface cache activity since the cache was created.
type Stats struct {
	Hits   uint64 // render-target and texture lookups served by a live surface
	Misses uint64 // render-target lookups that created a surface

	Created       uint64
	Evictions     uint64 // surfaces taken out of the ring, for any reason
	Invalidations uint64 // evictions caused by an incompatible access
	Destroyed     uint64 // retired surfaces whose host objects were released

	AltViews      uint64
	Casts         uint64 // casted copies created
	CastRefreshes uint64 // copies into casted images

	Flushes        uint64 // host to guest
	Uploads        uint64 // guest to host, surfaces
	TextureUploads uint64 // guest to host, plain textures
	Framebuffers   uint64

	// Live counts of the framebuffer and uploaded texture caches.
	LiveFramebuffers int
	LiveTextures     int
	// FramebufferHitRate is the share of framebuffer lookups served
	// from the cache.
	FramebufferHitRate float64
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	st := c.stats
	fb := c.framebuffers.Stats()
	st.LiveFramebuffers, st.FramebufferHitRate = fb.Len, fb.HitRate
	st.LiveTextures = c.textures.Stats().Len
	return st
}

// String returns a one-line summary.
func (s Stats) String() string {
	return fmt.Sprintf("surfaces: hits=%d misses=%d created=%d evicted=%d invalidated=%d destroyed=%d "+
		"views=%d casts=%d/%d flushes=%d uploads=%d textures=%d/%d framebuffers=%d/%d",
		s.Hits, s.Misses, s.Created, s.Evictions, s.Invalidations, s.Destroyed,
		s.AltViews, s.Casts, s.CastRefreshes, s.Flushes, s.Uploads, s.LiveTextures, s.TextureUploads,
		s.LiveFramebuffers, s.Framebuffers)
}
