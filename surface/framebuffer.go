// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"fmt"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/internal/cache"
)

// fbKey identifies a framebuffer by its attachments.
type fbKey struct {
	color, depth backend.ViewID
}

func hashFramebufferKey(k fbKey) uint64 {
	return cache.PairHasher(uint64(k.color), uint64(k.depth))
}

// Framebuffer returns the framebuffer for a colour and depth-stencil view
// pair, creating it on first use. Either view may be zero.
func (c *Cache) Framebuffer(color, depth backend.ViewID) (backend.FramebufferID, error) {
	if c.closed {
		return 0, ErrClosed
	}
	fb, err := c.framebuffers.GetOrTryCreate(fbKey{color, depth}, func() (backend.FramebufferID, error) {
		c.stats.Framebuffers++
		return c.be.CreateFramebuffer(color, depth)
	})
	if err != nil {
		return 0, fmt.Errorf("surface: framebuffer: %w", err)
	}
	return fb, nil
}

// sweepFramebuffers destroys every cached framebuffer attached to v.
func (c *Cache) sweepFramebuffers(v backend.ViewID) {
	c.framebuffers.DeleteFunc(func(k fbKey, _ backend.FramebufferID) bool {
		return k.color == v || k.depth == v
	})
}
