// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gxm/backend"
)

// castKey identifies a casted copy of part of a surface.
type castKey struct {
	x, y, w, h uint32
	format     Format
	srgb       bool
}

// cast is a side image holding a region of a surface reinterpreted in
// another format or cropped for a backend that cannot sample sub-rects.
type cast struct {
	image   backend.ImageID
	view    backend.ViewID
	scene   uint64 // scene of the last refresh
	version uint64 // source version copied
}

// textureKey identifies a texture uploaded from guest memory by content.
type textureKey struct {
	req  Request
	hash uint64
}

type texture struct {
	image backend.ImageID
	view  backend.ViewID
}

// LookupTexture returns a view to sample req through and the normalized
// rectangle of that view holding the texture.
//
// A texture inside a live surface is served from the surface: directly
// when it matches, through normalized coordinates when it is a sub-rect
// the backend can sample, and through a casted copy otherwise. Anything
// else is uploaded from guest memory.
func (c *Cache) LookupTexture(req Request) (backend.ViewID, [4]float32, error) {
	if c.closed {
		return 0, backend.FullUV, ErrClosed
	}
	kind := KindColor
	if fi := req.Format.Info(); fi != nil && fi.Depth {
		kind = KindDepthStencil
	}
	req, err := req.normalize(kind)
	if err != nil {
		return 0, backend.FullUV, err
	}
	t := c.tables[kind]
	if s := t.predecessor(req.Address); s != nil && s.contains(req.Address) {
		if v, uv, ok := c.sample(t, s, req); ok {
			return v, uv, nil
		}
	}
	size := uint32(req.geometry().Size())
	c.Sync(req.Address, size)
	v, err := c.uploadTexture(req, size)
	return v, backend.FullUV, err
}

// sample serves req from s when the pixels can be addressed in the host
// image. It reports false when the texture must come from guest memory.
func (c *Cache) sample(t *table, s *Surface, req Request) (backend.ViewID, [4]float32, bool) {
	if req.Layout != s.req.Layout || req.Stride != s.req.Stride {
		return 0, backend.FullUV, false
	}
	src, dst := s.req.Format.Info(), req.Format.Info()
	x, y, ok := s.Origin(req.Address)
	if !ok {
		return 0, backend.FullUV, false
	}
	if x+req.Width > s.req.Width || y+req.Height > s.req.Height {
		return 0, backend.FullUV, false
	}

	sameFormat := req.Format == s.req.Format
	if !sameFormat && !(src.Exact() && dst.Exact() && src.BPP == dst.BPP && !src.Depth && !dst.Depth) {
		return 0, backend.FullUV, false
	}

	c.prepare(s)
	c.touch(t, s)
	c.stats.Hits++

	whole := x == 0 && y == 0 && req.Width == s.req.Width && req.Height == s.req.Height
	if sameFormat {
		if whole {
			return c.pickView(s, req), backend.FullUV, true
		}
		if c.caps.NormalizedSubrect {
			w, h := float32(s.req.Width), float32(s.req.Height)
			uv := [4]float32{float32(x) / w, float32(y) / h, float32(x+req.Width) / w, float32(y+req.Height) / h}
			return c.pickView(s, req), uv, true
		}
	}

	v, err := c.castCopy(s, castKey{x: x, y: y, w: req.Width, h: req.Height, format: req.Format, srgb: req.SRGB})
	if err != nil {
		c.logger.Warn("surface: casted copy failed", "surface", s, "err", err)
		return 0, backend.FullUV, false
	}
	return v, backend.FullUV, true
}

// castCopy returns the casted copy for key, refreshing it at most once
// per scene.
func (c *Cache) castCopy(s *Surface, key castKey) (backend.ViewID, error) {
	cs, ok := s.casts[key]
	if !ok {
		if !c.caps.CopyImage {
			return 0, fmt.Errorf("copy: %w", backend.ErrUnsupported)
		}
		fi := key.format.Info()
		format := fi.Host
		if key.srgb && fi.SRGB != gputypes.TextureFormatUndefined {
			format = fi.SRGB
		}
		image, err := c.be.CreateImage(backend.ImageDesc{
			Label:  fmt.Sprintf("cast@%#x", s.req.Address),
			Width:  key.w,
			Height: key.h,
			Format: format,
			Usage:  backend.UsageSampled | backend.UsageTransfer,
		})
		if err != nil {
			return 0, err
		}
		view, err := c.be.CreateView(image, backend.ViewDesc{})
		if err != nil {
			c.be.DestroyImage(image)
			return 0, err
		}
		cs = &cast{image: image, view: view}
		if s.casts == nil {
			s.casts = make(map[castKey]*cast)
		}
		s.casts[key] = cs
		c.stats.Casts++
	}
	if cs.scene == c.scene || (cs.scene != 0 && cs.version == s.version) {
		return cs.view, nil
	}
	err := c.be.CopyImage(cs.image, 0, 0, s.image, backend.Rect{X: key.x, Y: key.y, Width: key.w, Height: key.h})
	if err != nil {
		return 0, err
	}
	cs.scene, cs.version = c.scene, s.version
	c.stats.CastRefreshes++
	return cs.view, nil
}

// uploadTexture returns a texture decoded from guest memory, cached by
// content.
func (c *Cache) uploadTexture(req Request, size uint32) (backend.ViewID, error) {
	if c.memory == nil {
		return 0, ErrNoMemory
	}
	guest := make([]byte, size)
	if err := c.memory.ReadSystem(req.Address, guest); err != nil {
		return 0, err
	}
	key := textureKey{req: req, hash: xxhash.Sum64(guest)}
	tex, err := c.textures.GetOrTryCreate(key, func() (*texture, error) {
		fi := req.Format.Info()
		format := fi.Host
		if req.SRGB && fi.SRGB != gputypes.TextureFormatUndefined {
			format = fi.SRGB
		}
		image, err := c.be.CreateImage(backend.ImageDesc{
			Label:  fmt.Sprintf("texture@%#x", req.Address),
			Width:  req.Width,
			Height: req.Height,
			Format: format,
			Usage:  backend.UsageSampled | backend.UsageTransfer,
		})
		if err != nil {
			return nil, err
		}
		tex := &texture{image: image}
		if err := c.upload(image, req, guest); err != nil {
			c.be.DestroyImage(image)
			return nil, err
		}
		if tex.view, err = c.be.CreateView(image, backend.ViewDesc{}); err != nil {
			c.be.DestroyImage(image)
			return nil, err
		}
		c.stats.TextureUploads++
		return tex, nil
	})
	if err != nil {
		return 0, fmt.Errorf("surface: texture %#x: %w", req.Address, err)
	}
	return tex.view, nil
}

func (c *Cache) destroyTexture(tex *texture) {
	c.sweepFramebuffers(tex.view)
	c.be.DestroyView(tex.view)
	c.be.DestroyImage(tex.image)
}
