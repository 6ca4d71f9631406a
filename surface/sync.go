// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/internal/tiling"
	"github.com/gogpu/gxm/mem"
)

// ErrNoMemory is returned by operations that need guest memory when the
// cache has none.
var ErrNoMemory = errors.New("surface: no guest memory")

// MarkRendered records that the GPU wrote s. Linear colour surfaces get a
// write trap on their guest range so the first CPU access flushes them.
func (c *Cache) MarkRendered(s *Surface) {
	s.version++
	if c.syncDisabled || s.kind != KindColor {
		return
	}
	s.hostNewer = true
	s.hashValid = false
	if c.alwaysSync || s.req.Layout != tiling.Linear || s.watched {
		return
	}

	addr, size := s.req.Address, s.size
	err := c.memory.Tracker().Watch(mem.WatchID(s.id), addr, size, func(_ uint32, write bool) {
		if c.requestSync != nil {
			c.requestSync(addr, size, write)
		}
	})
	switch {
	case errors.Is(err, mem.ErrTrapsUnsupported):
		c.alwaysSync = true
		c.logger.Warn("surface: page traps unsupported, synchronizing on every scene")
	case err != nil:
		c.logger.Warn("surface: arm trap failed", "surface", s, "err", err)
	default:
		s.watched = true
	}
}

func (c *Cache) unwatch(s *Surface) {
	if s.watched {
		c.memory.Tracker().Unwatch(mem.WatchID(s.id))
		s.watched = false
	}
}

// Sync makes guest memory in [addr, addr+size) current: every colour
// surface there holding unflushed GPU output is copied back. Touched
// surfaces are marked dirty, since the guest may write them from now on.
// It returns the number of surfaces flushed.
func (c *Cache) Sync(addr, size uint32) int {
	if c.syncDisabled || size == 0 {
		return 0
	}
	n := 0
	for _, s := range c.tables[KindColor].overlapping(addr, uint64(addr)+uint64(size)) {
		if s.watched {
			s.watched = c.memory.Tracker().Armed(mem.WatchID(s.id))
		}
		if s.hostNewer {
			if err := c.flush(s); err != nil {
				c.logger.Warn("surface: sync failed", "surface", s, "err", err)
				continue
			}
			n++
		}
		s.guestDirty = true
	}
	return n
}

// Flush copies the host content of s to guest memory now.
func (c *Cache) Flush(s *Surface) error {
	if c.syncDisabled {
		return ErrNoMemory
	}
	return c.flush(s)
}

// flush reads the host image, converts it to the guest format and
// encodes it into guest memory in the surface's layout.
func (c *Cache) flush(s *Surface) error {
	if c.memory == nil {
		return ErrNoMemory
	}
	fi := s.req.Format.Info()
	w, h := s.req.Width, s.req.Height
	host := make([]byte, int(w*h)*fi.HostBPP())
	if err := c.be.ReadImage(s.image, backend.Rect{Width: w, Height: h}, host); err != nil {
		return fmt.Errorf("surface: read back %s: %w", s, err)
	}
	packed := host
	if !fi.Exact() {
		packed = make([]byte, int(w*h)*fi.BPP)
		fi.ToGuest(packed, host)
	}

	guest := make([]byte, s.size)
	if err := c.memory.ReadSystem(s.req.Address, guest); err != nil {
		return err
	}
	if err := tiling.Encode(guest, packed, s.geom); err != nil {
		return err
	}
	if err := c.memory.WriteSystem(s.req.Address, guest); err != nil {
		return err
	}

	s.hostNewer = false
	s.guestHash = xxhash.Sum64(guest)
	s.hashValid = true
	c.stats.Flushes++
	c.logger.Debug("surface: flushed", "surface", s)
	return nil
}

// prepare brings the host image up to date with guest writes before the
// GPU uses it. An unchanged guest range is detected by hash and skipped.
func (c *Cache) prepare(s *Surface) {
	if c.syncDisabled || s.kind != KindColor || !s.guestDirty {
		return
	}
	guest := make([]byte, s.size)
	if err := c.memory.ReadSystem(s.req.Address, guest); err != nil {
		c.logger.Warn("surface: read guest memory", "surface", s, "err", err)
		return
	}
	s.guestDirty = false
	sum := xxhash.Sum64(guest)
	if s.hashValid && sum == s.guestHash {
		return
	}
	if err := c.upload(s.image, s.req, guest); err != nil {
		c.logger.Warn("surface: upload failed", "surface", s, "err", err)
		return
	}
	s.guestHash, s.hashValid = sum, true
	s.hostNewer = false
	s.version++
	c.stats.Uploads++
}

// upload decodes guest bytes laid out as req and writes them to image.
func (c *Cache) upload(image backend.ImageID, req Request, guest []byte) error {
	fi := req.Format.Info()
	packed := make([]byte, int(req.Width*req.Height)*fi.BPP)
	if err := tiling.Decode(packed, guest, req.geometry()); err != nil {
		return err
	}
	host := packed
	if !fi.Exact() {
		host = make([]byte, int(req.Width*req.Height)*fi.HostBPP())
		fi.ToHost(host, packed)
	}
	return c.be.WriteImage(image, backend.Rect{Width: req.Width, Height: req.Height}, host)
}
