// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"fmt"
	"log/slog"

	"github.com/google/btree"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/internal/cache"
	"github.com/gogpu/gxm/internal/tiling"
	"github.com/gogpu/gxm/mem"
)

// Defaults.
const (
	DefaultCapacity         = 64
	DefaultOverlapSlack     = 32
	DefaultTextureCacheSize = 256

	framebufferShardCapacity = 8
)

// Sentinel clear values for fresh host storage.
var (
	sentinelColor = gputypes.Color{R: 1, G: 0, B: 1, A: 1}
	sentinelDepth = backend.ClearValue{Depth: 1, Stencil: 0}
)

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity sets the number of slots in each slot ring.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithOverlapSlack sets how many bytes past a surface base an access may
// land and still be treated as a second render target packed into the
// same pixels.
func WithOverlapSlack(n uint32) Option {
	return func(c *Cache) { c.slack = n }
}

// WithTextureCacheSize bounds the cache of textures uploaded from guest
// memory.
func WithTextureCacheSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.textureSize = n
		}
	}
}

// WithoutSync disables surface sync: host content is assumed to always be
// current and nothing is flushed to or uploaded from guest memory.
func WithoutSync() Option {
	return func(c *Cache) { c.syncDisabled = true }
}

// WithSyncRequester sets the function a page trap calls on the guest
// goroutine. It must arrange for Sync to run on the render thread and
// return once it has.
func WithSyncRequester(fn func(addr, size uint32, write bool)) Option {
	return func(c *Cache) { c.requestSync = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// table is the address index and slot ring of one surface kind.
type table struct {
	kind  Kind
	index *btree.BTreeG[*Surface]
	slots []*Surface
	nodes []*cache.Node[int]
	ring  *cache.List[int] // front is most recently used
}

func newTable(kind Kind, capacity int) *table {
	t := &table{
		kind: kind,
		index: btree.NewG(8, func(a, b *Surface) bool {
			return a.req.Address < b.req.Address
		}),
		slots: make([]*Surface, capacity),
		nodes: make([]*cache.Node[int], capacity),
		ring:  cache.NewList[int](),
	}
	for i := range t.nodes {
		t.nodes[i] = t.ring.PushBack(i)
	}
	return t
}

func pivot(addr uint32) *Surface {
	return &Surface{req: Request{Address: addr}}
}

// predecessor returns the entry with the highest base not above addr.
func (t *table) predecessor(addr uint32) *Surface {
	var found *Surface
	t.index.DescendLessOrEqual(pivot(addr), func(s *Surface) bool {
		found = s
		return false
	})
	return found
}

// overlapping returns every entry intersecting [addr, end).
func (t *table) overlapping(addr uint32, end uint64) []*Surface {
	var out []*Surface
	if s := t.predecessor(addr); s != nil && s.contains(addr) {
		out = append(out, s)
	}
	if uint64(addr)+1 >= end {
		return out
	}
	t.index.AscendGreaterOrEqual(pivot(addr+1), func(s *Surface) bool {
		if uint64(s.req.Address) >= end {
			return false
		}
		out = append(out, s)
		return true
	})
	return out
}

// Cache is the surface cache. It maps guest address ranges to host
// images and keeps both sides coherent.
//
// All methods must be called from the render thread.
type Cache struct {
	be     backend.Backend
	caps   backend.Caps
	memory *mem.Space
	logger *slog.Logger

	capacity     int
	slack        uint32
	textureSize  int
	syncDisabled bool
	alwaysSync   bool
	requestSync  func(addr, size uint32, write bool)

	tables       [2]*table
	framebuffers *cache.ShardedCache[fbKey, backend.FramebufferID]
	textures     *cache.Cache[textureKey, *texture]
	graveyard    []*Surface

	scene  uint64
	tick   uint64
	nextID uint64
	closed bool
	stats  Stats
}

// New creates a cache over be. memory is the guest memory surfaces are
// backed by; with a nil memory surface sync is off.
func New(be backend.Backend, memory *mem.Space, opts ...Option) *Cache {
	c := &Cache{
		be:          be,
		caps:        be.Caps(),
		memory:      memory,
		logger:      slog.New(slog.DiscardHandler),
		capacity:    DefaultCapacity,
		slack:       DefaultOverlapSlack,
		textureSize: DefaultTextureCacheSize,
		scene:       1,
	}
	for _, opt := range opts {
		opt(c)
	}
	if memory == nil {
		c.syncDisabled = true
	}
	if !c.syncDisabled && !memory.Tracker().Supported() {
		c.alwaysSync = true
		c.logger.Warn("surface: page traps unsupported, synchronizing on every scene")
	}

	c.tables[KindColor] = newTable(KindColor, c.capacity)
	c.tables[KindDepthStencil] = newTable(KindDepthStencil, c.capacity)
	c.framebuffers = cache.NewSharded[fbKey, backend.FramebufferID](framebufferShardCapacity, hashFramebufferKey)
	c.framebuffers.OnEvict(func(_ fbKey, fb backend.FramebufferID) {
		c.be.DestroyFramebuffer(fb)
	})
	c.textures = cache.NewWithEvict(c.textureSize, func(_ textureKey, tex *texture) {
		c.destroyTexture(tex)
	})
	return c
}

// Scene returns the current scene timestamp.
func (c *Cache) Scene() uint64 {
	return c.scene
}

// AlwaysSync reports whether the cache fell back to synchronizing every
// GPU-written surface at scene end.
func (c *Cache) AlwaysSync() bool {
	return c.alwaysSync
}

// Len returns the number of live surfaces of a kind.
func (c *Cache) Len(kind Kind) int {
	return c.tables[kind].index.Len()
}

// Lookup returns the surface of a kind owning addr, if any.
func (c *Cache) Lookup(kind Kind, addr uint32) (*Surface, bool) {
	s := c.tables[kind].predecessor(addr)
	if s == nil || !s.contains(addr) {
		return nil, false
	}
	return s, true
}

// AcquireColor returns a colour surface for rendering to req and the
// view to render through. req may be a sub-rectangle of an existing
// surface with the same layout; Surface.Origin then places it.
func (c *Cache) AcquireColor(req Request) (*Surface, backend.ViewID, error) {
	return c.acquire(KindColor, req)
}

// AcquireDepthStencil returns a depth-stencil surface for req.
func (c *Cache) AcquireDepthStencil(req Request) (*Surface, backend.ViewID, error) {
	return c.acquire(KindDepthStencil, req)
}

func (c *Cache) acquire(kind Kind, req Request) (*Surface, backend.ViewID, error) {
	if c.closed {
		return nil, 0, ErrClosed
	}
	req, err := req.normalize(kind)
	if err != nil {
		return nil, 0, err
	}
	geom := req.geometry()
	size := uint32(geom.Size())
	if c.memory != nil && uint64(req.Address)+uint64(size) > uint64(c.memory.Size()) {
		return nil, 0, fmt.Errorf("%w: %#x+%#x outside guest memory", ErrInvalidRequest, req.Address, size)
	}
	t := c.tables[kind]

	if s := t.predecessor(req.Address); s != nil && s.contains(req.Address) {
		off := req.Address - s.req.Address
		_, _, inside := s.holds(req)
		switch {
		case inside:
			return s, c.reuse(t, s, req), nil
		case off == 0:
			c.invalidate(t, s, "size or format change")
		case kind == KindColor && off < c.slack && off < uint32(s.geom.BPP):
			if v, ok := c.componentView(s, req, off); ok {
				c.touch(t, s)
				c.stats.Hits++
				return s, v, nil
			}
			c.invalidate(t, s, "component view unavailable")
		default:
			c.invalidate(t, s, "stale overlap")
		}
	}
	for _, s := range t.overlapping(req.Address, uint64(req.Address)+uint64(size)) {
		c.invalidate(t, s, "covered by new surface")
	}

	s, err := c.create(t, req, size)
	if err != nil {
		return nil, 0, err
	}
	return s, c.pickView(s, req), nil
}

// reuse returns the view of a hit.
func (c *Cache) reuse(t *table, s *Surface, req Request) backend.ViewID {
	c.touch(t, s)
	c.stats.Hits++
	c.prepare(s)
	c.logger.Debug("surface: hit", "surface", s)
	return c.pickView(s, req)
}

func (c *Cache) touch(t *table, s *Surface) {
	c.tick++
	s.lastUsed = c.tick
	t.ring.MoveToFront(t.nodes[s.slot])
}

// pickView returns the primary view or an sRGB alternate when asked for.
func (c *Cache) pickView(s *Surface, req Request) backend.ViewID {
	if !req.SRGB || s.kind != KindColor {
		return s.view
	}
	fi := s.req.Format.Info()
	if fi.SRGB == gputypes.TextureFormatUndefined {
		return s.view
	}
	if v, ok := c.altView(s, viewKey{srgb: true}, fi.SRGB); ok {
		return v
	}
	return s.view
}

// altView returns a cached alternate view of s, creating it on first use.
func (c *Cache) altView(s *Surface, key viewKey, format gputypes.TextureFormat) (backend.ViewID, bool) {
	if v, ok := s.views[key]; ok {
		return v, true
	}
	v, err := c.be.CreateView(s.image, backend.ViewDesc{Format: format, ByteOffset: key.offset})
	if err != nil {
		c.logger.Debug("surface: alternate view unavailable", "surface", s, "format", format,
			"offset", key.offset, "err", err)
		return 0, false
	}
	if s.views == nil {
		s.views = make(map[viewKey]backend.ViewID)
	}
	s.views[key] = v
	c.stats.AltViews++
	return v, true
}

// componentView resolves a second render target packed into the pixels of
// s at a byte offset.
func (c *Cache) componentView(s *Surface, req Request, off uint32) (backend.ViewID, bool) {
	src, dst := s.req.Format.Info(), req.Format.Info()
	if !src.Exact() || !dst.Exact() || int(off)+dst.BPP > src.BPP {
		return 0, false
	}
	if req.Layout != s.req.Layout || req.Width > s.req.Width || req.Height > s.req.Height {
		return 0, false
	}
	// Rows must line up with the surface rows.
	if req.Stride != s.req.Stride {
		return 0, false
	}
	return c.altView(s, viewKey{offset: off}, dst.Host)
}

// create binds a new surface to the least recently used slot.
func (c *Cache) create(t *table, req Request, size uint32) (*Surface, error) {
	slot, _ := t.ring.Oldest()
	if old := t.slots[slot]; old != nil {
		c.logger.Debug("surface: evict", "surface", old)
		c.remove(t, old)
	}

	fi := req.Format.Info()
	usage := backend.UsageSampled | backend.UsageTransfer
	if t.kind == KindColor {
		usage |= backend.UsageRenderTarget
	} else {
		usage |= backend.UsageDepthStencil
	}
	image, err := c.be.CreateImage(backend.ImageDesc{
		Label:  fmt.Sprintf("surface@%#x", req.Address),
		Width:  req.Width,
		Height: req.Height,
		Format: fi.Host,
		Usage:  usage,
	})
	if err != nil {
		return nil, fmt.Errorf("surface: create image: %w", err)
	}
	view, err := c.be.CreateView(image, backend.ViewDesc{})
	if err != nil {
		c.be.DestroyImage(image)
		return nil, fmt.Errorf("surface: create view: %w", err)
	}
	cv := sentinelDepth
	if t.kind == KindColor {
		cv = backend.ClearValue{Color: sentinelColor}
	}
	if err := c.be.ClearImage(image, cv); err != nil {
		c.logger.Warn("surface: sentinel clear failed", "err", err)
	}

	c.nextID++
	s := &Surface{
		kind:  t.kind,
		id:    c.nextID,
		req:   req,
		geom:  req.geometry(),
		size:  size,
		image: image,
		view:  view,
		slot:  slot,
	}
	t.slots[slot] = s
	t.index.ReplaceOrInsert(s)
	c.touch(t, s)
	c.stats.Misses++
	c.stats.Created++
	c.logger.Debug("surface: created", "surface", s, "slot", slot)
	return s, nil
}

func (c *Cache) invalidate(t *table, s *Surface, reason string) {
	c.stats.Invalidations++
	c.logger.Debug("surface: invalidate", "surface", s, "reason", reason)
	c.remove(t, s)
}

// remove takes s out of the index and ring and queues it for destruction.
// GPU output the guest has not seen is flushed first.
func (c *Cache) remove(t *table, s *Surface) {
	c.stats.Evictions++
	if s.hostNewer {
		if err := c.flush(s); err != nil {
			c.logger.Warn("surface: flush before eviction failed", "surface", s, "err", err)
		}
	}
	c.unwatch(s)
	t.index.Delete(s)
	t.slots[s.slot] = nil
	t.ring.MoveToBack(t.nodes[s.slot])
	c.graveyard = append(c.graveyard, s)
}

// Retired returns the number of surfaces waiting for destruction.
func (c *Cache) Retired() int {
	return len(c.graveyard)
}

// collect destroys retired surfaces.
func (c *Cache) collect() {
	for _, s := range c.graveyard {
		c.destroy(s)
	}
	clear(c.graveyard)
	c.graveyard = c.graveyard[:0]
}

// destroy releases everything derived from s before its image.
func (c *Cache) destroy(s *Surface) {
	for key, cs := range s.casts {
		c.sweepFramebuffers(cs.view)
		c.be.DestroyView(cs.view)
		c.be.DestroyImage(cs.image)
		delete(s.casts, key)
	}
	for key, v := range s.views {
		c.sweepFramebuffers(v)
		c.be.DestroyView(v)
		delete(s.views, key)
	}
	c.sweepFramebuffers(s.view)
	c.be.DestroyView(s.view)
	c.be.DestroyImage(s.image)
	c.stats.Destroyed++
}

// EndScene finishes a scene: surfaces that cannot be trapped are flushed,
// retired surfaces are destroyed and the scene timestamp advances.
func (c *Cache) EndScene() {
	if !c.syncDisabled {
		for _, t := range c.tables {
			for _, s := range t.slots {
				if s == nil || !s.hostNewer {
					continue
				}
				// Trapped surfaces are flushed when the guest touches them.
				if !c.alwaysSync && s.req.Layout == tiling.Linear && s.watched {
					continue
				}
				if err := c.flush(s); err != nil {
					c.logger.Warn("surface: scene flush failed", "surface", s, "err", err)
					continue
				}
				s.guestDirty = true
			}
		}
	}
	c.collect()
	c.scene++
}

// Close destroys every surface, framebuffer and texture.
func (c *Cache) Close() {
	if c.closed {
		return
	}
	for _, t := range c.tables {
		for _, s := range t.slots {
			if s != nil {
				c.unwatch(s)
				t.index.Delete(s)
				t.slots[s.slot] = nil
				c.graveyard = append(c.graveyard, s)
			}
		}
	}
	c.collect()
	c.framebuffers.DeleteFunc(func(fbKey, backend.FramebufferID) bool { return true })
	c.textures.DeleteFunc(func(textureKey, *texture) bool { return true })
	c.closed = true
}
