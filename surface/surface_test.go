// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/backend/headless"
	"github.com/gogpu/gxm/internal/tiling"
	"github.com/gogpu/gxm/mem"
)

type fixture struct {
	cache *Cache
	be    *headless.Backend
	space *mem.Space
}

func newFixture(t *testing.T, caps *backend.Caps, opts ...Option) *fixture {
	t.Helper()
	var beOpts []headless.Option
	if caps != nil {
		beOpts = append(beOpts, headless.WithCaps(*caps))
	}
	be := headless.New(beOpts...)
	if err := be.Init(); err != nil {
		t.Fatal(err)
	}
	space, err := mem.NewSpace(1<<20, mem.WithoutHardwareTraps())
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{be: be, space: space}
	opts = append([]Option{WithSyncRequester(func(addr, size uint32, _ bool) {
		f.cache.Sync(addr, size)
	})}, opts...)
	f.cache = New(be, space, opts...)
	t.Cleanup(func() {
		f.cache.Close()
		be.Close()
		_ = space.Close()
	})
	return f
}

func rgba8(addr, stride, w, h uint32) Request {
	return Request{Address: addr, Format: FormatRGBA8, Stride: stride, Width: w, Height: h}
}

func TestRenderThenSampleThenGrow(t *testing.T) {
	f := newFixture(t, nil)
	c := f.cache

	s, view, err := c.AcquireColor(rgba8(0x1000, 512, 128, 128))
	if err != nil {
		t.Fatal(err)
	}
	c.MarkRendered(s)

	tv, uv, err := c.LookupTexture(rgba8(0x1000, 512, 128, 128))
	if err != nil {
		t.Fatal(err)
	}
	if tv != view || uv != backend.FullUV {
		t.Errorf("texture = %d %v, want surface view %d full", tv, uv, view)
	}
	st := c.Stats()
	if st.Hits != 1 || st.Casts != 0 || st.CastRefreshes != 0 || st.TextureUploads != 0 {
		t.Errorf("after texture hit: %s", st)
	}
	if n := f.be.Counters().Copies; n != 0 {
		t.Errorf("copies = %d, want 0", n)
	}

	s2, _, err := c.AcquireColor(rgba8(0x1000, 1024, 256, 256))
	if err != nil {
		t.Fatal(err)
	}
	if s2 == s {
		t.Fatal("grown request reused the old surface")
	}
	st = c.Stats()
	if st.Evictions != 1 || st.Invalidations != 1 || st.Created != 2 {
		t.Errorf("after grow: %s", st)
	}
	if c.Retired() != 1 {
		t.Errorf("Retired() = %d, want 1", c.Retired())
	}
	if n := f.be.Counters().ImagesDestroyed; n != 0 {
		t.Errorf("images destroyed before scene end = %d", n)
	}

	c.EndScene()
	c.EndScene()
	if c.Retired() != 0 {
		t.Errorf("Retired() after scene = %d", c.Retired())
	}
	if n := f.be.Counters().ImagesDestroyed; n != 1 {
		t.Errorf("images destroyed = %d, want 1", n)
	}
	if got := c.Stats().Destroyed; got != 1 {
		t.Errorf("Destroyed = %d, want 1", got)
	}
	if got, ok := c.Lookup(KindColor, 0x1000); !ok || got != s2 {
		t.Error("address index does not point at the new surface")
	}
}

func TestAcquireReuse(t *testing.T) {
	f := newFixture(t, nil)
	c := f.cache
	req := rgba8(0x4000, 64, 16, 16)

	s1, v1, err := c.AcquireColor(req)
	if err != nil {
		t.Fatal(err)
	}
	s2, v2, _ := c.AcquireColor(req)
	s3, _, _ := c.AcquireColor(rgba8(0x4000, 64, 8, 8))
	if s1 != s2 || v1 != v2 || s1 != s3 {
		t.Error("identical or smaller request did not reuse the surface")
	}
	if n := f.be.Counters().ImagesCreated; n != 1 {
		t.Errorf("images created = %d, want 1", n)
	}

	px, _ := f.be.Image(s1.Image())
	if want := []byte{0xff, 0, 0xff, 0xff}; !bytes.Equal(px[:4], want) {
		t.Errorf("fresh surface pixel = %v, want sentinel %v", px[:4], want)
	}
}

func TestDistinctRangesDoNotAlias(t *testing.T) {
	f := newFixture(t, nil)
	a, _, _ := f.cache.AcquireColor(rgba8(0x1000, 64, 16, 16))
	b, _, _ := f.cache.AcquireColor(rgba8(0x2000, 64, 16, 16))
	if a == b || a.slot == b.slot {
		t.Error("non-overlapping ranges share a slot")
	}
	if f.cache.Len(KindColor) != 2 {
		t.Errorf("Len = %d, want 2", f.cache.Len(KindColor))
	}
}

func TestOverlapClassification(t *testing.T) {
	tests := []struct {
		name        string
		caps        *backend.Caps
		first       Request
		second      Request
		reuse       bool
		origin      [2]uint32
		altViews    uint64
		invalidated uint64
	}{
		{
			name:        "format change at same base",
			first:       rgba8(0x1000, 64, 16, 16),
			second:      Request{Address: 0x1000, Format: FormatBGRA8, Stride: 64, Width: 16, Height: 16},
			invalidated: 1,
		},
		{
			name:     "srgb interpretation",
			first:    rgba8(0x1000, 64, 16, 16),
			second:   Request{Address: 0x1000, Format: FormatRGBA8, Stride: 64, Width: 16, Height: 16, SRGB: true},
			reuse:    true,
			altViews: 1,
		},
		{
			name:     "packed second target",
			first:    Request{Address: 0x1000, Format: FormatRGBA16F, Stride: 128, Width: 16, Height: 16},
			second:   Request{Address: 0x1004, Format: FormatR32F, Stride: 128, Width: 16, Height: 16},
			reuse:    true,
			altViews: 1,
		},
		{
			name:        "packed second target without component views",
			caps:        &backend.Caps{CopyImage: true, FormatViews: true},
			first:       Request{Address: 0x1000, Format: FormatRGBA16F, Stride: 128, Width: 16, Height: 16},
			second:      Request{Address: 0x1004, Format: FormatR32F, Stride: 128, Width: 16, Height: 16},
			invalidated: 1,
		},
		{
			name:   "contained interior request",
			first:  rgba8(0x1000, 64, 16, 16),
			second: rgba8(0x1200, 64, 16, 4),
			reuse:  true,
			origin: [2]uint32{0, 8},
		},
		{
			name:   "contained interior request off the left edge",
			first:  rgba8(0x1000, 64, 16, 16),
			second: rgba8(0x1210, 64, 8, 4),
			reuse:  true,
			origin: [2]uint32{4, 8},
		},
		{
			name:        "interior request with another stride",
			first:       rgba8(0x1000, 64, 16, 16),
			second:      rgba8(0x1200, 32, 8, 4),
			invalidated: 1,
		},
		{
			name:        "inside a too small range",
			first:       rgba8(0x1000, 64, 16, 16),
			second:      rgba8(0x1200, 64, 16, 16),
			invalidated: 1,
		},
		{
			name:        "new range covers a later entry",
			first:       rgba8(0x1400, 64, 4, 4),
			second:      rgba8(0x1000, 64, 16, 32),
			invalidated: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.caps)
			s1, v1, err := f.cache.AcquireColor(tt.first)
			if err != nil {
				t.Fatal(err)
			}
			s2, v2, err := f.cache.AcquireColor(tt.second)
			if err != nil {
				t.Fatal(err)
			}
			if (s1 == s2) != tt.reuse {
				t.Errorf("reused = %v, want %v", s1 == s2, tt.reuse)
			}
			if tt.altViews > 0 && v1 == v2 {
				t.Error("reuse with a different interpretation returned the same view")
			}
			if tt.reuse {
				x, y, _ := s2.Origin(tt.second.Address)
				if [2]uint32{x, y} != tt.origin {
					t.Errorf("origin = (%d,%d), want %v", x, y, tt.origin)
				}
			}
			st := f.cache.Stats()
			if st.AltViews != tt.altViews || st.Invalidations != tt.invalidated {
				t.Errorf("stats = %s", st)
			}
			if f.cache.Len(KindColor) != 1 {
				t.Errorf("Len = %d, want exactly one owner", f.cache.Len(KindColor))
			}
		})
	}
}

func TestLRUEviction(t *testing.T) {
	f := newFixture(t, nil, WithCapacity(2))
	c := f.cache
	a, _, _ := c.AcquireColor(rgba8(0x1000, 64, 16, 16))
	c.AcquireColor(rgba8(0x2000, 64, 16, 16))
	c.AcquireColor(a.req) // touch a
	c.AcquireColor(rgba8(0x3000, 64, 16, 16))

	if _, ok := c.Lookup(KindColor, 0x2000); ok {
		t.Error("least recently used surface survived")
	}
	if _, ok := c.Lookup(KindColor, 0x1000); !ok {
		t.Error("recently used surface was evicted")
	}
	if st := c.Stats(); st.Evictions != 1 || st.Invalidations != 0 {
		t.Errorf("stats = %s", st)
	}
}

func TestDepthStencil(t *testing.T) {
	f := newFixture(t, nil)
	d, _, err := f.cache.AcquireDepthStencil(Request{Address: 0x8000, Format: FormatD24S8, Width: 4, Height: 4})
	if err != nil {
		t.Fatal(err)
	}
	px, _ := f.be.Image(d.Image())
	if want := []byte{0xff, 0xff, 0xff, 0x00}; !bytes.Equal(px[:4], want) {
		t.Errorf("depth sentinel = %v, want %v", px[:4], want)
	}
	// Colour and depth indexes are separate.
	if _, ok := f.cache.Lookup(KindColor, 0x8000); ok {
		t.Error("depth surface visible in colour index")
	}
	if _, _, err := f.cache.AcquireDepthStencil(rgba8(0x9000, 16, 4, 4)); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("colour format as depth err = %v", err)
	}
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t, nil)
	bad := []Request{
		rgba8(0x1000, 64, 0, 16),
		{Address: 0x1000, Format: Format(200), Width: 4, Height: 4},
		rgba8(0x1000, 8, 16, 16),
		rgba8(0xfff00, 4096, 1024, 1024),
	}
	for _, req := range bad {
		if _, _, err := f.cache.AcquireColor(req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("AcquireColor(%+v) err = %v, want ErrInvalidRequest", req, err)
		}
	}
}

func TestGuestReadFlushesGPUOutput(t *testing.T) {
	f := newFixture(t, nil)
	c := f.cache
	req := rgba8(0x3000, 16, 4, 4)
	s, _, err := c.AcquireColor(req)
	if err != nil {
		t.Fatal(err)
	}

	pixels := make([]byte, 4*4*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	if err := f.be.WriteImage(s.Image(), backend.Rect{Width: 4, Height: 4}, pixels); err != nil {
		t.Fatal(err)
	}
	c.MarkRendered(s)
	if !s.Pending() {
		t.Fatal("rendered surface not pending")
	}

	got := make([]byte, len(pixels))
	if err := f.space.Read(0x3000, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, pixels) {
		t.Errorf("guest read = %v, want GPU output", got[:8])
	}
	if s.Pending() || !s.Dirty() {
		t.Errorf("after flush pending=%v dirty=%v", s.Pending(), s.Dirty())
	}
	if n := c.Stats().Flushes; n != 1 {
		t.Errorf("Flushes = %d, want 1", n)
	}

	// Unchanged guest memory is not uploaded again.
	c.AcquireColor(req)
	if n := c.Stats().Uploads; n != 0 {
		t.Errorf("Uploads after read-only access = %d, want 0", n)
	}

	c.MarkRendered(s)
	written := bytes.Repeat([]byte{9}, len(pixels))
	if err := f.space.Write(0x3000, written); err != nil {
		t.Fatal(err)
	}
	c.AcquireColor(req)
	if n := c.Stats().Uploads; n != 1 {
		t.Errorf("Uploads after guest write = %d, want 1", n)
	}
	host, _ := f.be.Image(s.Image())
	if !bytes.Equal(host, written) {
		t.Errorf("host image = %v, want guest bytes", host[:8])
	}
}

func TestFlushConvertsFormat(t *testing.T) {
	f := newFixture(t, nil)
	s, _, err := f.cache.AcquireColor(Request{Address: 0x5000, Format: FormatRGB565, Width: 2, Height: 1})
	if err != nil {
		t.Fatal(err)
	}
	red := []byte{0xff, 0, 0, 0xff, 0, 0, 0xff, 0xff}
	f.be.WriteImage(s.Image(), backend.Rect{Width: 2, Height: 1}, red)
	f.cache.MarkRendered(s)
	if err := f.cache.Flush(s); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 4)
	f.space.ReadSystem(0x5000, got)
	if want := []byte{0x00, 0xf8, 0x1f, 0x00}; !bytes.Equal(got, want) {
		t.Errorf("guest RGB565 = %x, want %x", got, want)
	}
}

func TestTiledSurfacesFlushAtSceneEnd(t *testing.T) {
	f := newFixture(t, nil)
	req := Request{Address: 0x10000, Format: FormatRGBA8, Layout: tiling.Tiled, Width: 32, Height: 32}
	s, _, err := f.cache.AcquireColor(req)
	if err != nil {
		t.Fatal(err)
	}
	f.cache.MarkRendered(s)
	if f.space.Tracker().Armed(mem.WatchID(s.id)) {
		t.Error("tiled surface armed a trap")
	}
	f.cache.EndScene()
	if s.Pending() || f.cache.Stats().Flushes != 1 {
		t.Errorf("tiled surface not flushed at scene end: %s", f.cache.Stats())
	}
}

func TestAlwaysSyncFallback(t *testing.T) {
	be := headless.New()
	be.Init()
	defer be.Close()
	space, _ := mem.NewSpace(1<<16, mem.WithoutHardwareTraps())
	defer space.Close()
	space.Tracker().Disable()

	c := New(be, space)
	defer c.Close()
	if !c.AlwaysSync() {
		t.Fatal("AlwaysSync() = false without trap support")
	}
	s, _, err := c.AcquireColor(rgba8(0x1000, 16, 4, 4))
	if err != nil {
		t.Fatal(err)
	}
	c.MarkRendered(s)
	c.EndScene()
	if s.Pending() || !s.Dirty() {
		t.Errorf("after scene pending=%v dirty=%v", s.Pending(), s.Dirty())
	}
}

func TestSyncDisabled(t *testing.T) {
	f := newFixture(t, nil, WithoutSync())
	s, _, _ := f.cache.AcquireColor(rgba8(0x1000, 16, 4, 4))
	f.cache.MarkRendered(s)
	if s.Pending() {
		t.Error("surface pending with sync disabled")
	}
	if n := f.cache.Sync(0x1000, 64); n != 0 {
		t.Errorf("Sync flushed %d surfaces", n)
	}
	if f.space.Tracker().Armed(mem.WatchID(s.id)) {
		t.Error("trap armed with sync disabled")
	}
}

func TestTextureSubrect(t *testing.T) {
	f := newFixture(t, nil)
	_, view, _ := f.cache.AcquireColor(rgba8(0x1000, 32, 8, 8))
	v, uv, err := f.cache.LookupTexture(rgba8(0x1000+32+8, 32, 4, 4))
	if err != nil {
		t.Fatal(err)
	}
	if v != view {
		t.Errorf("sub-rect view = %d, want %d", v, view)
	}
	if want := [4]float32{2.0 / 8, 1.0 / 8, 6.0 / 8, 5.0 / 8}; uv != want {
		t.Errorf("uv = %v, want %v", uv, want)
	}
	if n := f.cache.Stats().Casts; n != 0 {
		t.Errorf("Casts = %d, want 0", n)
	}
}

func TestTextureCastedCopies(t *testing.T) {
	f := newFixture(t, &backend.Caps{CopyImage: true, FormatViews: true})
	c := f.cache
	s, view, _ := c.AcquireColor(rgba8(0x1000, 32, 8, 8))
	sub := rgba8(0x1000+32+8, 32, 4, 4)

	v1, _, err := c.LookupTexture(sub)
	if err != nil {
		t.Fatal(err)
	}
	if v1 == view {
		t.Fatal("sub-rect without normalized sampling returned the surface view")
	}
	c.MarkRendered(s)
	v2, _, _ := c.LookupTexture(sub)
	if v1 != v2 {
		t.Error("casted copy not reused")
	}
	if st := c.Stats(); st.Casts != 1 || st.CastRefreshes != 1 {
		t.Errorf("same scene: %s", st)
	}

	c.EndScene()
	c.LookupTexture(sub)
	if n := c.Stats().CastRefreshes; n != 2 {
		t.Errorf("CastRefreshes after new scene = %d, want 2", n)
	}
	c.EndScene()
	c.LookupTexture(sub)
	if n := c.Stats().CastRefreshes; n != 2 {
		t.Errorf("unchanged source refreshed: %d", n)
	}

	// Same texel size, different channel order.
	c.LookupTexture(Request{Address: 0x1000, Format: FormatBGRA8, Stride: 32, Width: 8, Height: 8})
	if n := c.Stats().Casts; n != 2 {
		t.Errorf("Casts after reinterpretation = %d, want 2", n)
	}
}

func TestTextureWithOtherPitchReadsGuestMemory(t *testing.T) {
	f := newFixture(t, nil)
	c := f.cache
	s, view, _ := c.AcquireColor(rgba8(0x1000, 32, 8, 8))
	pixels := make([]byte, 8*8*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	if err := f.be.WriteImage(s.Image(), backend.Rect{Width: 8, Height: 8}, pixels); err != nil {
		t.Fatal(err)
	}
	c.MarkRendered(s)

	// Rows of 16 bytes over a surface with 32-byte rows.
	v, uv, err := c.LookupTexture(rgba8(0x1000, 16, 4, 4))
	if err != nil {
		t.Fatal(err)
	}
	if v == view || uv != backend.FullUV {
		t.Errorf("texture served from the surface: view %d uv %v", v, uv)
	}
	st := c.Stats()
	if st.Flushes != 1 || st.TextureUploads != 1 || st.Casts != 0 || st.Invalidations != 0 {
		t.Errorf("stats = %s", st)
	}
	if s.Pending() || c.Len(KindColor) != 1 {
		t.Errorf("surface pending=%v live=%d; want flushed and kept", s.Pending(), c.Len(KindColor))
	}

	var last []byte
	for id := backend.ImageID(1); id < 64; id++ {
		if px, ok := f.be.Image(id); ok {
			last = px
		}
	}
	if !bytes.Equal(last, pixels[:64]) {
		t.Errorf("uploaded texels = %v, want the flushed guest bytes", last[:8])
	}
}

func TestTextureUpload(t *testing.T) {
	f := newFixture(t, nil)
	c := f.cache
	req := Request{Address: 0x20000, Format: FormatABGR8, Width: 2, Height: 1}
	f.space.WriteSystem(0x20000, []byte{0xff, 3, 2, 1, 0x80, 6, 5, 4})

	v1, uv, err := c.LookupTexture(req)
	if err != nil {
		t.Fatal(err)
	}
	if uv != backend.FullUV {
		t.Errorf("uv = %v", uv)
	}
	v2, _, _ := c.LookupTexture(req)
	if v1 != v2 || c.Stats().TextureUploads != 1 {
		t.Errorf("unchanged texture uploaded again: %s", c.Stats())
	}

	f.space.WriteSystem(0x20000, []byte{0xff, 0, 0, 0})
	v3, _, _ := c.LookupTexture(req)
	if v3 == v1 || c.Stats().TextureUploads != 2 {
		t.Errorf("changed texture not uploaded: %s", c.Stats())
	}
}

func TestTextureUploadConvertsFormat(t *testing.T) {
	f := newFixture(t, nil)
	f.space.WriteSystem(0x20000, []byte{0xff, 3, 2, 1})
	if _, _, err := f.cache.LookupTexture(Request{Address: 0x20000, Format: FormatABGR8, Width: 1, Height: 1}); err != nil {
		t.Fatal(err)
	}
	// The uploaded image is the newest one.
	var last []byte
	for id := backend.ImageID(1); id < 64; id++ {
		if px, ok := f.be.Image(id); ok {
			last = px
		}
	}
	if want := []byte{1, 2, 3, 0xff}; !bytes.Equal(last, want) {
		t.Errorf("host texel = %v, want %v", last, want)
	}
}

func TestFramebufferSweep(t *testing.T) {
	f := newFixture(t, nil)
	c := f.cache
	_, cv, _ := c.AcquireColor(rgba8(0x1000, 64, 16, 16))
	_, dv, _ := c.AcquireDepthStencil(Request{Address: 0x8000, Format: FormatD24S8, Width: 16, Height: 16})

	fb1, err := c.Framebuffer(cv, dv)
	if err != nil {
		t.Fatal(err)
	}
	fb2, _ := c.Framebuffer(cv, dv)
	if fb1 != fb2 || c.Stats().Framebuffers != 1 {
		t.Errorf("framebuffer not cached: %d %d %s", fb1, fb2, c.Stats())
	}
	if st := c.Stats(); st.LiveFramebuffers != 1 || st.FramebufferHitRate != 0.5 {
		t.Errorf("live = %d, hit rate = %v; want 1, 0.5", st.LiveFramebuffers, st.FramebufferHitRate)
	}

	c.AcquireColor(Request{Address: 0x1000, Format: FormatBGRA8, Stride: 64, Width: 16, Height: 16})
	if n := f.be.Counters().Framebuffers; n != 1 {
		t.Errorf("framebuffer destroyed before scene end: live = %d", n)
	}
	c.EndScene()
	if n := f.be.Counters().Framebuffers; n != 0 {
		t.Errorf("live framebuffers after sweep = %d, want 0", n)
	}
	if n := c.Stats().LiveFramebuffers; n != 0 {
		t.Errorf("cached framebuffers after sweep = %d, want 0", n)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	f := newFixture(t, nil)
	c := f.cache
	_, cv, _ := c.AcquireColor(rgba8(0x1000, 64, 16, 16))
	c.AcquireColor(Request{Address: 0x1000, Format: FormatRGBA8, Stride: 64, Width: 16, Height: 16, SRGB: true})
	c.Framebuffer(cv, 0)
	f.space.WriteSystem(0x30000, make([]byte, 16))
	c.LookupTexture(rgba8(0x30000, 8, 2, 2))

	c.Close()
	n := f.be.Counters()
	if n.LiveImages() != 0 || n.LiveViews() != 0 || n.Framebuffers != 0 {
		t.Errorf("after Close: %+v", n)
	}
	if _, _, err := c.AcquireColor(rgba8(0x1000, 64, 16, 16)); !errors.Is(err, ErrClosed) {
		t.Errorf("acquire after Close err = %v", err)
	}
}

func TestFormatTable(t *testing.T) {
	for f := Format(0); f < formatCount; f++ {
		fi := f.Info()
		if fi.Name == "" || fi.BPP == 0 {
			t.Errorf("format %d has no description", f)
		}
		if (fi.ToHost == nil) != (fi.ToGuest == nil) {
			t.Errorf("%s converts one way only", f)
		}
		if fi.Exact() && backend.TexelSize(fi.Host) != uint32(fi.BPP) {
			t.Errorf("%s: exact format with host texel %d", f, backend.TexelSize(fi.Host))
		}
	}
	if Format(200).String() != "Unknown" || Format(200).Valid() {
		t.Error("unknown format accepted")
	}
}

func TestStatsString(t *testing.T) {
	s := Stats{Hits: 3, Evictions: 1}
	if got := s.String(); !strings.Contains(got, "hits=3") || !strings.Contains(got, "evicted=1") {
		t.Errorf("String() = %q", got)
	}
}
