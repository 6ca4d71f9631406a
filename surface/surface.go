// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"errors"
	"fmt"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/internal/tiling"
)

// Errors returned by the cache.
var (
	ErrInvalidRequest = errors.New("surface: invalid request")
	ErrClosed         = errors.New("surface: cache closed")
)

// Kind separates colour surfaces from depth-stencil surfaces. Each kind
// has its own address index and slot ring.
type Kind uint8

const (
	KindColor Kind = iota
	KindDepthStencil
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	if k == KindDepthStencil {
		return "DepthStencil"
	}
	return "Color"
}

// Request describes one guest access to surface memory.
type Request struct {
	Address uint32
	Format  Format
	Layout  tiling.Layout
	Stride  uint32 // bytes per row for Linear; 0 means tightly packed
	Width   uint32
	Height  uint32

	// SRGB asks for an sRGB view of a colour surface.
	SRGB bool
}

// normalize fills in the packed stride and checks the request.
func (r Request) normalize(kind Kind) (Request, error) {
	fi := r.Format.Info()
	if fi == nil {
		return r, fmt.Errorf("%w: format %d", ErrInvalidRequest, r.Format)
	}
	if fi.Depth != (kind == KindDepthStencil) {
		return r, fmt.Errorf("%w: %s format for %s surface", ErrInvalidRequest, r.Format, kind)
	}
	if r.Width == 0 || r.Height == 0 {
		return r, fmt.Errorf("%w: %dx%d", ErrInvalidRequest, r.Width, r.Height)
	}
	if r.Layout != tiling.Linear || r.Stride == 0 {
		r.Stride = r.Width * uint32(fi.BPP)
	}
	if r.Stride < r.Width*uint32(fi.BPP) {
		return r, fmt.Errorf("%w: stride %d below row of %d bytes", ErrInvalidRequest, r.Stride, r.Width*uint32(fi.BPP))
	}
	return r, nil
}

func (r Request) geometry() tiling.Surface {
	return tiling.Surface{
		Layout: r.Layout,
		Width:  int(r.Width),
		Height: int(r.Height),
		BPP:    r.Format.Info().BPP,
		Stride: int(r.Stride),
	}
}

// Surface is one cache entry: a host image standing for a range of guest
// memory. Surfaces are owned by the cache; callers hold them for the
// duration of a scene at most.
type Surface struct {
	kind Kind
	id   uint64
	req  Request
	geom tiling.Surface
	size uint32

	image backend.ImageID
	view  backend.ViewID
	views map[viewKey]backend.ViewID
	casts map[castKey]*cast

	slot     int
	lastUsed uint64
	version  uint64 // bumped on every GPU write

	// hostNewer is set while the host image holds GPU output that guest
	// memory has not seen yet.
	hostNewer bool
	// guestDirty is set when guest code may have written the backing
	// memory after the last GPU write.
	guestDirty bool
	guestHash  uint64
	hashValid  bool
	watched    bool
}

type viewKey struct {
	srgb   bool
	offset uint32
}

// Kind returns the surface kind.
func (s *Surface) Kind() Kind { return s.kind }

// Address returns the guest base address.
func (s *Surface) Address() uint32 { return s.req.Address }

// Size returns the number of guest bytes the surface covers.
func (s *Surface) Size() uint32 { return s.size }

// End returns the first guest address past the surface.
func (s *Surface) End() uint64 { return uint64(s.req.Address) + uint64(s.size) }

// Format returns the guest format.
func (s *Surface) Format() Format { return s.req.Format }

// Layout returns the guest memory layout.
func (s *Surface) Layout() tiling.Layout { return s.req.Layout }

// Stride returns the guest row pitch in bytes.
func (s *Surface) Stride() uint32 { return s.req.Stride }

// Width returns the width in pixels.
func (s *Surface) Width() uint32 { return s.req.Width }

// Height returns the height in pixels.
func (s *Surface) Height() uint32 { return s.req.Height }

// Image returns the host image.
func (s *Surface) Image() backend.ImageID { return s.image }

// View returns the primary host view.
func (s *Surface) View() backend.ViewID { return s.view }

// Dirty reports whether guest code may have written the backing memory
// since the GPU last wrote it.
func (s *Surface) Dirty() bool { return s.guestDirty }

// Pending reports whether the host image holds output not yet flushed to
// guest memory.
func (s *Surface) Pending() bool { return s.hostNewer }

func (s *Surface) String() string {
	return fmt.Sprintf("%s %s %dx%d @%#x+%#x %s", s.kind, s.req.Format, s.req.Width, s.req.Height,
		s.req.Address, s.size, s.req.Layout)
}

// contains reports whether addr lies inside the surface.
func (s *Surface) contains(addr uint32) bool {
	return addr >= s.req.Address && uint64(addr) < s.End()
}

// Origin returns the pixel position of addr inside the surface. It
// reports false when addr is not the start of a pixel of a linear
// surface.
func (s *Surface) Origin(addr uint32) (x, y uint32, ok bool) {
	if !s.contains(addr) {
		return 0, 0, false
	}
	off := addr - s.req.Address
	if off == 0 {
		return 0, 0, true
	}
	bpp := uint32(s.geom.BPP)
	if s.req.Layout != tiling.Linear || bpp == 0 || (off%s.req.Stride)%bpp != 0 {
		return 0, 0, false
	}
	return (off % s.req.Stride) / bpp, off / s.req.Stride, true
}

// holds reports whether r is a same-layout sub-rectangle of s starting at
// pixel (x, y).
func (s *Surface) holds(r Request) (x, y uint32, ok bool) {
	if !s.sameLayout(r) {
		return 0, 0, false
	}
	if x, y, ok = s.Origin(r.Address); !ok {
		return 0, 0, false
	}
	if uint64(x)+uint64(r.Width) > uint64(s.req.Width) || uint64(y)+uint64(r.Height) > uint64(s.req.Height) {
		return 0, 0, false
	}
	return x, y, true
}

// sameLayout reports whether r reads memory the same way s stores it.
func (s *Surface) sameLayout(r Request) bool {
	return s.req.Format == r.Format && s.req.Layout == r.Layout && s.req.Stride == r.Stride
}
