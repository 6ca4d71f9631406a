// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gxm

import (
	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/internal/tiling"
	"github.com/gogpu/gxm/surface"
)

// Guest memory layouts of a surface.
const (
	LayoutLinear   = uint8(tiling.Linear)
	LayoutSwizzled = uint8(tiling.Swizzled)
	LayoutTiled    = uint8(tiling.Tiled)
)

// SurfaceArgs describes one attachment of a scene. A zero Width leaves
// the attachment unbound.
type SurfaceArgs struct {
	Address uint32
	Format  uint8 // surface.Format
	Layout  uint8 // tiling.Layout
	Stride  uint32
	Width   uint32
	Height  uint32
	SRGB    bool
}

// Bound reports whether the attachment is used.
func (a SurfaceArgs) Bound() bool { return a.Width != 0 }

func (a SurfaceArgs) request() surface.Request {
	return surface.Request{
		Address: a.Address,
		Format:  surface.Format(a.Format),
		Layout:  tiling.Layout(a.Layout),
		Stride:  a.Stride,
		Width:   a.Width,
		Height:  a.Height,
		SRGB:    a.SRGB,
	}
}

// SetContextArgs is the payload of OpSetContext: the colour and
// depth-stencil surfaces the context renders into until the next
// SetContext.
type SetContextArgs struct {
	Color SurfaceArgs
	Depth SurfaceArgs
}

// ObjectArgs is the payload of OpCreateContext, OpDestroyContext and
// OpDestroyRenderTarget.
type ObjectArgs struct {
	ID uint32
}

// RenderTargetArgs is the payload of OpCreateRenderTarget.
type RenderTargetArgs struct {
	ID           uint32
	Width        uint32
	Height       uint32
	Scenes       uint32
	MultisampleX uint32
}

func (a RenderTargetArgs) desc() backend.RenderTargetDesc {
	return backend.RenderTargetDesc{
		Width:        a.Width,
		Height:       a.Height,
		Scenes:       a.Scenes,
		MultisampleX: a.MultisampleX,
	}
}

// SyncArgs is the payload of OpSyncSurfaceData.
type SyncArgs struct {
	Address uint32
	Size    uint32
}

// SignalArgs is the payload of OpSignalSyncObject.
type SignalArgs struct {
	ID    uint32
	Value uint32
}
