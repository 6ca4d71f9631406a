// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gxm/shader"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrUnknownObject is returned for an ID the backend does not own.
	ErrUnknownObject = errors.New("backend: unknown object")

	// ErrUnsupported is returned for an operation outside the backend's Caps.
	ErrUnsupported = errors.New("backend: unsupported operation")

	// ErrOutOfBounds is returned when a rectangle exceeds an image.
	ErrOutOfBounds = errors.New("backend: rectangle out of bounds")
)

// Host object IDs. Zero is never a valid ID.
type (
	ContextID      uint64
	RenderTargetID uint64
	ImageID        uint64
	ViewID         uint64
	FramebufferID  uint64
	PipelineID     uint64
)

// Usage is a set of ways a host image is used.
type Usage uint8

const (
	UsageRenderTarget Usage = 1 << iota
	UsageDepthStencil
	UsageSampled
	UsageTransfer
)

// Has reports whether u contains all of v.
func (u Usage) Has(v Usage) bool { return u&v == v }

// ImageDesc describes a host image.
type ImageDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat
	Usage  Usage
}

// ViewDesc describes a view of an image. A zero Format keeps the image
// format. ByteOffset selects a component inside packed pixels and needs
// Caps.ComponentViews.
type ViewDesc struct {
	Format     gputypes.TextureFormat
	ByteOffset uint32
}

// Rect is a pixel rectangle.
type Rect struct {
	X, Y          uint32
	Width, Height uint32
}

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool { return r.Width == 0 || r.Height == 0 }

// Within reports whether r lies inside a w x h image.
func (r Rect) Within(w, h uint32) bool {
	return uint64(r.X)+uint64(r.Width) <= uint64(w) && uint64(r.Y)+uint64(r.Height) <= uint64(h)
}

// ClearValue is written to new host storage and by ClearImage.
type ClearValue struct {
	Color   gputypes.Color
	Depth   float32
	Stencil uint32
}

// Caps advertises optional behaviour.
type Caps struct {
	// NormalizedSubrect means a sampled view can be restricted to a
	// sub-rectangle by texture coordinates alone.
	NormalizedSubrect bool

	// CopyImage means CopyImage is implemented on the device.
	CopyImage bool

	// FormatViews means CreateView accepts a format other than the image's
	// when both have the same texel size.
	FormatViews bool

	// ComponentViews means CreateView accepts a non-zero ByteOffset.
	ComponentViews bool
}

// RenderTargetDesc describes a guest render target. The host object only
// carries tiling information; surfaces are bound separately.
type RenderTargetDesc struct {
	Width        uint32
	Height       uint32
	Scenes       uint32
	MultisampleX uint32
}

// Backend is the capability interface of a host graphics device.
type Backend interface {
	// Name returns the backend identifier (e.g., "headless", "wgpu").
	Name() string

	// Init initializes the backend.
	Init() error

	// Close releases all backend resources.
	Close()

	// Caps returns the optional capabilities of the backend.
	Caps() Caps

	CreateContext() (ContextID, error)
	DestroyContext(id ContextID)

	CreateRenderTarget(desc RenderTargetDesc) (RenderTargetID, error)
	DestroyRenderTarget(id RenderTargetID)

	CreateImage(desc ImageDesc) (ImageID, error)
	DestroyImage(id ImageID)

	CreateView(image ImageID, desc ViewDesc) (ViewID, error)
	DestroyView(id ViewID)

	// ClearImage fills the whole image.
	ClearImage(id ImageID, v ClearValue) error

	// WriteImage uploads tightly packed rows in the image format.
	WriteImage(id ImageID, r Rect, data []byte) error

	// ReadImage reads tightly packed rows in the image format. It waits for
	// all prior GPU work on the image.
	ReadImage(id ImageID, r Rect, dst []byte) error

	// CopyImage copies src r to dst at (dstX, dstY). Both images must share
	// a texel size.
	CopyImage(dst ImageID, dstX, dstY uint32, src ImageID, r Rect) error

	// CreateFramebuffer binds a colour view and an optional depth-stencil
	// view as one render target. Either may be zero but not both.
	CreateFramebuffer(color, depth ViewID) (FramebufferID, error)
	DestroyFramebuffer(id FramebufferID)

	// LinkProgram links a vertex and fragment module.
	LinkProgram(vertex, fragment *shader.Module) (PipelineID, error)
	DestroyPipeline(id PipelineID)

	// ApplyState applies one fixed-function state change to a context.
	ApplyState(ctx ContextID, change StateChange) error

	// Draw executes a draw with the context's current state.
	Draw(ctx ContextID, call *DrawCall) error
}

// Open looks a backend up by name, or picks the best available one for an
// empty name, and initializes it.
func Open(name string) (Backend, error) {
	if name == "" {
		return InitDefault()
	}
	if !IsRegistered(name) {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrBackendNotAvailable, name, strings.Join(Available(), ", "))
	}
	b := Get(name)
	if b == nil {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	if err := b.Init(); err != nil {
		return nil, fmt.Errorf("backend %s: init: %w", name, err)
	}
	return b, nil
}
