// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import "github.com/gogpu/gputypes"

// Primitive is the primitive type of a draw.
type Primitive uint8

const (
	PrimitiveTriangles Primitive = iota
	PrimitiveLines
	PrimitivePoints
	PrimitiveTriangleStrip
	PrimitiveTriangleFan
)

var primitiveNames = [...]string{
	PrimitiveTriangles:     "Triangles",
	PrimitiveLines:         "Lines",
	PrimitivePoints:        "Points",
	PrimitiveTriangleStrip: "TriangleStrip",
	PrimitiveTriangleFan:   "TriangleFan",
}

// String returns the string representation of a Primitive.
func (p Primitive) String() string {
	if int(p) < len(primitiveNames) {
		return primitiveNames[p]
	}
	return "Unknown"
}

// Topology maps p to a host topology. Fans have no host equivalent and
// must be rewritten to lists before they reach a backend.
func (p Primitive) Topology() (gputypes.PrimitiveTopology, bool) {
	switch p {
	case PrimitiveTriangles:
		return gputypes.PrimitiveTopologyTriangleList, true
	case PrimitiveLines:
		return gputypes.PrimitiveTopologyLineList, true
	case PrimitivePoints:
		return gputypes.PrimitiveTopologyPointList, true
	case PrimitiveTriangleStrip:
		return gputypes.PrimitiveTopologyTriangleStrip, true
	}
	return 0, false
}

// Stream is one vertex stream, already sliced to the vertices the draw
// references.
type Stream struct {
	Data   []byte
	Stride uint32
}

// Texture binds a sampled view to a fragment texture slot. UV restricts
// sampling to a normalized sub-rectangle; the zero value means the whole
// view.
type Texture struct {
	Slot   int
	View   ViewID
	UV     [4]float32 // u0, v0, u1, v1
	Linear bool
}

// FullUV covers the whole view.
var FullUV = [4]float32{0, 0, 1, 1}

// DrawCall is a fully resolved draw.
type DrawCall struct {
	Framebuffer FramebufferID
	Width       uint32
	Height      uint32
	Pipeline    PipelineID
	Primitive   Primitive

	// X and Y place the guest target inside the framebuffer when it is a
	// sub-rectangle of a larger surface. Viewport and clip are relative
	// to this origin.
	X, Y uint32

	IndexFormat gputypes.IndexFormat
	Indices     []byte
	IndexCount  uint32
	Instances   uint32

	Streams          []Stream
	VertexUniforms   []byte
	FragmentUniforms []byte
	Textures         []Texture
}

// Region returns the pixels of a w x h framebuffer the draw may touch.
// A zero Width or Height extends to the framebuffer edge.
func (c *DrawCall) Region(w, h uint32) Rect {
	x, y := min(c.X, w), min(c.Y, h)
	r := Rect{X: x, Y: y, Width: w - x, Height: h - y}
	if c.Width != 0 {
		r.Width = min(r.Width, c.Width)
	}
	if c.Height != 0 {
		r.Height = min(r.Height, c.Height)
	}
	return r
}

// IndexSize returns the size in bytes of one index.
func IndexSize(f gputypes.IndexFormat) uint32 {
	if f == gputypes.IndexFormatUint32 {
		return 4
	}
	return 2
}

// TexelSize returns the size in bytes of one texel of an uncompressed
// format, or 0 for formats that are not byte addressable.
func TexelSize(f gputypes.TextureFormat) uint32 {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint,
		gputypes.TextureFormatStencil8:
		return 1
	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Snorm,
		gputypes.TextureFormatR16Uint, gputypes.TextureFormatR16Sint,
		gputypes.TextureFormatR16Float, gputypes.TextureFormatRG8Unorm,
		gputypes.TextureFormatRG8Snorm, gputypes.TextureFormatRG8Uint,
		gputypes.TextureFormatRG8Sint, gputypes.TextureFormatDepth16Unorm:
		return 2
	case gputypes.TextureFormatR32Float, gputypes.TextureFormatR32Uint,
		gputypes.TextureFormatR32Sint, gputypes.TextureFormatRG16Unorm,
		gputypes.TextureFormatRG16Snorm, gputypes.TextureFormatRG16Uint,
		gputypes.TextureFormatRG16Sint, gputypes.TextureFormatRG16Float,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatRGBA8Snorm, gputypes.TextureFormatRGBA8Uint,
		gputypes.TextureFormatRGBA8Sint, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatBGRA8UnormSrgb, gputypes.TextureFormatRGB10A2Uint,
		gputypes.TextureFormatRGB10A2Unorm, gputypes.TextureFormatRG11B10Ufloat,
		gputypes.TextureFormatRGB9E5Ufloat, gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32Float:
		return 4
	case gputypes.TextureFormatRG32Float, gputypes.TextureFormatRG32Uint,
		gputypes.TextureFormatRG32Sint, gputypes.TextureFormatRGBA16Unorm,
		gputypes.TextureFormatRGBA16Snorm, gputypes.TextureFormatRGBA16Uint,
		gputypes.TextureFormatRGBA16Sint, gputypes.TextureFormatRGBA16Float,
		gputypes.TextureFormatDepth32FloatStencil8:
		return 8
	case gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Uint,
		gputypes.TextureFormatRGBA32Sint:
		return 16
	}
	return 0
}
