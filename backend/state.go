// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gxm/command"
)

// StateChange is one fixed-function state update. Each type corresponds
// to a SetState sub-opcode.
type StateChange interface {
	StateOp() command.StateOp
}

// Face selects which triangle faces a two-sided state applies to.
type Face uint8

const (
	FaceFront Face = 1 << iota
	FaceBack

	FaceBoth = FaceFront | FaceBack
)

// Has reports whether f includes g.
func (f Face) Has(g Face) bool { return f&g != 0 }

// ClipMode is the region clip mode.
type ClipMode uint8

const (
	ClipNone    ClipMode = iota // no scissor
	ClipOutside                 // draw only inside the rectangle
	ClipInside                  // draw only outside the rectangle
	ClipAll                     // reject everything
)

// PolygonMode selects rasterization of triangles.
type PolygonMode uint8

const (
	PolygonFill PolygonMode = iota
	PolygonLine
	PolygonPoint
)

// RegionClip sets the scissor region.
type RegionClip struct {
	Mode ClipMode
	Rect Rect
}

// Viewport sets the viewport transform in pixels.
type Viewport struct {
	Enabled       bool
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// DepthBias sets the constant and slope depth bias.
type DepthBias struct {
	Face   Face
	Units  int32
	Factor float32
}

// DepthFunc sets the depth compare function.
type DepthFunc struct {
	Face Face
	Func gputypes.CompareFunction
}

// DepthWrite enables or disables depth writes.
type DepthWrite struct {
	Face   Face
	Enable bool
}

// Polygon sets the rasterization mode.
type Polygon struct {
	Face Face
	Mode PolygonMode
}

// PointLineWidth sets the point size and line width.
type PointLineWidth struct {
	Face  Face
	Width uint32
}

// StencilFunc sets the stencil test.
type StencilFunc struct {
	Face      Face
	State     gputypes.StencilFaceState
	ReadMask  uint8
	WriteMask uint8
}

// StencilRef sets the stencil reference value.
type StencilRef struct {
	Face Face
	Ref  uint8
}

// TwoSided switches between shared and per-face depth-stencil state.
type TwoSided struct {
	Enable bool
}

// Cull sets face culling.
type Cull struct {
	Mode gputypes.CullMode
}

// ProgramBinding binds a linked pipeline and the blend state carried by
// the fragment program.
type ProgramBinding struct {
	Pipeline  PipelineID
	Blend     *gputypes.BlendState // nil disables blending
	WriteMask gputypes.ColorWriteMask
}

func (RegionClip) StateOp() command.StateOp     { return command.StateRegionClip }
func (Viewport) StateOp() command.StateOp       { return command.StateViewport }
func (DepthBias) StateOp() command.StateOp      { return command.StateDepthBias }
func (DepthFunc) StateOp() command.StateOp      { return command.StateDepthFunc }
func (DepthWrite) StateOp() command.StateOp     { return command.StateDepthWriteEnable }
func (Polygon) StateOp() command.StateOp        { return command.StatePolygonMode }
func (PointLineWidth) StateOp() command.StateOp { return command.StatePointLineWidth }
func (StencilFunc) StateOp() command.StateOp    { return command.StateStencilFunc }
func (StencilRef) StateOp() command.StateOp     { return command.StateStencilRef }
func (TwoSided) StateOp() command.StateOp       { return command.StateTwoSided }
func (Cull) StateOp() command.StateOp           { return command.StateCullMode }
func (ProgramBinding) StateOp() command.StateOp { return command.StateProgram }

// FixedState is the fixed-function state of a context as a backend sees
// it after applying every StateChange in order. Backends embed it to track
// their contexts.
type FixedState struct {
	Clip           RegionClip
	Viewport       Viewport
	TwoSided       bool
	Front, Back    FaceState
	Cull           gputypes.CullMode
	Program        ProgramBinding
	PointLineWidth uint32
}

// FaceState is the per-face part of FixedState.
type FaceState struct {
	DepthFunc  gputypes.CompareFunction
	DepthWrite bool
	BiasUnits  int32
	BiasFactor float32
	Polygon    PolygonMode
	Stencil    gputypes.StencilFaceState
	ReadMask   uint8
	WriteMask  uint8
	Ref        uint8
}

// DefaultFixedState returns the state of a fresh context.
func DefaultFixedState() FixedState {
	face := FaceState{
		DepthFunc:  gputypes.CompareFunctionAlways,
		DepthWrite: true,
		Stencil:    gputypes.DefaultStencilFaceState(),
		ReadMask:   0xff,
		WriteMask:  0xff,
	}
	return FixedState{
		Front:          face,
		Back:           face,
		Cull:           gputypes.CullModeNone,
		PointLineWidth: 1,
		Program:        ProgramBinding{WriteMask: gputypes.ColorWriteMaskAll},
	}
}

// Apply folds one change into s.
func (s *FixedState) Apply(c StateChange) {
	faces := func(f Face, fn func(*FaceState)) {
		if f.Has(FaceFront) {
			fn(&s.Front)
		}
		if f.Has(FaceBack) {
			fn(&s.Back)
		}
	}
	switch c := c.(type) {
	case RegionClip:
		s.Clip = c
	case Viewport:
		s.Viewport = c
	case DepthBias:
		faces(c.Face, func(fs *FaceState) { fs.BiasUnits, fs.BiasFactor = c.Units, c.Factor })
	case DepthFunc:
		faces(c.Face, func(fs *FaceState) { fs.DepthFunc = c.Func })
	case DepthWrite:
		faces(c.Face, func(fs *FaceState) { fs.DepthWrite = c.Enable })
	case Polygon:
		faces(c.Face, func(fs *FaceState) { fs.Polygon = c.Mode })
	case PointLineWidth:
		s.PointLineWidth = c.Width
	case StencilFunc:
		faces(c.Face, func(fs *FaceState) {
			fs.Stencil, fs.ReadMask, fs.WriteMask = c.State, c.ReadMask, c.WriteMask
		})
	case StencilRef:
		faces(c.Face, func(fs *FaceState) { fs.Ref = c.Ref })
	case TwoSided:
		s.TwoSided = c.Enable
	case Cull:
		s.Cull = c.Mode
	case ProgramBinding:
		s.Program = c
	}
}

// Effective returns the face states in effect. Without two-sided mode the
// front state applies to both faces.
func (s *FixedState) Effective() (front, back FaceState) {
	if s.TwoSided {
		return s.Front, s.Back
	}
	return s.Front, s.Front
}
