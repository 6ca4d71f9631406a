// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package state

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/command"
)

// Args is the argument block of one SetState sub-opcode. A SetState
// payload is the sub-opcode as a uint16 followed by its Args.
type Args interface {
	StateOp() command.StateOp
}

// blobArgs is implemented by arguments that carry variable-length data
// and cannot be encoded as one fixed-size value.
type blobArgs interface {
	encode(e *command.Encoder)
}

// AppendSetState encodes a SetState payload for a into e.
func AppendSetState(e *command.Encoder, a Args) *command.Encoder {
	e.Uint16(uint16(a.StateOp()))
	if b, ok := a.(blobArgs); ok {
		b.encode(e)
		return e
	}
	return e.Value(a)
}

// Guest enum values as they appear on the wire.
const (
	FaceFront uint8 = 1
	FaceBack  uint8 = 2
	FaceBoth  uint8 = 3
)

// Guest compare functions.
const (
	CompareNever uint8 = iota
	CompareLess
	CompareEqual
	CompareLessEqual
	CompareGreater
	CompareNotEqual
	CompareGreaterEqual
	CompareAlways
)

var compareFuncs = [...]gputypes.CompareFunction{
	CompareNever:        gputypes.CompareFunctionNever,
	CompareLess:         gputypes.CompareFunctionLess,
	CompareEqual:        gputypes.CompareFunctionEqual,
	CompareLessEqual:    gputypes.CompareFunctionLessEqual,
	CompareGreater:      gputypes.CompareFunctionGreater,
	CompareNotEqual:     gputypes.CompareFunctionNotEqual,
	CompareGreaterEqual: gputypes.CompareFunctionGreaterEqual,
	CompareAlways:       gputypes.CompareFunctionAlways,
}

// Guest stencil operations.
const (
	StencilKeep uint8 = iota
	StencilZero
	StencilReplace
	StencilIncr
	StencilDecr
	StencilInvert
	StencilIncrWrap
	StencilDecrWrap
)

var stencilOps = [...]gputypes.StencilOperation{
	StencilKeep:     gputypes.StencilOperationKeep,
	StencilZero:     gputypes.StencilOperationZero,
	StencilReplace:  gputypes.StencilOperationReplace,
	StencilIncr:     gputypes.StencilOperationIncrementClamp,
	StencilDecr:     gputypes.StencilOperationDecrementClamp,
	StencilInvert:   gputypes.StencilOperationInvert,
	StencilIncrWrap: gputypes.StencilOperationIncrementWrap,
	StencilDecrWrap: gputypes.StencilOperationDecrementWrap,
}

// Guest cull modes.
const (
	CullNone uint8 = iota
	CullFront
	CullBack
)

var cullModes = [...]gputypes.CullMode{
	CullNone:  gputypes.CullModeNone,
	CullFront: gputypes.CullModeFront,
	CullBack:  gputypes.CullModeBack,
}

// Guest blend factors.
const (
	BlendZero uint8 = iota
	BlendOne
	BlendSrcColor
	BlendOneMinusSrcColor
	BlendSrcAlpha
	BlendOneMinusSrcAlpha
	BlendDstColor
	BlendOneMinusDstColor
	BlendDstAlpha
	BlendOneMinusDstAlpha
	BlendSrcAlphaSaturate
)

var blendFactors = [...]gputypes.BlendFactor{
	BlendZero:             gputypes.BlendFactorZero,
	BlendOne:              gputypes.BlendFactorOne,
	BlendSrcColor:         gputypes.BlendFactorSrc,
	BlendOneMinusSrcColor: gputypes.BlendFactorOneMinusSrc,
	BlendSrcAlpha:         gputypes.BlendFactorSrcAlpha,
	BlendOneMinusSrcAlpha: gputypes.BlendFactorOneMinusSrcAlpha,
	BlendDstColor:         gputypes.BlendFactorDst,
	BlendOneMinusDstColor: gputypes.BlendFactorOneMinusDst,
	BlendDstAlpha:         gputypes.BlendFactorDstAlpha,
	BlendOneMinusDstAlpha: gputypes.BlendFactorOneMinusDstAlpha,
	BlendSrcAlphaSaturate: gputypes.BlendFactorSrcAlphaSaturated,
}

// Guest blend equations.
const (
	BlendOpAdd uint8 = iota
	BlendOpSubtract
	BlendOpReverseSubtract
	BlendOpMin
	BlendOpMax
)

var blendOps = [...]gputypes.BlendOperation{
	BlendOpAdd:             gputypes.BlendOperationAdd,
	BlendOpSubtract:        gputypes.BlendOperationSubtract,
	BlendOpReverseSubtract: gputypes.BlendOperationReverseSubtract,
	BlendOpMin:             gputypes.BlendOperationMin,
	BlendOpMax:             gputypes.BlendOperationMax,
}

// lookup returns table[v], or false when v is out of range.
func lookup[T any](table []T, v uint8) (T, bool) {
	if int(v) >= len(table) {
		var zero T
		return zero, false
	}
	return table[v], true
}

// RegionClipArgs is the argument of StateRegionClip. Mode takes the
// backend.ClipMode values.
type RegionClipArgs struct {
	Mode                uint8
	X, Y, Width, Height uint32
}

// ViewportArgs is the argument of StateViewport.
type ViewportArgs struct {
	Enabled            bool
	X, Y               float32
	Width, Height      float32
	MinDepth, MaxDepth float32
}

// DepthBiasArgs is the argument of StateDepthBias.
type DepthBiasArgs struct {
	Face   uint8
	Units  int32
	Factor float32
}

// DepthFuncArgs is the argument of StateDepthFunc.
type DepthFuncArgs struct {
	Face uint8
	Func uint8
}

// DepthWriteArgs is the argument of StateDepthWriteEnable.
type DepthWriteArgs struct {
	Face   uint8
	Enable bool
}

// PolygonModeArgs is the argument of StatePolygonMode. Mode takes the
// backend.PolygonMode values.
type PolygonModeArgs struct {
	Face uint8
	Mode uint8
}

// PointLineWidthArgs is the argument of StatePointLineWidth.
type PointLineWidthArgs struct {
	Face  uint8
	Width uint32
}

// StencilFuncArgs is the argument of StateStencilFunc.
type StencilFuncArgs struct {
	Face        uint8
	Func        uint8
	StencilFail uint8
	DepthFail   uint8
	DepthPass   uint8
	ReadMask    uint8
	WriteMask   uint8
}

// StencilRefArgs is the argument of StateStencilRef.
type StencilRefArgs struct {
	Face uint8
	Ref  uint8
}

// TwoSidedArgs is the argument of StateTwoSided.
type TwoSidedArgs struct {
	Enable bool
}

// CullModeArgs is the argument of StateCullMode.
type CullModeArgs struct {
	Mode uint8
}

// BlendArgs is the blend information carried by a fragment program.
type BlendArgs struct {
	Enable         bool
	ColorSrc       uint8
	ColorDst       uint8
	ColorOp        uint8
	AlphaSrc       uint8
	AlphaDst       uint8
	AlphaOp        uint8
	WriteMask      uint8 // gputypes.ColorWriteMask bits
	WriteMaskValid bool  // false keeps all channels
}

// ProgramArgs is the argument of StateProgram: binds a vertex or
// fragment program. Blend is ignored for vertex programs. Empty Code
// unbinds the stage.
type ProgramArgs struct {
	Stage uint8 // shader.Stage
	Blend BlendArgs
	Code  []byte
}

func (a ProgramArgs) encode(e *command.Encoder) {
	e.Uint8(a.Stage).Value(a.Blend).Bytes(a.Code)
}

// TextureArgs is the argument of StateFragmentTexture. A zero Width
// unbinds the slot.
type TextureArgs struct {
	Slot    uint8
	Address uint32
	Format  uint8 // surface.Format
	Layout  uint8 // tiling.Layout
	Stride  uint32
	Width   uint32
	Height  uint32
	Linear  bool
	SRGB    bool
}

// VertexStreamArgs is the argument of StateVertexStream.
type VertexStreamArgs struct {
	Index   uint8
	Address uint32
	Stride  uint32
}

// UniformArgs is the argument of StateUniform: a write of one guest
// uniform parameter of the bound program of a stage.
type UniformArgs struct {
	Stage uint8
	Index uint16
	Data  []byte
}

func (a UniformArgs) encode(e *command.Encoder) {
	e.Uint8(a.Stage).Uint16(a.Index).Bytes(a.Data)
}

func (RegionClipArgs) StateOp() command.StateOp     { return command.StateRegionClip }
func (ViewportArgs) StateOp() command.StateOp       { return command.StateViewport }
func (DepthBiasArgs) StateOp() command.StateOp      { return command.StateDepthBias }
func (DepthFuncArgs) StateOp() command.StateOp      { return command.StateDepthFunc }
func (DepthWriteArgs) StateOp() command.StateOp     { return command.StateDepthWriteEnable }
func (PolygonModeArgs) StateOp() command.StateOp    { return command.StatePolygonMode }
func (PointLineWidthArgs) StateOp() command.StateOp { return command.StatePointLineWidth }
func (StencilFuncArgs) StateOp() command.StateOp    { return command.StateStencilFunc }
func (StencilRefArgs) StateOp() command.StateOp     { return command.StateStencilRef }
func (TwoSidedArgs) StateOp() command.StateOp       { return command.StateTwoSided }
func (CullModeArgs) StateOp() command.StateOp       { return command.StateCullMode }
func (ProgramArgs) StateOp() command.StateOp        { return command.StateProgram }
func (TextureArgs) StateOp() command.StateOp        { return command.StateFragmentTexture }
func (VertexStreamArgs) StateOp() command.StateOp   { return command.StateVertexStream }
func (UniformArgs) StateOp() command.StateOp        { return command.StateUniform }

// DrawArgs is the payload of OpDraw. Indices and vertex streams are read
// from guest memory.
type DrawArgs struct {
	Primitive    uint8 // backend.Primitive
	IndexFormat  uint8 // 0 = uint16, 1 = uint32
	IndexAddress uint32
	IndexCount   uint32
	Instances    uint32
}

// AppendDraw encodes an OpDraw payload into e.
func AppendDraw(e *command.Encoder, a DrawArgs) *command.Encoder {
	return e.Value(a)
}

// indexFormat maps the wire index format.
func (a DrawArgs) indexFormat() gputypes.IndexFormat {
	if a.IndexFormat == 1 {
		return gputypes.IndexFormatUint32
	}
	return gputypes.IndexFormatUint16
}

func face(v uint8) (backend.Face, bool) {
	f := backend.Face(v)
	return f, f != 0 && f&^backend.FaceBoth == 0
}
