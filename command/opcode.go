// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import "strconv"

// Opcode identifies a top-level command. Values are the wire format
// shared with the guest-call layer and must not be renumbered.
type Opcode uint16

const (
	OpSetContext         Opcode = iota // Bind a rendering context and its surfaces for the scene
	OpSyncSurfaceData                  // Flush host surface content back to guest memory
	OpCreateContext                    // Create a rendering context (synchronous)
	OpCreateRenderTarget               // Create a render target (synchronous)
	OpDraw                             // Issue an indexed draw
	OpNop                              // Completes with its argument; used as a fence
	OpSetState                         // Apply a SetState sub-opcode
	OpSignalSyncObject                 // Signal a guest sync object

	// Lifecycle opcodes appended after the fixed guest set.
	OpDestroyContext      // Release a rendering context
	OpDestroyRenderTarget // Release a render target
	OpNewFrame            // Advance the scene timestamp without drawing

	opcodeCount
)

var opcodeNames = [...]string{
	OpSetContext:          "SetContext",
	OpSyncSurfaceData:     "SyncSurfaceData",
	OpCreateContext:       "CreateContext",
	OpCreateRenderTarget:  "CreateRenderTarget",
	OpDraw:                "Draw",
	OpNop:                 "Nop",
	OpSetState:            "SetState",
	OpSignalSyncObject:    "SignalSyncObject",
	OpDestroyContext:      "DestroyContext",
	OpDestroyRenderTarget: "DestroyRenderTarget",
	OpNewFrame:            "NewFrame",
}

// String returns the string representation of an Opcode.
func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return "Unknown"
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	return op < opcodeCount
}

// StateOp is the sub-opcode carried by OpSetState.
type StateOp uint16

const (
	StateRegionClip       StateOp = iota // Scissor region
	StateProgram                         // Bind vertex or fragment program
	StateViewport                        // Viewport transform
	StateDepthBias                       // Depth bias factor and units
	StateDepthFunc                       // Depth compare function
	StateDepthWriteEnable                // Depth write mask
	StatePolygonMode                     // Fill, line or point rasterization
	StatePointLineWidth                  // Point size / line width
	StateStencilFunc                     // Stencil compare and ops
	StateStencilRef                      // Stencil reference value
	StateFragmentTexture                 // Texture descriptor for a slot
	StateTwoSided                        // Two-sided depth/stencil state
	StateCullMode                        // Face culling
	StateVertexStream                    // Vertex stream address and stride
	StateUniform                         // Uniform write, resolved at draw time

	StateOpCount
)

var stateOpNames = [...]string{
	StateRegionClip:       "RegionClip",
	StateProgram:          "Program",
	StateViewport:         "Viewport",
	StateDepthBias:        "DepthBias",
	StateDepthFunc:        "DepthFunc",
	StateDepthWriteEnable: "DepthWriteEnable",
	StatePolygonMode:      "PolygonMode",
	StatePointLineWidth:   "PointLineWidth",
	StateStencilFunc:      "StencilFunc",
	StateStencilRef:       "StencilRef",
	StateFragmentTexture:  "FragmentTexture",
	StateTwoSided:         "TwoSided",
	StateCullMode:         "CullMode",
	StateVertexStream:     "VertexStream",
	StateUniform:          "Uniform",
}

// String returns the string representation of a StateOp.
func (s StateOp) String() string {
	if int(s) < len(stateOpNames) {
		return stateOpNames[s]
	}
	return "Unknown"
}

// Result is the completion code a handler reports to a waiting producer.
type Result int32

const (
	ResultOK             Result = 0
	ResultError          Result = -1
	ResultNotHandled     Result = -2 // handler returned without completing
	ResultBackendFailure Result = -3
)

// String returns the string representation of a Result.
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultError:
		return "Error"
	case ResultNotHandled:
		return "NotHandled"
	case ResultBackendFailure:
		return "BackendFailure"
	}
	return "Result(" + strconv.Itoa(int(r)) + ")"
}
