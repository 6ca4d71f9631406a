// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

// Built-in programs in SourceTranslator form. The replay tool records
// them as guest programs and tests use them to exercise the full
// translate, compile and link path.

// SolidVertexWGSL passes a 2D position through unchanged.
const SolidVertexWGSL = `// gxm:entry vs_main
// gxm:attribute 0 0 0 Float32x2

@vertex
fn vs_main(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 0.0, 1.0);
}
`

// SolidFragmentWGSL outputs the colour held in uniform parameter 0.
const SolidFragmentWGSL = `// gxm:entry fs_main
// gxm:uniform 0 0 16

struct Params {
    color: vec4<f32>,
};

@group(0) @binding(1) var<uniform> params: Params;

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return params.color;
}
`

// SolidVertex returns the built-in pass-through vertex program.
func SolidVertex() *Program {
	return NewProgram(StageVertex, []byte(SolidVertexWGSL))
}

// SolidFragment returns the built-in uniform colour fragment program.
func SolidFragment() *Program {
	return NewProgram(StageFragment, []byte(SolidFragmentWGSL))
}
