// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/shader"
)

// Bind group 0 layout shared by every linked program.
const (
	bindingVertexUniforms   = 0
	bindingFragmentUniforms = 1
	bindingFirstTexture     = 2 // slot s uses 2+2s (view) and 3+2s (sampler)
)

// maxStreams bounds vertex streams per draw.
const maxStreams = 8

// program is a linked vertex and fragment pair.
type program struct {
	vertex, fragment *shader.Module
	vsModule         hal.ShaderModule
	fsModule         hal.ShaderModule
	groupLayout      hal.BindGroupLayout
	layout           hal.PipelineLayout
}

func (b *Backend) shaderModule(m *shader.Module) (hal.ShaderModule, error) {
	words := m.SPIRV
	if len(words) == 0 {
		var err error
		if words, err = shader.CompileWGSL(m.WGSL); err != nil {
			return nil, err
		}
	}
	return b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  fmt.Sprintf("gxm_%s_%016x", m.Stage, uint64(m.Fingerprint)),
		Source: hal.ShaderSource{SPIRV: words},
	})
}

func layoutEntries(vs, fs *shader.Module) []gputypes.BindGroupLayoutEntry {
	var entries []gputypes.BindGroupLayoutEntry
	if vs.Reflection.UniformBlockSize > 0 {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    bindingVertexUniforms,
			Visibility: gputypes.ShaderStageVertex,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		})
	}
	if fs.Reflection.UniformBlockSize > 0 {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    bindingFragmentUniforms,
			Visibility: gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		})
	}
	for _, slot := range fs.Reflection.Samplers {
		entries = append(entries,
			gputypes.BindGroupLayoutEntry{
				Binding:    uint32(bindingFirstTexture + 2*slot),
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			gputypes.BindGroupLayoutEntry{
				Binding:    uint32(bindingFirstTexture + 2*slot + 1),
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		)
	}
	return entries
}

// LinkProgram implements backend.Backend. Modules without SPIR-V are
// compiled from their WGSL.
func (b *Backend) LinkProgram(vertex, fragment *shader.Module) (backend.PipelineID, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	if vertex == nil || fragment == nil {
		return 0, fmt.Errorf("wgpu: link: missing stage")
	}
	if vertex.Reflection.Streams() > maxStreams {
		return 0, fmt.Errorf("wgpu: link: %d vertex streams: %w", vertex.Reflection.Streams(), backend.ErrUnsupported)
	}

	p := &program{vertex: vertex, fragment: fragment}
	var err error
	if p.vsModule, err = b.shaderModule(vertex); err != nil {
		return 0, fmt.Errorf("wgpu: link vertex: %w", err)
	}
	if p.fsModule, err = b.shaderModule(fragment); err != nil {
		b.destroyProgram(p)
		return 0, fmt.Errorf("wgpu: link fragment: %w", err)
	}
	p.groupLayout, err = b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "gxm_program",
		Entries: layoutEntries(vertex, fragment),
	})
	if err != nil {
		b.destroyProgram(p)
		return 0, fmt.Errorf("wgpu: bind group layout: %w", err)
	}
	p.layout, err = b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "gxm_program",
		BindGroupLayouts: []hal.BindGroupLayout{p.groupLayout},
	})
	if err != nil {
		b.destroyProgram(p)
		return 0, fmt.Errorf("wgpu: pipeline layout: %w", err)
	}

	id := backend.PipelineID(b.id())
	b.pipelines[id] = p
	b.logger.Debug("wgpu: program linked", "id", id,
		"vertex", uint64(vertex.Fingerprint), "fragment", uint64(fragment.Fingerprint))
	return id, nil
}

func (b *Backend) destroyProgram(p *program) {
	if p.layout != nil {
		b.device.DestroyPipelineLayout(p.layout)
	}
	if p.groupLayout != nil {
		b.device.DestroyBindGroupLayout(p.groupLayout)
	}
	if p.fsModule != nil {
		b.device.DestroyShaderModule(p.fsModule)
	}
	if p.vsModule != nil {
		b.device.DestroyShaderModule(p.vsModule)
	}
}

// DestroyPipeline implements backend.Backend. Pipeline variants of the
// program are destroyed with it.
func (b *Backend) DestroyPipeline(id backend.PipelineID) {
	p, ok := b.pipelines[id]
	if !ok {
		return
	}
	delete(b.pipelines, id)
	b.variants.DeleteFunc(func(k variantKey, _ hal.RenderPipeline) bool { return k.pipeline == id })
	b.retire(func() { b.destroyProgram(p) })
}

// variantKey is everything WebGPU bakes into a render pipeline.
type variantKey struct {
	pipeline    backend.PipelineID
	color       gputypes.TextureFormat
	depth       gputypes.TextureFormat
	topology    gputypes.PrimitiveTopology
	stripFormat gputypes.IndexFormat
	cull        gputypes.CullMode

	blendOn   bool
	blend     gputypes.BlendState
	writeMask gputypes.ColorWriteMask

	depthCompare gputypes.CompareFunction
	depthWrite   bool
	biasUnits    int32
	biasSlope    float32
	front, back  hal.StencilFaceState
	readMask     uint8
	stencilMask  uint8

	strides [maxStreams]uint32
}

func halStencilOp(op gputypes.StencilOperation) hal.StencilOperation {
	if op == gputypes.StencilOperationUndefined {
		return hal.StencilOperationKeep
	}
	return hal.StencilOperation(op - 1)
}

func halStencilFace(s gputypes.StencilFaceState) hal.StencilFaceState {
	cmp := s.Compare
	if cmp == gputypes.CompareFunctionUndefined {
		cmp = gputypes.CompareFunctionAlways
	}
	return hal.StencilFaceState{
		Compare:     cmp,
		FailOp:      halStencilOp(s.FailOp),
		DepthFailOp: halStencilOp(s.DepthFailOp),
		PassOp:      halStencilOp(s.PassOp),
	}
}

func makeVariantKey(s *backend.FixedState, call *backend.DrawCall, color, depth gputypes.TextureFormat) (variantKey, error) {
	topology, ok := call.Primitive.Topology()
	if !ok {
		return variantKey{}, fmt.Errorf("wgpu: draw %s: %w", call.Primitive, backend.ErrUnsupported)
	}
	if len(call.Streams) > maxStreams {
		return variantKey{}, fmt.Errorf("wgpu: %d vertex streams: %w", len(call.Streams), backend.ErrUnsupported)
	}
	k := variantKey{
		pipeline:  call.Pipeline,
		color:     color,
		depth:     depth,
		topology:  topology,
		cull:      s.Cull,
		writeMask: s.Program.WriteMask,
	}
	if topology == gputypes.PrimitiveTopologyTriangleStrip {
		k.stripFormat = call.IndexFormat
	}
	if s.Program.Blend != nil {
		k.blendOn, k.blend = true, *s.Program.Blend
	}
	if depth != gputypes.TextureFormatUndefined {
		front, back := s.Effective()
		k.depthCompare = front.DepthFunc
		k.depthWrite = front.DepthWrite
		k.biasUnits, k.biasSlope = front.BiasUnits, front.BiasFactor
		if depth.HasStencil() {
			k.front, k.back = halStencilFace(front.Stencil), halStencilFace(back.Stencil)
			k.readMask, k.stencilMask = front.ReadMask, front.WriteMask
		}
	}
	for i, st := range call.Streams {
		k.strides[i] = st.Stride
	}
	return k, nil
}

func (b *Backend) createVariant(k variantKey, p *program) (hal.RenderPipeline, error) {
	var buffers []gputypes.VertexBufferLayout
	for stream := 0; stream < p.vertex.Reflection.Streams(); stream++ {
		layout := gputypes.VertexBufferLayout{
			ArrayStride: uint64(k.strides[stream]),
			StepMode:    gputypes.VertexStepModeVertex,
		}
		for _, a := range p.vertex.Reflection.Attributes {
			if a.Stream == stream {
				layout.Attributes = append(layout.Attributes, gputypes.VertexAttribute{
					Format:         a.Format,
					Offset:         uint64(a.Offset),
					ShaderLocation: uint32(a.Location),
				})
			}
		}
		buffers = append(buffers, layout)
	}

	desc := &hal.RenderPipelineDescriptor{
		Label:  "gxm_variant",
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     p.vsModule,
			EntryPoint: p.vertex.EntryPoint,
			Buffers:    buffers,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  k.topology,
			FrontFace: gputypes.FrontFaceCW,
			CullMode:  k.cull,
		},
		Multisample: gputypes.DefaultMultisampleState(),
	}
	if k.stripFormat != gputypes.IndexFormatUndefined {
		f := k.stripFormat
		desc.Primitive.StripIndexFormat = &f
	}
	if k.color != gputypes.TextureFormatUndefined {
		target := gputypes.ColorTargetState{Format: k.color, WriteMask: k.writeMask}
		if k.blendOn {
			blend := k.blend
			target.Blend = &blend
		}
		desc.Fragment = &hal.FragmentState{
			Module:     p.fsModule,
			EntryPoint: p.fragment.EntryPoint,
			Targets:    []gputypes.ColorTargetState{target},
		}
	}
	if k.depth != gputypes.TextureFormatUndefined {
		desc.DepthStencil = &hal.DepthStencilState{
			Format:              k.depth,
			DepthWriteEnabled:   k.depthWrite,
			DepthCompare:        k.depthCompare,
			StencilFront:        k.front,
			StencilBack:         k.back,
			StencilReadMask:     uint32(k.readMask),
			StencilWriteMask:    uint32(k.stencilMask),
			DepthBias:           k.biasUnits,
			DepthBiasSlopeScale: k.biasSlope,
		}
	}
	pipe, err := b.device.CreateRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create render pipeline: %w", err)
	}
	return pipe, nil
}
