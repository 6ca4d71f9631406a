// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package state

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/command"
	"github.com/gogpu/gxm/internal/tiling"
	"github.com/gogpu/gxm/shader"
	"github.com/gogpu/gxm/surface"
)

// Draw decodes an OpDraw command and issues it with the state of c. It
// reports whether the draw reached the backend; a skipped draw returns
// the reason.
func (m *Machine) Draw(c *Context, h *command.Helper) (bool, error) {
	a, err := decode[DrawArgs](h)
	if err != nil {
		return false, err
	}
	call, err := m.prepare(c, a)
	if err != nil {
		m.stats.Skipped++
		return false, err
	}
	if err := m.be.Draw(c.host, call); err != nil {
		m.stats.Failed++
		return false, fmt.Errorf("state: draw: %w", err)
	}
	m.stats.Draws++
	return true, nil
}

// prepare resolves everything a draw needs against the current state.
func (m *Machine) prepare(c *Context, a DrawArgs) (*backend.DrawCall, error) {
	vp, fp := c.programs[shader.StageVertex], c.programs[shader.StageFragment]
	if vp == nil || fp == nil {
		m.logger.Warn("state: draw without program, skipping", "context", c.id)
		return nil, ErrNoProgram
	}
	if c.target.Framebuffer == 0 {
		return nil, ErrNoTarget
	}
	prim := backend.Primitive(a.Primitive)
	if prim > backend.PrimitiveTriangleFan {
		return nil, fmt.Errorf("%w: primitive %d", ErrBadArgument, a.Primitive)
	}
	if m.memory == nil {
		return nil, ErrNoMemory
	}

	prog, err := m.bindProgram(c, vp, fp)
	if err != nil {
		return nil, err
	}

	format := a.indexFormat()
	n := uint64(a.IndexCount) * uint64(backend.IndexSize(format))
	if !m.inGuest(a.IndexAddress, n) {
		return nil, fmt.Errorf("%w: %d indices at %#x past guest memory", ErrBadArgument, a.IndexCount, a.IndexAddress)
	}
	indices := make([]byte, n)
	if err := m.memory.ReadSystem(a.IndexAddress, indices); err != nil {
		return nil, fmt.Errorf("state: read indices: %w", err)
	}
	count := a.IndexCount
	if prim == backend.PrimitiveTriangleFan {
		indices, count = fanToList(indices, format)
		prim = backend.PrimitiveTriangles
	}
	top := maxIndex(indices, format)

	streams, err := m.streams(c, &prog.Vertex.Reflection, top, a.IndexCount > 0)
	if err != nil {
		return nil, err
	}
	textures, err := m.resolveTextures(c, &prog.Fragment.Reflection)
	if err != nil {
		return nil, err
	}

	call := &backend.DrawCall{
		Framebuffer:      c.target.Framebuffer,
		Width:            c.target.Width,
		Height:           c.target.Height,
		X:                c.target.X,
		Y:                c.target.Y,
		Pipeline:         prog.Pipeline,
		Primitive:        prim,
		IndexFormat:      format,
		Indices:          indices,
		IndexCount:       count,
		Instances:        max(a.Instances, 1),
		Streams:          streams,
		VertexUniforms:   layoutUniforms(&prog.Vertex.Reflection, c.uniforms[shader.StageVertex]),
		FragmentUniforms: layoutUniforms(&prog.Fragment.Reflection, c.uniforms[shader.StageFragment]),
		Textures:         textures,
	}
	c.pending = 0
	return call, nil
}

// bindProgram returns the linked pair for the bound programs. The pair
// of the previous draw is reused when the fingerprints are unchanged,
// and the backend binding is only updated when it differs.
func (m *Machine) bindProgram(c *Context, vp, fp *shader.Program) (*Program, error) {
	key := programKey{vp.Fingerprint, fp.Fingerprint}
	prog := c.linked
	if prog != nil && key == c.last {
		m.stats.ProgramReuses++
	} else {
		var err error
		if prog, err = m.programs.Get(vp, fp); err != nil {
			return nil, err
		}
		c.last, c.linked = key, prog
	}

	blend, mask, err := c.blend.state()
	if err != nil {
		return nil, err
	}
	binding := backend.ProgramBinding{Pipeline: prog.Pipeline, Blend: blend, WriteMask: mask}
	if !sameBinding(binding, c.binding) {
		if err := m.apply(c, binding); err != nil {
			return nil, err
		}
		c.binding = binding
	}
	return prog, nil
}

func sameBinding(a, b backend.ProgramBinding) bool {
	if a.Pipeline != b.Pipeline || a.WriteMask != b.WriteMask || (a.Blend == nil) != (b.Blend == nil) {
		return false
	}
	return a.Blend == nil || *a.Blend == *b.Blend
}

// streams reads the vertex streams the program consumes. Each stream is
// sized from the highest index the draw references, not from the guest
// buffer.
func (m *Machine) streams(c *Context, r *shader.Reflection, top uint32, referenced bool) ([]backend.Stream, error) {
	n := r.Streams()
	if n == 0 {
		return nil, nil
	}
	out := make([]backend.Stream, n)
	for i := range out {
		s, ok := c.Stream(i)
		if !ok {
			return nil, fmt.Errorf("%w: vertex stream %d", ErrUnbound, i)
		}
		var size uint64
		if referenced {
			size = uint64(top)*uint64(s.Stride) + uint64(vertexSize(r, i))
		}
		if !m.inGuest(s.Address, size) {
			return nil, fmt.Errorf("%w: vertex stream %d reaches index %d past guest memory", ErrBadArgument, i, top)
		}
		data := make([]byte, size)
		if err := m.memory.ReadSystem(s.Address, data); err != nil {
			return nil, fmt.Errorf("state: read vertex stream %d: %w", i, err)
		}
		out[i] = backend.Stream{Data: data, Stride: s.Stride}
	}
	return out, nil
}

// inGuest reports whether n bytes at addr lie inside guest memory. Sizes
// come from the guest and are checked before anything is allocated.
func (m *Machine) inGuest(addr uint32, n uint64) bool {
	return uint64(addr)+n <= uint64(m.memory.Size())
}

// resolveTextures looks up every texture slot the fragment program reads.
func (m *Machine) resolveTextures(c *Context, r *shader.Reflection) ([]backend.Texture, error) {
	if len(r.Samplers) == 0 {
		return nil, nil
	}
	if m.textures == nil {
		return nil, fmt.Errorf("%w: no texture source", ErrUnbound)
	}
	out := make([]backend.Texture, 0, len(r.Samplers))
	for _, slot := range r.Samplers {
		t, ok := c.Texture(slot)
		if !ok {
			return nil, fmt.Errorf("%w: texture slot %d", ErrUnbound, slot)
		}
		view, uv, err := m.textures.LookupTexture(surface.Request{
			Address: t.Address,
			Format:  surface.Format(t.Format),
			Layout:  tiling.Layout(t.Layout),
			Stride:  t.Stride,
			Width:   t.Width,
			Height:  t.Height,
			SRGB:    t.SRGB,
		})
		if err != nil {
			return nil, fmt.Errorf("state: texture slot %d: %w", slot, err)
		}
		out = append(out, backend.Texture{Slot: slot, View: view, UV: uv, Linear: t.Linear})
	}
	return out, nil
}

// layoutUniforms places buffered uniform values into the program's
// uniform block. Parameters never written read as zero.
func layoutUniforms(r *shader.Reflection, values map[int][]byte) []byte {
	if r.UniformBlockSize == 0 {
		return nil
	}
	block := make([]byte, r.UniformBlockSize)
	for _, u := range r.Uniforms {
		v, ok := values[u.Index]
		if !ok || u.Offset >= len(block) {
			continue
		}
		end := min(u.Offset+u.Size, len(block))
		copy(block[u.Offset:end], v)
	}
	return block
}

// maxIndex returns the highest index in a packed index buffer.
func maxIndex(indices []byte, f gputypes.IndexFormat) uint32 {
	var top uint32
	if f == gputypes.IndexFormatUint32 {
		for i := 0; i+4 <= len(indices); i += 4 {
			top = max(top, binary.LittleEndian.Uint32(indices[i:]))
		}
		return top
	}
	for i := 0; i+2 <= len(indices); i += 2 {
		top = max(top, uint32(binary.LittleEndian.Uint16(indices[i:])))
	}
	return top
}

// fanToList rewrites a triangle fan as a triangle list.
func fanToList(indices []byte, f gputypes.IndexFormat) ([]byte, uint32) {
	size := int(backend.IndexSize(f))
	n := len(indices) / size
	if n < 3 {
		return nil, 0
	}
	out := make([]byte, 0, 3*(n-2)*size)
	at := func(i int) []byte { return indices[i*size : (i+1)*size] }
	for i := 1; i < n-1; i++ {
		out = append(out, at(0)...)
		out = append(out, at(i)...)
		out = append(out, at(i+1)...)
	}
	return out, uint32(3 * (n - 2))
}

// vertexSize returns the bytes one vertex of a stream spans.
func vertexSize(r *shader.Reflection, stream int) int {
	size := 0
	for _, a := range r.Attributes {
		if a.Stream == stream {
			size = max(size, a.Offset+vertexFormatSize(a.Format))
		}
	}
	return size
}

func vertexFormatSize(f gputypes.VertexFormat) int {
	switch f {
	case gputypes.VertexFormatUnorm8x2, gputypes.VertexFormatSnorm8x2, gputypes.VertexFormatUint8x2:
		return 2
	case gputypes.VertexFormatFloat32, gputypes.VertexFormatUint32,
		gputypes.VertexFormatFloat16x2, gputypes.VertexFormatUnorm8x4,
		gputypes.VertexFormatSnorm8x4, gputypes.VertexFormatUint8x4,
		gputypes.VertexFormatUnorm16x2, gputypes.VertexFormatSnorm16x2,
		gputypes.VertexFormatUint16x2:
		return 4
	case gputypes.VertexFormatFloat32x2, gputypes.VertexFormatUint32x2,
		gputypes.VertexFormatFloat16x4, gputypes.VertexFormatUnorm16x4,
		gputypes.VertexFormatSnorm16x4, gputypes.VertexFormatUint16x4:
		return 8
	case gputypes.VertexFormatFloat32x3, gputypes.VertexFormatUint32x3:
		return 12
	case gputypes.VertexFormatFloat32x4, gputypes.VertexFormatUint32x4:
		return 16
	}
	return 0
}
