// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package state

import (
	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/shader"
)

// Binding limits.
const (
	MaxTextureSlots = 16
	MaxStreams      = 16
)

// Target is the framebuffer draws of a context render into. It is bound
// by SetContext for the duration of a scene.
type Target struct {
	Framebuffer backend.FramebufferID
	Width       uint32
	Height      uint32

	// X and Y are the pixel origin of the target inside the framebuffer.
	X, Y uint32
}

// Context is the accumulated render state of one guest rendering
// context. It is owned by the render thread.
type Context struct {
	id   uint32
	host backend.ContextID

	fixed    backend.FixedState
	programs [2]*shader.Program
	blend    BlendArgs
	textures [MaxTextureSlots]TextureArgs
	streams  [MaxStreams]VertexStreamArgs

	// Uniform values by stage and guest parameter index. They are laid
	// out against the program reflection at draw time.
	uniforms [2]map[int][]byte
	pending  int

	// Program pair of the previous draw.
	last    programKey
	linked  *Program
	binding backend.ProgramBinding

	target Target
}

func newContext(id uint32, host backend.ContextID) *Context {
	return &Context{
		id:       id,
		host:     host,
		fixed:    backend.DefaultFixedState(),
		uniforms: [2]map[int][]byte{make(map[int][]byte), make(map[int][]byte)},
		binding:  backend.DefaultFixedState().Program,
	}
}

// ID returns the guest handle of the context.
func (c *Context) ID() uint32 { return c.id }

// Host returns the backend context.
func (c *Context) Host() backend.ContextID { return c.host }

// Fixed returns the fixed-function state applied so far.
func (c *Context) Fixed() backend.FixedState { return c.fixed }

// Program returns the program bound to a stage, or nil.
func (c *Context) Program(stage shader.Stage) *shader.Program {
	if int(stage) >= len(c.programs) {
		return nil
	}
	return c.programs[stage]
}

// Texture returns the descriptor bound to a fragment texture slot.
func (c *Context) Texture(slot int) (TextureArgs, bool) {
	if slot < 0 || slot >= MaxTextureSlots || c.textures[slot].Width == 0 {
		return TextureArgs{}, false
	}
	return c.textures[slot], true
}

// Stream returns the vertex stream bound at index.
func (c *Context) Stream(index int) (VertexStreamArgs, bool) {
	if index < 0 || index >= MaxStreams || c.streams[index].Address == 0 {
		return VertexStreamArgs{}, false
	}
	return c.streams[index], true
}

// Uniform returns the last value written to a uniform parameter.
func (c *Context) Uniform(stage shader.Stage, index int) ([]byte, bool) {
	if int(stage) >= len(c.uniforms) {
		return nil, false
	}
	v, ok := c.uniforms[stage][index]
	return v, ok
}

// PendingUniforms returns the number of uniform writes buffered since
// the last draw.
func (c *Context) PendingUniforms() int { return c.pending }

// Target returns the bound draw target.
func (c *Context) Target() Target { return c.target }

// SetTarget binds the draw target.
func (c *Context) SetTarget(t Target) { c.target = t }

// Linked returns the program pair used by the previous draw, or nil.
func (c *Context) Linked() *Program { return c.linked }
