// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package state

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/command"
	"github.com/gogpu/gxm/shader"
	"github.com/gogpu/gxm/surface"
)

// Errors reported by the state machine. None of them is fatal: the
// command is skipped and the scene continues.
var (
	ErrUnknownStateOp = errors.New("state: unknown SetState sub-opcode")
	ErrBadArgument    = errors.New("state: argument out of range")
	ErrNoProgram      = errors.New("state: draw without a bound program")
	ErrNoTarget       = errors.New("state: draw without a target")
	ErrNoMemory       = errors.New("state: no guest memory")
	ErrUnbound        = errors.New("state: resource not bound")
)

// GuestMemory reads guest memory without firing traps.
type GuestMemory interface {
	ReadSystem(addr uint32, p []byte) error
	Size() int
}

// TextureSource resolves texture descriptors to sampled views.
type TextureSource interface {
	LookupTexture(req surface.Request) (backend.ViewID, [4]float32, error)
}

// Stats counts state machine activity.
type Stats struct {
	StateChanges  uint64 // backend state changes issued
	Uniforms      uint64 // uniform writes buffered
	Draws         uint64
	Skipped       uint64 // draws skipped for missing program, target or resources
	Failed        uint64 // draws rejected by the backend
	ProgramReuses uint64 // draws that kept the previous draw's program
}

// Option configures a Machine.
type Option func(*Machine)

// WithMemory sets the guest memory indices and vertices are read from.
func WithMemory(m GuestMemory) Option {
	return func(s *Machine) { s.memory = m }
}

// WithTextureSource sets the resolver for fragment textures.
func WithTextureSource(t TextureSource) Option {
	return func(s *Machine) { s.textures = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Machine) {
		if l != nil {
			s.logger = l
		}
	}
}

// Machine applies SetState and Draw commands of every context to a
// backend. It is owned by the render thread.
type Machine struct {
	be       backend.Backend
	compiler shader.Compiler
	programs *ProgramCache
	memory   GuestMemory
	textures TextureSource
	logger   *slog.Logger
	stats    Stats
}

// NewMachine creates a state machine over be. compiler turns bound guest
// programs into host modules.
func NewMachine(be backend.Backend, compiler shader.Compiler, opts ...Option) *Machine {
	m := &Machine{
		be:       be,
		compiler: compiler,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.programs = NewProgramCache(be, compiler, m.logger)
	return m
}

// Programs returns the program cache.
func (m *Machine) Programs() *ProgramCache { return m.programs }

// Stats returns a snapshot of the counters.
func (m *Machine) Stats() Stats { return m.stats }

// NewContext creates the state of a guest context and its backend
// context.
func (m *Machine) NewContext(id uint32) (*Context, error) {
	host, err := m.be.CreateContext()
	if err != nil {
		return nil, fmt.Errorf("state: create context %d: %w", id, err)
	}
	return newContext(id, host), nil
}

// DestroyContext releases the backend context of c.
func (m *Machine) DestroyContext(c *Context) {
	m.be.DestroyContext(c.host)
}

// Close releases every linked program.
func (m *Machine) Close() {
	m.programs.Close()
}

type setStateFunc func(m *Machine, c *Context, h *command.Helper) error

// setStateTable resolves SetState sub-opcodes. Entries that only record
// state for the next draw do not reach the backend.
var setStateTable = [command.StateOpCount]setStateFunc{
	command.StateRegionClip:       (*Machine).setRegionClip,
	command.StateProgram:          (*Machine).setProgram,
	command.StateViewport:         (*Machine).setViewport,
	command.StateDepthBias:        (*Machine).setDepthBias,
	command.StateDepthFunc:        (*Machine).setDepthFunc,
	command.StateDepthWriteEnable: (*Machine).setDepthWrite,
	command.StatePolygonMode:      (*Machine).setPolygonMode,
	command.StatePointLineWidth:   (*Machine).setPointLineWidth,
	command.StateStencilFunc:      (*Machine).setStencilFunc,
	command.StateStencilRef:       (*Machine).setStencilRef,
	command.StateFragmentTexture:  (*Machine).setTexture,
	command.StateTwoSided:         (*Machine).setTwoSided,
	command.StateCullMode:         (*Machine).setCullMode,
	command.StateVertexStream:     (*Machine).setVertexStream,
	command.StateUniform:          (*Machine).setUniform,
}

// SetState decodes one SetState command and applies it to c.
func (m *Machine) SetState(c *Context, h *command.Helper) error {
	op := command.StateOp(h.Uint16())
	if err := h.Err(); err != nil {
		return err
	}
	if op >= command.StateOpCount {
		return fmt.Errorf("%w: %d", ErrUnknownStateOp, uint16(op))
	}
	if err := setStateTable[op](m, c, h); err != nil {
		return fmt.Errorf("state: %s: %w", op, err)
	}
	return nil
}

// decode reads the fixed-size argument of a sub-opcode.
func decode[T any](h *command.Helper) (T, error) {
	v := command.Pop[T](h)
	return v, h.Finish()
}

// apply records change in c and issues it to the backend.
func (m *Machine) apply(c *Context, change backend.StateChange) error {
	c.fixed.Apply(change)
	m.stats.StateChanges++
	return m.be.ApplyState(c.host, change)
}

func (m *Machine) setRegionClip(c *Context, h *command.Helper) error {
	a, err := decode[RegionClipArgs](h)
	if err != nil {
		return err
	}
	if backend.ClipMode(a.Mode) > backend.ClipAll {
		return fmt.Errorf("%w: clip mode %d", ErrBadArgument, a.Mode)
	}
	return m.apply(c, backend.RegionClip{
		Mode: backend.ClipMode(a.Mode),
		Rect: backend.Rect{X: a.X, Y: a.Y, Width: a.Width, Height: a.Height},
	})
}

func (m *Machine) setViewport(c *Context, h *command.Helper) error {
	a, err := decode[ViewportArgs](h)
	if err != nil {
		return err
	}
	return m.apply(c, backend.Viewport{
		Enabled: a.Enabled,
		X:       a.X, Y: a.Y,
		Width: a.Width, Height: a.Height,
		MinDepth: a.MinDepth, MaxDepth: a.MaxDepth,
	})
}

func (m *Machine) setDepthBias(c *Context, h *command.Helper) error {
	a, err := decode[DepthBiasArgs](h)
	if err != nil {
		return err
	}
	f, ok := face(a.Face)
	if !ok {
		return fmt.Errorf("%w: face %d", ErrBadArgument, a.Face)
	}
	return m.apply(c, backend.DepthBias{Face: f, Units: a.Units, Factor: a.Factor})
}

func (m *Machine) setDepthFunc(c *Context, h *command.Helper) error {
	a, err := decode[DepthFuncArgs](h)
	if err != nil {
		return err
	}
	f, ok := face(a.Face)
	fn, ok2 := lookup(compareFuncs[:], a.Func)
	if !ok || !ok2 {
		return fmt.Errorf("%w: face %d func %d", ErrBadArgument, a.Face, a.Func)
	}
	return m.apply(c, backend.DepthFunc{Face: f, Func: fn})
}

func (m *Machine) setDepthWrite(c *Context, h *command.Helper) error {
	a, err := decode[DepthWriteArgs](h)
	if err != nil {
		return err
	}
	f, ok := face(a.Face)
	if !ok {
		return fmt.Errorf("%w: face %d", ErrBadArgument, a.Face)
	}
	return m.apply(c, backend.DepthWrite{Face: f, Enable: a.Enable})
}

func (m *Machine) setPolygonMode(c *Context, h *command.Helper) error {
	a, err := decode[PolygonModeArgs](h)
	if err != nil {
		return err
	}
	f, ok := face(a.Face)
	if !ok || backend.PolygonMode(a.Mode) > backend.PolygonPoint {
		return fmt.Errorf("%w: face %d mode %d", ErrBadArgument, a.Face, a.Mode)
	}
	return m.apply(c, backend.Polygon{Face: f, Mode: backend.PolygonMode(a.Mode)})
}

func (m *Machine) setPointLineWidth(c *Context, h *command.Helper) error {
	a, err := decode[PointLineWidthArgs](h)
	if err != nil {
		return err
	}
	f, ok := face(a.Face)
	if !ok {
		return fmt.Errorf("%w: face %d", ErrBadArgument, a.Face)
	}
	return m.apply(c, backend.PointLineWidth{Face: f, Width: a.Width})
}

func (m *Machine) setStencilFunc(c *Context, h *command.Helper) error {
	a, err := decode[StencilFuncArgs](h)
	if err != nil {
		return err
	}
	f, ok := face(a.Face)
	if !ok {
		return fmt.Errorf("%w: face %d", ErrBadArgument, a.Face)
	}
	var st gputypes.StencilFaceState
	var ok1, ok2, ok3, ok4 bool
	st.Compare, ok1 = lookup(compareFuncs[:], a.Func)
	st.FailOp, ok2 = lookup(stencilOps[:], a.StencilFail)
	st.DepthFailOp, ok3 = lookup(stencilOps[:], a.DepthFail)
	st.PassOp, ok4 = lookup(stencilOps[:], a.DepthPass)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return fmt.Errorf("%w: stencil %+v", ErrBadArgument, a)
	}
	return m.apply(c, backend.StencilFunc{Face: f, State: st, ReadMask: a.ReadMask, WriteMask: a.WriteMask})
}

func (m *Machine) setStencilRef(c *Context, h *command.Helper) error {
	a, err := decode[StencilRefArgs](h)
	if err != nil {
		return err
	}
	f, ok := face(a.Face)
	if !ok {
		return fmt.Errorf("%w: face %d", ErrBadArgument, a.Face)
	}
	return m.apply(c, backend.StencilRef{Face: f, Ref: a.Ref})
}

func (m *Machine) setTwoSided(c *Context, h *command.Helper) error {
	a, err := decode[TwoSidedArgs](h)
	if err != nil {
		return err
	}
	return m.apply(c, backend.TwoSided{Enable: a.Enable})
}

func (m *Machine) setCullMode(c *Context, h *command.Helper) error {
	a, err := decode[CullModeArgs](h)
	if err != nil {
		return err
	}
	mode, ok := lookup(cullModes[:], a.Mode)
	if !ok {
		return fmt.Errorf("%w: cull mode %d", ErrBadArgument, a.Mode)
	}
	return m.apply(c, backend.Cull{Mode: mode})
}

// setProgram binds a program to a stage. Linking waits for the draw,
// which is the first point where both stages are known.
func (m *Machine) setProgram(c *Context, h *command.Helper) error {
	stage := shader.Stage(h.Uint8())
	blend := command.Pop[BlendArgs](h)
	code := h.Bytes()
	if err := h.Finish(); err != nil {
		return err
	}
	if stage > shader.StageFragment {
		return fmt.Errorf("%w: stage %d", ErrBadArgument, stage)
	}
	if len(code) == 0 {
		c.programs[stage] = nil
		return nil
	}
	if stage == shader.StageFragment {
		if _, _, err := blend.state(); err != nil {
			return err
		}
		c.blend = blend
	}
	c.programs[stage] = shader.NewProgram(stage, code)
	return nil
}

// state translates guest blend info to host blend state. A nil state
// disables blending.
func (b BlendArgs) state() (*gputypes.BlendState, gputypes.ColorWriteMask, error) {
	mask := gputypes.ColorWriteMaskAll
	if b.WriteMaskValid {
		mask = gputypes.ColorWriteMask(b.WriteMask) & gputypes.ColorWriteMaskAll
	}
	if !b.Enable {
		return nil, mask, nil
	}
	var ok [6]bool
	var s gputypes.BlendState
	s.Color.SrcFactor, ok[0] = lookup(blendFactors[:], b.ColorSrc)
	s.Color.DstFactor, ok[1] = lookup(blendFactors[:], b.ColorDst)
	s.Color.Operation, ok[2] = lookup(blendOps[:], b.ColorOp)
	s.Alpha.SrcFactor, ok[3] = lookup(blendFactors[:], b.AlphaSrc)
	s.Alpha.DstFactor, ok[4] = lookup(blendFactors[:], b.AlphaDst)
	s.Alpha.Operation, ok[5] = lookup(blendOps[:], b.AlphaOp)
	for _, v := range ok {
		if !v {
			return nil, mask, fmt.Errorf("%w: blend %+v", ErrBadArgument, b)
		}
	}
	return &s, mask, nil
}

func (m *Machine) setTexture(c *Context, h *command.Helper) error {
	a, err := decode[TextureArgs](h)
	if err != nil {
		return err
	}
	if int(a.Slot) >= MaxTextureSlots {
		return fmt.Errorf("%w: texture slot %d", ErrBadArgument, a.Slot)
	}
	if a.Width != 0 && !surface.Format(a.Format).Valid() {
		return fmt.Errorf("%w: texture format %d", ErrBadArgument, a.Format)
	}
	c.textures[a.Slot] = a
	return nil
}

func (m *Machine) setVertexStream(c *Context, h *command.Helper) error {
	a, err := decode[VertexStreamArgs](h)
	if err != nil {
		return err
	}
	if int(a.Index) >= MaxStreams {
		return fmt.Errorf("%w: stream %d", ErrBadArgument, a.Index)
	}
	c.streams[a.Index] = a
	return nil
}

// setUniform buffers a uniform write. Where it lands in the host uniform
// block depends on the reflection of the program bound at draw time.
func (m *Machine) setUniform(c *Context, h *command.Helper) error {
	stage := shader.Stage(h.Uint8())
	index := int(h.Uint16())
	data := h.Bytes()
	if err := h.Finish(); err != nil {
		return err
	}
	if stage > shader.StageFragment {
		return fmt.Errorf("%w: stage %d", ErrBadArgument, stage)
	}
	c.uniforms[stage][index] = append([]byte(nil), data...)
	c.pending++
	m.stats.Uniforms++
	return nil
}
