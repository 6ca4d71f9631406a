// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gxm

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/command"
	"github.com/gogpu/gxm/state"
)

// ErrSubmitted is returned when a scene is submitted twice.
var ErrSubmitted = errors.New("gxm: scene already submitted")

// internalContext owns the scenes the renderer records for itself.
const internalContext = math.MaxUint32

// Scene records the commands of one guest scene. Recording errors are
// sticky and reported by Submit. A Scene belongs to one producer
// goroutine.
//
// Example:
//
//	s := r.NewScene(1)
//	s.SetContext(gxm.SetContextArgs{Color: color})
//	s.SetState(state.CullModeArgs{Mode: state.CullBack})
//	s.Draw(state.DrawArgs{IndexAddress: ib, IndexCount: 6})
//	err := r.Submit(ctx, s)
type Scene struct {
	b         *command.Builder
	futures   []*command.Future
	err       error
	submitted bool
}

// SceneState is the guest-side record state in effect when a scene is
// recorded. The render thread reads it through the command list, so the
// guest may change its own copy while the scene waits in the queue.
type SceneState struct {
	// Targets are the surfaces BindTargets binds.
	Targets SetContextArgs
}

// NewScene starts recording a scene for a guest context.
func (r *Renderer) NewScene(context uint32) *Scene {
	return &Scene{b: command.NewBuilder(r.pool, context, nil)}
}

// NewSceneWithState starts recording a scene that carries a copy of st.
func (r *Renderer) NewSceneWithState(context uint32, st SceneState) *Scene {
	return &Scene{b: command.NewBuilder(r.pool, context, &st)}
}

// Err returns the first recording error.
func (s *Scene) Err() error { return s.err }

// Len returns the number of recorded commands.
func (s *Scene) Len() int { return s.b.Len() }

func (s *Scene) encode(op command.Opcode, fn func(e *command.Encoder)) ([]byte, bool) {
	if s.err != nil {
		return nil, false
	}
	if s.submitted {
		s.err = ErrSubmitted
		return nil, false
	}
	e := s.b.Encoder()
	if fn != nil {
		fn(e)
	}
	if err := e.Err(); err != nil {
		s.err = fmt.Errorf("gxm: encode %s: %w", op, err)
		return nil, false
	}
	return e.Payload(), true
}

func (s *Scene) add(op command.Opcode, fn func(e *command.Encoder)) {
	payload, ok := s.encode(op, fn)
	if !ok {
		return
	}
	if err := s.b.Add(op, payload); err != nil {
		s.err = err
	}
}

// addSync records a command with a reply. On a recording error the
// returned future is already resolved with ResultError.
func (s *Scene) addSync(op command.Opcode, fn func(e *command.Encoder)) *command.Future {
	payload, ok := s.encode(op, fn)
	if ok {
		f, err := s.b.AddSync(op, payload)
		if err == nil {
			s.futures = append(s.futures, f)
			return f
		}
		s.err = err
	}
	f := command.NewFuture()
	f.Resolve(command.ResultError)
	return f
}

func value(v any) func(e *command.Encoder) {
	return func(e *command.Encoder) { e.Value(v) }
}

// SetContext binds the surfaces the scene renders into.
func (s *Scene) SetContext(a SetContextArgs) {
	s.add(command.OpSetContext, value(a))
}

// BindTargets binds the surfaces of the scene's SceneState. In a scene
// without one the command fails and draws stay unbound.
func (s *Scene) BindTargets() {
	s.add(command.OpSetContext, nil)
}

// SetState records one state change.
func (s *Scene) SetState(a state.Args) {
	s.add(command.OpSetState, func(e *command.Encoder) { state.AppendSetState(e, a) })
}

// Draw records an indexed draw.
func (s *Scene) Draw(a state.DrawArgs) {
	s.add(command.OpDraw, func(e *command.Encoder) { state.AppendDraw(e, a) })
}

// SyncSurfaceData asks for every surface in [addr, addr+size) to be
// copied back to guest memory.
func (s *Scene) SyncSurfaceData(addr, size uint32) *command.Future {
	return s.addSync(command.OpSyncSurfaceData, value(SyncArgs{Address: addr, Size: size}))
}

// SignalSyncObject sets a sync object once the scene reaches this point.
func (s *Scene) SignalSyncObject(id, v uint32) {
	s.add(command.OpSignalSyncObject, value(SignalArgs{ID: id, Value: v}))
}

// Nop records a fence completing with res.
func (s *Scene) Nop(res command.Result) *command.Future {
	return s.addSync(command.OpNop, func(e *command.Encoder) { e.Int32(int32(res)) })
}

// CreateContext creates guest context id.
func (s *Scene) CreateContext(id uint32) *command.Future {
	return s.addSync(command.OpCreateContext, value(ObjectArgs{ID: id}))
}

// DestroyContext releases guest context id.
func (s *Scene) DestroyContext(id uint32) {
	s.add(command.OpDestroyContext, value(ObjectArgs{ID: id}))
}

// CreateRenderTarget creates guest render target id.
func (s *Scene) CreateRenderTarget(id uint32, desc backend.RenderTargetDesc) *command.Future {
	return s.addSync(command.OpCreateRenderTarget, value(RenderTargetArgs{
		ID:           id,
		Width:        desc.Width,
		Height:       desc.Height,
		Scenes:       desc.Scenes,
		MultisampleX: desc.MultisampleX,
	}))
}

// DestroyRenderTarget releases guest render target id.
func (s *Scene) DestroyRenderTarget(id uint32) {
	s.add(command.OpDestroyRenderTarget, value(ObjectArgs{ID: id}))
}

// NewFrame advances the surface cache to a new scene without drawing.
func (s *Scene) NewFrame() {
	s.add(command.OpNewFrame, nil)
}

// Raw records an already encoded command, for replaying captured
// command streams.
func (s *Scene) Raw(op command.Opcode, payload []byte) {
	if s.err != nil {
		return
	}
	if s.submitted {
		s.err = ErrSubmitted
		return
	}
	if err := s.b.Add(op, payload); err != nil {
		s.err = err
	}
}

func (s *Scene) finish(seq uint64) (*command.List, error) {
	if s.submitted {
		return nil, ErrSubmitted
	}
	if s.err != nil {
		s.discard()
		return nil, s.err
	}
	s.submitted = true
	return s.b.Finish(seq), nil
}

// discard releases the recorded commands and answers every reply.
func (s *Scene) discard() {
	s.submitted = true
	s.b.Discard()
	for _, f := range s.futures {
		f.Resolve(command.ResultNotHandled)
	}
}

func (s *Scene) reply() *command.Future {
	if n := len(s.futures); n > 0 {
		return s.futures[n-1]
	}
	return nil
}
