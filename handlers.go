// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gxm

import (
	"errors"
	"fmt"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/command"
	"github.com/gogpu/gxm/state"
)

func (r *Renderer) registerHandlers() {
	p := r.proc
	p.Handle(command.OpSetContext, r.handleSetContext)
	p.Handle(command.OpSyncSurfaceData, r.handleSyncSurfaceData)
	p.Handle(command.OpCreateContext, r.handleCreateContext)
	p.Handle(command.OpCreateRenderTarget, r.handleCreateRenderTarget)
	p.Handle(command.OpDraw, r.handleDraw)
	p.Handle(command.OpNop, r.handleNop)
	p.Handle(command.OpSetState, r.handleSetState)
	p.Handle(command.OpSignalSyncObject, r.handleSignalSyncObject)
	p.Handle(command.OpDestroyContext, r.handleDestroyContext)
	p.Handle(command.OpDestroyRenderTarget, r.handleDestroyRenderTarget)
	p.Handle(command.OpNewFrame, r.handleNewFrame)
}

// decode reads a fixed-size payload and rejects trailing bytes.
func decode[T any](h *command.Helper) (T, error) {
	v := command.Pop[T](h)
	return v, h.Finish()
}

func malformed(err error) bool {
	return errors.Is(err, command.ErrShortPayload) || errors.Is(err, command.ErrTrailingPayload)
}

func (r *Renderer) skip(l *command.List, h *command.Helper, err error) {
	r.logger.Warn("gxm: malformed command, skipping",
		"op", h.Opcode(), "context", l.Context, "seq", l.Seq, "err", err)
	h.Complete(command.ResultError)
}

func (r *Renderer) context(l *command.List, h *command.Helper) (*guestContext, bool) {
	c, ok := r.contexts[l.Context]
	if !ok {
		r.logger.Warn("gxm: command for unknown context, skipping",
			"op", h.Opcode(), "context", l.Context, "seq", l.Seq)
		h.Complete(command.ResultError)
	}
	return c, ok
}

func (r *Renderer) handleCreateContext(l *command.List, h *command.Helper) {
	a, err := decode[ObjectArgs](h)
	if err != nil {
		r.skip(l, h, err)
		return
	}
	if _, ok := r.contexts[a.ID]; ok {
		r.logger.Warn("gxm: context already exists", "context", a.ID)
		h.Complete(command.ResultError)
		return
	}
	c, err := r.machine.NewContext(a.ID)
	if err != nil {
		r.logger.Warn("gxm: create context failed", "context", a.ID, "err", err)
		h.Complete(command.ResultBackendFailure)
		return
	}
	r.contexts[a.ID] = &guestContext{state: c}
	r.logger.Info("gxm: context created", "context", a.ID)
	h.Complete(command.ResultOK)
}

func (r *Renderer) handleDestroyContext(l *command.List, h *command.Helper) {
	a, err := decode[ObjectArgs](h)
	if err != nil {
		r.skip(l, h, err)
		return
	}
	c, ok := r.contexts[a.ID]
	if !ok {
		h.Complete(command.ResultError)
		return
	}
	r.machine.DestroyContext(c.state)
	delete(r.contexts, a.ID)
	r.logger.Info("gxm: context destroyed", "context", a.ID)
	h.Complete(command.ResultOK)
}

func (r *Renderer) handleCreateRenderTarget(l *command.List, h *command.Helper) {
	a, err := decode[RenderTargetArgs](h)
	if err != nil {
		r.skip(l, h, err)
		return
	}
	if _, ok := r.targets[a.ID]; ok {
		r.logger.Warn("gxm: render target already exists", "target", a.ID)
		h.Complete(command.ResultError)
		return
	}
	rt, err := r.be.CreateRenderTarget(a.desc())
	if err != nil {
		r.logger.Warn("gxm: create render target failed", "target", a.ID, "err", err)
		h.Complete(command.ResultBackendFailure)
		return
	}
	r.targets[a.ID] = rt
	h.Complete(command.ResultOK)
}

func (r *Renderer) handleDestroyRenderTarget(l *command.List, h *command.Helper) {
	a, err := decode[ObjectArgs](h)
	if err != nil {
		r.skip(l, h, err)
		return
	}
	rt, ok := r.targets[a.ID]
	if !ok {
		h.Complete(command.ResultError)
		return
	}
	r.be.DestroyRenderTarget(rt)
	delete(r.targets, a.ID)
	h.Complete(command.ResultOK)
}

// handleSetContext binds the scene's surfaces. A failed acquire leaves
// the context without a target, so its draws are skipped.
func (r *Renderer) handleSetContext(l *command.List, h *command.Helper) {
	c, ok := r.context(l, h)
	if !ok {
		return
	}
	a, err := r.contextArgs(l, h)
	if err != nil {
		r.skip(l, h, err)
		return
	}
	c.color, c.depth = nil, nil
	c.state.SetTarget(state.Target{})
	r.bind(l, c, a)
}

// contextArgs decodes a SetContext payload. An empty payload takes the
// targets from the scene state recorded with the list.
func (r *Renderer) contextArgs(l *command.List, h *command.Helper) (SetContextArgs, error) {
	if h.Remaining() > 0 {
		return decode[SetContextArgs](h)
	}
	st, ok := l.Snapshot.(*SceneState)
	if !ok {
		return SetContextArgs{}, fmt.Errorf("%w: no targets and no scene state", command.ErrShortPayload)
	}
	return st.Targets, nil
}

func (r *Renderer) bind(l *command.List, c *guestContext, a SetContextArgs) {
	var color, depth backend.ViewID
	var width, height, x, y uint32
	if a.Color.Bound() {
		s, v, err := r.surfaces.AcquireColor(a.Color.request())
		if err != nil {
			r.logger.Warn("gxm: acquire colour surface", "context", l.Context, "err", err)
			return
		}
		c.color, color = s, v
		width, height = a.Color.Width, a.Color.Height
		x, y, _ = s.Origin(a.Color.Address)
	}
	if a.Depth.Bound() {
		s, v, err := r.surfaces.AcquireDepthStencil(a.Depth.request())
		if err != nil {
			r.logger.Warn("gxm: acquire depth surface", "context", l.Context, "err", err)
			c.color = nil
			return
		}
		c.depth, depth = s, v
		if width == 0 {
			width, height = a.Depth.Width, a.Depth.Height
			x, y, _ = s.Origin(a.Depth.Address)
		}
	}
	if color == 0 && depth == 0 {
		return
	}
	fb, err := r.surfaces.Framebuffer(color, depth)
	if err != nil {
		r.logger.Warn("gxm: framebuffer", "context", l.Context, "err", err)
		c.color, c.depth = nil, nil
		return
	}
	c.state.SetTarget(state.Target{Framebuffer: fb, Width: width, Height: height, X: x, Y: y})
}

func (r *Renderer) handleSetState(l *command.List, h *command.Helper) {
	c, ok := r.context(l, h)
	if !ok {
		return
	}
	if err := r.machine.SetState(c.state, h); err != nil {
		r.logger.Warn("gxm: set state failed, skipping", "context", l.Context, "seq", l.Seq, "err", err)
	}
}

func (r *Renderer) handleDraw(l *command.List, h *command.Helper) {
	c, ok := r.context(l, h)
	if !ok {
		return
	}
	drawn, err := r.machine.Draw(c.state, h)
	switch {
	case err != nil && malformed(err):
		r.skip(l, h, err)
		return
	case err != nil:
		r.logger.Debug("gxm: draw skipped", "context", l.Context, "seq", l.Seq, "err", err)
	}
	if !drawn {
		return
	}
	if c.color != nil {
		r.surfaces.MarkRendered(c.color)
	}
	if c.depth != nil {
		r.surfaces.MarkRendered(c.depth)
	}
}

func (r *Renderer) handleSyncSurfaceData(l *command.List, h *command.Helper) {
	a, err := decode[SyncArgs](h)
	if err != nil {
		r.skip(l, h, err)
		return
	}
	n := r.surfaces.Sync(a.Address, a.Size)
	r.logger.Debug("gxm: surface sync", "addr", a.Address, "size", a.Size, "flushed", n)
	h.Complete(command.ResultOK)
}

// handleNop completes with its optional int32 argument.
func (r *Renderer) handleNop(l *command.List, h *command.Helper) {
	res := command.ResultOK
	if h.Remaining() > 0 {
		res = command.Result(h.Int32())
	}
	if err := h.Finish(); err != nil {
		r.skip(l, h, err)
		return
	}
	h.Complete(res)
}

func (r *Renderer) handleSignalSyncObject(l *command.List, h *command.Helper) {
	a, err := decode[SignalArgs](h)
	if err != nil {
		r.skip(l, h, err)
		return
	}
	r.syncs.signal(a.ID, a.Value)
}

func (r *Renderer) handleNewFrame(l *command.List, h *command.Helper) {
	if err := h.Finish(); err != nil {
		r.skip(l, h, err)
		return
	}
	r.surfaces.EndScene()
}
