// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gxm/backend"
)

// transient is a per-draw buffer uploaded through the queue.
func (b *Backend) transient(label string, usage gputypes.BufferUsage, data []byte, align int) (hal.Buffer, uint64, error) {
	size := uint64((len(data) + align - 1) &^ (align - 1))
	if size == 0 {
		size = uint64(align)
	}
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("wgpu: %s buffer: %w", label, err)
	}
	padded := data
	if uint64(len(data)) != size {
		padded = make([]byte, size)
		copy(padded, data)
	}
	if err := b.queue.WriteBuffer(buf, 0, padded); err != nil {
		b.device.DestroyBuffer(buf)
		return nil, 0, fmt.Errorf("wgpu: write %s buffer: %w", label, err)
	}
	return buf, size, nil
}

// Draw implements backend.Backend. Each draw is its own render pass that
// loads and stores the attachments.
func (b *Backend) Draw(id backend.ContextID, call *backend.DrawCall) error {
	c, ok := b.contexts[id]
	if !ok {
		return fmt.Errorf("wgpu: context %d: %w", id, backend.ErrUnknownObject)
	}
	p, ok := b.pipelines[call.Pipeline]
	if !ok {
		return fmt.Errorf("wgpu: draw with pipeline %d: %w", call.Pipeline, backend.ErrUnknownObject)
	}
	fb, ok := b.framebuffers[call.Framebuffer]
	if !ok {
		return fmt.Errorf("wgpu: framebuffer %d: %w", call.Framebuffer, backend.ErrUnknownObject)
	}
	if c.state.Clip.Mode == backend.ClipAll || call.IndexCount == 0 {
		return nil
	}

	var colorView, depthView *textureView
	var colorFormat, depthFormat gputypes.TextureFormat
	if fb.color != 0 {
		colorView = b.views[fb.color]
		colorFormat = colorView.format
	}
	if fb.depth != 0 {
		depthView = b.views[fb.depth]
		depthFormat = depthView.format
	}

	key, err := makeVariantKey(&c.state, call, colorFormat, depthFormat)
	if err != nil {
		return err
	}
	pipe, err := b.variants.GetOrTryCreate(key, func() (hal.RenderPipeline, error) {
		return b.createVariant(key, p)
	})
	if err != nil {
		return err
	}

	var release []func()
	defer func() {
		// Only reached with release pending when encoding failed.
		for _, r := range release {
			r()
		}
	}()
	track := func(buf hal.Buffer) {
		release = append(release, func() { b.device.DestroyBuffer(buf) })
	}

	index, _, err := b.transient("gxm_index", gputypes.BufferUsageIndex, call.Indices, 4)
	if err != nil {
		return err
	}
	track(index)

	vertex := make([]hal.Buffer, len(call.Streams))
	for i, st := range call.Streams {
		if vertex[i], _, err = b.transient("gxm_vertex", gputypes.BufferUsageVertex, st.Data, 4); err != nil {
			return err
		}
		track(vertex[i])
	}

	var entries []gputypes.BindGroupEntry
	uniform := func(binding uint32, data []byte, blockSize int) error {
		if blockSize == 0 {
			return nil
		}
		block := make([]byte, blockSize)
		copy(block, data)
		buf, size, err := b.transient("gxm_uniforms", gputypes.BufferUsageUniform, block, 16)
		if err != nil {
			return err
		}
		track(buf)
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  binding,
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Size: size},
		})
		return nil
	}
	if err := uniform(bindingVertexUniforms, call.VertexUniforms, p.vertex.Reflection.UniformBlockSize); err != nil {
		return err
	}
	if err := uniform(bindingFragmentUniforms, call.FragmentUniforms, p.fragment.Reflection.UniformBlockSize); err != nil {
		return err
	}
	for _, slot := range p.fragment.Reflection.Samplers {
		var tex *backend.Texture
		for i := range call.Textures {
			if call.Textures[i].Slot == slot {
				tex = &call.Textures[i]
			}
		}
		if tex == nil {
			return fmt.Errorf("wgpu: texture slot %d not bound", slot)
		}
		v, ok := b.views[tex.View]
		if !ok {
			return fmt.Errorf("wgpu: texture view %d: %w", tex.View, backend.ErrUnknownObject)
		}
		sampler := b.samplers[0]
		if tex.Linear {
			sampler = b.samplers[1]
		}
		entries = append(entries,
			gputypes.BindGroupEntry{
				Binding:  uint32(bindingFirstTexture + 2*slot),
				Resource: gputypes.TextureViewBinding{TextureView: v.view.NativeHandle()},
			},
			gputypes.BindGroupEntry{
				Binding:  uint32(bindingFirstTexture + 2*slot + 1),
				Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()},
			},
		)
	}
	group, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "gxm_draw",
		Layout:  p.groupLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("wgpu: bind group: %w", err)
	}
	release = append(release, func() { b.device.DestroyBindGroup(group) })

	pass := &hal.RenderPassDescriptor{Label: "gxm_draw"}
	if colorView != nil {
		pass.ColorAttachments = []hal.RenderPassColorAttachment{{
			View:    colorView.view,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		}}
	}
	if depthView != nil {
		ds := &hal.RenderPassDepthStencilAttachment{
			View:         depthView.view,
			DepthLoadOp:  gputypes.LoadOpLoad,
			DepthStoreOp: gputypes.StoreOpStore,
		}
		if depthFormat.HasStencil() {
			ds.StencilLoadOp = gputypes.LoadOpLoad
			ds.StencilStoreOp = gputypes.StoreOpStore
		}
		pass.DepthStencilAttachment = ds
	}

	region := call.Region(b.attachmentSize(fb))
	s := &c.state
	front, _ := s.Effective()
	_, err = b.encode("gxm_draw", func(enc hal.CommandEncoder) {
		rp := enc.BeginRenderPass(pass)
		rp.SetPipeline(pipe)
		rp.SetBindGroup(0, group, nil)
		for i, buf := range vertex {
			rp.SetVertexBuffer(uint32(i), buf, 0)
		}
		rp.SetIndexBuffer(index, call.IndexFormat, 0)
		ox, oy := float32(region.X), float32(region.Y)
		if vp := s.Viewport; vp.Enabled {
			rp.SetViewport(ox+vp.X, oy+vp.Y, vp.Width, vp.Height, vp.MinDepth, vp.MaxDepth)
		} else {
			rp.SetViewport(ox, oy, float32(region.Width), float32(region.Height), 0, 1)
		}
		scissor := region
		if s.Clip.Mode == backend.ClipOutside {
			r := clampRect(s.Clip.Rect, region.Width, region.Height)
			scissor = backend.Rect{X: region.X + r.X, Y: region.Y + r.Y, Width: r.Width, Height: r.Height}
		}
		rp.SetScissorRect(scissor.X, scissor.Y, scissor.Width, scissor.Height)
		rp.SetStencilReference(uint32(front.Ref))
		rp.DrawIndexed(call.IndexCount, max(call.Instances, 1), 0, 0, 0)
		rp.End()
	}, release...)
	if err != nil {
		return err
	}
	release = nil
	return nil
}

// attachmentSize returns the size of the images behind fb.
func (b *Backend) attachmentSize(fb *framebuffer) (uint32, uint32) {
	for _, id := range []backend.ViewID{fb.color, fb.depth} {
		if v, ok := b.views[id]; ok {
			if t, ok := b.images[v.image]; ok {
				return t.desc.Width, t.desc.Height
			}
		}
	}
	return 0, 0
}

func clampRect(r backend.Rect, w, h uint32) backend.Rect {
	x, y := min(r.X, w), min(r.Y, h)
	return backend.Rect{X: x, Y: y, Width: min(r.Width, w-x), Height: min(r.Height, h-y)}
}
