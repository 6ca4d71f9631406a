// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/internal/cache"
)

// Name is the backend name reported by Backend.Name.
const Name = "wgpu"

type texture struct {
	desc backend.ImageDesc
	tex  hal.Texture
}

type textureView struct {
	image  backend.ImageID
	format gputypes.TextureFormat
	view   hal.TextureView
}

type framebuffer struct {
	color, depth backend.ViewID
}

type contextState struct {
	state backend.FixedState
}

// retired holds resources to release once a submission has completed.
type retired struct {
	index   uint64
	release func()
}

// Backend drives a HAL device. It is not safe for concurrent use.
type Backend struct {
	device  hal.Device
	queue   hal.Queue
	info    gpucontext.AdapterInfo
	logger  *slog.Logger
	release func()

	initialized bool
	next        uint64

	contexts     map[backend.ContextID]*contextState
	targets      map[backend.RenderTargetID]backend.RenderTargetDesc
	images       map[backend.ImageID]*texture
	views        map[backend.ViewID]*textureView
	framebuffers map[backend.FramebufferID]*framebuffer
	pipelines    map[backend.PipelineID]*program

	variantCap int
	variants   *cache.Cache[variantKey, hal.RenderPipeline]

	samplers   [2]hal.Sampler // nearest, linear
	pending    []retired
	lastSubmit uint64
}

var _ backend.Backend = (*Backend)(nil)

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

// AdapterInfo returns the adapter the device belongs to.
func (b *Backend) AdapterInfo() gpucontext.AdapterInfo { return b.info }

// Caps implements backend.Backend.
func (b *Backend) Caps() backend.Caps {
	return backend.Caps{CopyImage: true, FormatViews: true}
}

// Init implements backend.Backend.
func (b *Backend) Init() error {
	if b.initialized {
		return nil
	}
	for i, filter := range []gputypes.FilterMode{gputypes.FilterModeNearest, gputypes.FilterModeLinear} {
		s, err := b.device.CreateSampler(&hal.SamplerDescriptor{
			Label:        "gxm_sampler",
			AddressModeU: gputypes.AddressModeClampToEdge,
			AddressModeV: gputypes.AddressModeClampToEdge,
			AddressModeW: gputypes.AddressModeClampToEdge,
			MagFilter:    filter,
			MinFilter:    filter,
			MipmapFilter: gputypes.FilterModeNearest,
			LodMaxClamp:  32,
		})
		if err != nil {
			b.destroySamplers()
			return fmt.Errorf("wgpu: create sampler: %w", err)
		}
		b.samplers[i] = s
	}

	b.contexts = make(map[backend.ContextID]*contextState)
	b.targets = make(map[backend.RenderTargetID]backend.RenderTargetDesc)
	b.images = make(map[backend.ImageID]*texture)
	b.views = make(map[backend.ViewID]*textureView)
	b.framebuffers = make(map[backend.FramebufferID]*framebuffer)
	b.pipelines = make(map[backend.PipelineID]*program)
	b.variants = cache.NewWithEvict(b.variantCap, func(_ variantKey, p hal.RenderPipeline) {
		b.retire(func() { b.device.DestroyRenderPipeline(p) })
	})
	b.initialized = true
	b.logger.Info("wgpu: backend initialized", "adapter", b.info.Name)
	return nil
}

func (b *Backend) destroySamplers() {
	for i, s := range b.samplers {
		if s != nil {
			b.device.DestroySampler(s)
			b.samplers[i] = nil
		}
	}
}

// Close implements backend.Backend. Objects still alive are destroyed in
// dependency order.
func (b *Backend) Close() {
	if !b.initialized {
		return
	}
	if err := b.device.WaitIdle(); err != nil {
		b.logger.Warn("wgpu: wait idle on close", "err", err)
	}

	for id := range b.pipelines {
		b.DestroyPipeline(id)
	}
	b.framebuffers = nil
	for id := range b.views {
		b.DestroyView(id)
	}
	for id := range b.images {
		b.DestroyImage(id)
	}
	b.collect(true)
	b.destroySamplers()
	b.initialized = false
	if b.release != nil {
		b.release()
		b.release = nil
	}
}

func (b *Backend) id() uint64 {
	b.next++
	return b.next
}

func (b *Backend) check() error {
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	return nil
}

// encode records commands with fn and submits them. Resources passed in
// release are freed once the submission completes.
func (b *Backend) encode(label string, fn func(enc hal.CommandEncoder), release ...func()) (uint64, error) {
	enc, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return 0, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	fn(enc)
	cmd, err := enc.EndEncoding()
	if err != nil {
		return 0, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	index, err := b.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		b.device.FreeCommandBuffer(cmd)
		return 0, fmt.Errorf("wgpu: submit: %w", err)
	}
	b.lastSubmit = index
	b.retire(func() { b.device.FreeCommandBuffer(cmd) })
	for _, r := range release {
		b.retire(r)
	}
	b.collect(false)
	return index, nil
}

// retire releases fn once the last submission has completed.
func (b *Backend) retire(fn func()) {
	b.pending = append(b.pending, retired{index: b.lastSubmit, release: fn})
}

// collect releases resources whose submission has completed, or all of
// them when all is set.
func (b *Backend) collect(all bool) {
	done := b.queue.PollCompleted()
	keep := b.pending[:0]
	for _, r := range b.pending {
		if all || r.index <= done {
			r.release()
			continue
		}
		keep = append(keep, r)
	}
	b.pending = keep
}

// CreateContext implements backend.Backend.
func (b *Backend) CreateContext() (backend.ContextID, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	id := backend.ContextID(b.id())
	b.contexts[id] = &contextState{state: backend.DefaultFixedState()}
	return id, nil
}

// DestroyContext implements backend.Backend.
func (b *Backend) DestroyContext(id backend.ContextID) {
	delete(b.contexts, id)
}

// CreateRenderTarget implements backend.Backend. Render targets carry no
// device object on WebGPU.
func (b *Backend) CreateRenderTarget(desc backend.RenderTargetDesc) (backend.RenderTargetID, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	if desc.Width == 0 || desc.Height == 0 {
		return 0, fmt.Errorf("wgpu: render target %dx%d: empty", desc.Width, desc.Height)
	}
	id := backend.RenderTargetID(b.id())
	b.targets[id] = desc
	return id, nil
}

// DestroyRenderTarget implements backend.Backend.
func (b *Backend) DestroyRenderTarget(id backend.RenderTargetID) {
	delete(b.targets, id)
}

// CreateFramebuffer implements backend.Backend. WebGPU has no framebuffer
// object; the pair is resolved into a render pass at draw time.
func (b *Backend) CreateFramebuffer(color, depth backend.ViewID) (backend.FramebufferID, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	if color == 0 && depth == 0 {
		return 0, fmt.Errorf("wgpu: framebuffer without attachments")
	}
	for _, v := range []backend.ViewID{color, depth} {
		if _, ok := b.views[v]; v != 0 && !ok {
			return 0, fmt.Errorf("wgpu: framebuffer view %d: %w", v, backend.ErrUnknownObject)
		}
	}
	id := backend.FramebufferID(b.id())
	b.framebuffers[id] = &framebuffer{color: color, depth: depth}
	return id, nil
}

// DestroyFramebuffer implements backend.Backend.
func (b *Backend) DestroyFramebuffer(id backend.FramebufferID) {
	delete(b.framebuffers, id)
}

// ApplyState implements backend.Backend. Changes are folded into the
// context and take effect when the next draw selects its pipeline.
func (b *Backend) ApplyState(id backend.ContextID, change backend.StateChange) error {
	c, ok := b.contexts[id]
	if !ok {
		return fmt.Errorf("wgpu: context %d: %w", id, backend.ErrUnknownObject)
	}
	switch ch := change.(type) {
	case backend.ProgramBinding:
		if _, ok := b.pipelines[ch.Pipeline]; ch.Pipeline != 0 && !ok {
			return fmt.Errorf("wgpu: bind pipeline %d: %w", ch.Pipeline, backend.ErrUnknownObject)
		}
	case backend.Polygon:
		if ch.Mode != backend.PolygonFill {
			b.logger.Debug("wgpu: polygon mode ignored", "mode", ch.Mode)
		}
	}
	c.state.Apply(change)
	return nil
}
