// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gxm/backend"
)

// halProvider is implemented by providers that expose HAL types.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NoopProvider is a gpucontext.DeviceProvider backed by the HAL noop
// device. Buffers keep their contents; textures store nothing.
type NoopProvider struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
}

var _ gpucontext.DeviceProvider = (*NoopProvider)(nil)

// NewNoopProvider opens a noop device.
func NewNoopProvider() (*NoopProvider, error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("wgpu: noop instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: noop: no adapter")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: noop open: %w", err)
	}
	return &NoopProvider{instance: instance, device: open.Device, queue: open.Queue}, nil
}

func (p *NoopProvider) Device() gpucontext.Device             { return p.device }
func (p *NoopProvider) Queue() gpucontext.Queue               { return p.queue }
func (p *NoopProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (p *NoopProvider) Adapter() gpucontext.Adapter           { return nil }
func (p *NoopProvider) HalDevice() any                        { return p.device }
func (p *NoopProvider) HalQueue() any                         { return p.queue }
func (p *NoopProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "noop", Type: gpucontext.AdapterTypeSoftware}
}

// Release destroys the noop device and instance.
func (p *NoopProvider) Release() {
	if p.device != nil {
		p.device.Destroy()
		p.device = nil
	}
	if p.instance != nil {
		p.instance.Destroy()
		p.instance = nil
	}
}

// NoopName is the registry name of the noop-backed backend.
const NoopName = "wgpu-noop"

func init() {
	backend.Register(NoopName, backend.PriorityNull, func() backend.Backend {
		p, err := NewNoopProvider()
		if err != nil {
			return nil
		}
		b, err := New(p)
		if err != nil {
			p.Release()
			return nil
		}
		b.release = p.Release
		return b
	})
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithPipelineCacheSize bounds the number of pipeline variants kept alive.
func WithPipelineCacheSize(n int) Option {
	return func(b *Backend) { b.variantCap = n }
}

// New creates a backend on the provider's device. The provider must expose
// HalDevice() and HalQueue().
func New(provider gpucontext.DeviceProvider, opts ...Option) (*Backend, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider does not expose HAL types: %w", backend.ErrBackendNotAvailable)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}
	b := &Backend{
		device:     device,
		queue:      queue,
		info:       provider.AdapterInfo(),
		logger:     slog.New(slog.DiscardHandler),
		variantCap: 256,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}
