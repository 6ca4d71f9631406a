// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gxm/backend"
)

// copyPitchAlignment is the WebGPU row alignment for buffer copies.
const copyPitchAlignment = 256

func textureUsage(u backend.Usage, format gputypes.TextureFormat) gputypes.TextureUsage {
	usage := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if u.Has(backend.UsageRenderTarget) || u.Has(backend.UsageDepthStencil) || format.IsDepthStencil() {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	if u.Has(backend.UsageSampled) || !format.IsDepthStencil() {
		usage |= gputypes.TextureUsageTextureBinding
	}
	return usage
}

// viewFormats lists the formats a texture may be reinterpreted as.
func viewFormats(f gputypes.TextureFormat) []gputypes.TextureFormat {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm:
		return []gputypes.TextureFormat{gputypes.TextureFormatRGBA8UnormSrgb}
	case gputypes.TextureFormatRGBA8UnormSrgb:
		return []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm}
	case gputypes.TextureFormatBGRA8Unorm:
		return []gputypes.TextureFormat{gputypes.TextureFormatBGRA8UnormSrgb}
	case gputypes.TextureFormatBGRA8UnormSrgb:
		return []gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm}
	}
	return nil
}

func aspect(f gputypes.TextureFormat) gputypes.TextureAspect {
	if f.IsDepthStencil() && !f.HasStencil() {
		return gputypes.TextureAspectDepthOnly
	}
	return gputypes.TextureAspectAll
}

// CreateImage implements backend.Backend.
func (b *Backend) CreateImage(desc backend.ImageDesc) (backend.ImageID, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	if backend.TexelSize(desc.Format) == 0 {
		return 0, fmt.Errorf("wgpu: image format %v: %w", desc.Format, backend.ErrUnsupported)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return 0, fmt.Errorf("wgpu: image %dx%d: empty", desc.Width, desc.Height)
	}
	tex, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         textureUsage(desc.Usage, desc.Format),
		ViewFormats:   viewFormats(desc.Format),
	})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create texture %q: %w", desc.Label, err)
	}
	id := backend.ImageID(b.id())
	b.images[id] = &texture{desc: desc, tex: tex}
	b.logger.Debug("wgpu: image created", "id", id, "label", desc.Label,
		"width", desc.Width, "height", desc.Height, "format", desc.Format)
	return id, nil
}

// DestroyImage implements backend.Backend.
func (b *Backend) DestroyImage(id backend.ImageID) {
	t, ok := b.images[id]
	if !ok {
		return
	}
	delete(b.images, id)
	b.retire(func() { b.device.DestroyTexture(t.tex) })
}

// CreateView implements backend.Backend.
func (b *Backend) CreateView(id backend.ImageID, desc backend.ViewDesc) (backend.ViewID, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	t, ok := b.images[id]
	if !ok {
		return 0, fmt.Errorf("wgpu: view of image %d: %w", id, backend.ErrUnknownObject)
	}
	if desc.ByteOffset != 0 {
		return 0, fmt.Errorf("wgpu: component view: %w", backend.ErrUnsupported)
	}
	format := desc.Format
	if format == gputypes.TextureFormatUndefined {
		format = t.desc.Format
	}
	if format != t.desc.Format {
		allowed := false
		for _, f := range viewFormats(t.desc.Format) {
			allowed = allowed || f == format
		}
		if !allowed {
			return 0, fmt.Errorf("wgpu: %v view of %v texture: %w", format, t.desc.Format, backend.ErrUnsupported)
		}
	}
	view, err := b.device.CreateTextureView(t.tex, &hal.TextureViewDescriptor{
		Label:           t.desc.Label,
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create view: %w", err)
	}
	vid := backend.ViewID(b.id())
	b.views[vid] = &textureView{image: id, format: format, view: view}
	return vid, nil
}

// DestroyView implements backend.Backend.
func (b *Backend) DestroyView(id backend.ViewID) {
	v, ok := b.views[id]
	if !ok {
		return
	}
	delete(b.views, id)
	b.retire(func() { b.device.DestroyTextureView(v.view) })
}

func (b *Backend) texture(id backend.ImageID, r backend.Rect) (*texture, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	t, ok := b.images[id]
	if !ok {
		return nil, fmt.Errorf("wgpu: image %d: %w", id, backend.ErrUnknownObject)
	}
	if !r.Within(t.desc.Width, t.desc.Height) {
		return nil, fmt.Errorf("wgpu: rect %+v in %dx%d image: %w", r, t.desc.Width, t.desc.Height, backend.ErrOutOfBounds)
	}
	return t, nil
}

// ClearImage implements backend.Backend with an empty render pass.
func (b *Backend) ClearImage(id backend.ImageID, v backend.ClearValue) error {
	t, err := b.texture(id, backend.Rect{})
	if err != nil {
		return err
	}
	view, err := b.device.CreateTextureView(t.tex, &hal.TextureViewDescriptor{
		Label:           "gxm_clear",
		Format:          t.desc.Format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return fmt.Errorf("wgpu: clear view: %w", err)
	}

	pass := &hal.RenderPassDescriptor{Label: "gxm_clear"}
	if t.desc.Format.IsDepthStencil() {
		ds := &hal.RenderPassDepthStencilAttachment{
			View:            view,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: v.Depth,
		}
		if t.desc.Format.HasStencil() {
			ds.StencilLoadOp = gputypes.LoadOpClear
			ds.StencilStoreOp = gputypes.StoreOpStore
			ds.StencilClearValue = v.Stencil
		}
		pass.DepthStencilAttachment = ds
	} else {
		pass.ColorAttachments = []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: v.Color,
		}}
	}
	_, err = b.encode("gxm_clear", func(enc hal.CommandEncoder) {
		enc.BeginRenderPass(pass).End()
	}, func() { b.device.DestroyTextureView(view) })
	return err
}

// WriteImage implements backend.Backend.
func (b *Backend) WriteImage(id backend.ImageID, r backend.Rect, data []byte) error {
	t, err := b.texture(id, r)
	if err != nil {
		return err
	}
	rowBytes := r.Width * backend.TexelSize(t.desc.Format)
	if uint64(len(data)) < uint64(rowBytes)*uint64(r.Height) {
		return fmt.Errorf("wgpu: write %d bytes, need %d", len(data), rowBytes*r.Height)
	}
	err = b.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture: t.tex,
			Origin:  hal.Origin3D{X: r.X, Y: r.Y},
			Aspect:  gputypes.TextureAspectAll,
		},
		data,
		&hal.ImageDataLayout{BytesPerRow: rowBytes, RowsPerImage: r.Height},
		&hal.Extent3D{Width: r.Width, Height: r.Height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("wgpu: write texture: %w", err)
	}
	return nil
}

// ReadImage implements backend.Backend. The copy goes through a mapped
// staging buffer and waits for the device to go idle.
func (b *Backend) ReadImage(id backend.ImageID, r backend.Rect, dst []byte) error {
	t, err := b.texture(id, r)
	if err != nil {
		return err
	}
	rowBytes := r.Width * backend.TexelSize(t.desc.Format)
	if uint64(len(dst)) < uint64(rowBytes)*uint64(r.Height) {
		return fmt.Errorf("wgpu: read into %d bytes, need %d", len(dst), rowBytes*r.Height)
	}
	aligned := (rowBytes + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	size := uint64(aligned) * uint64(r.Height)

	staging, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "gxm_readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: staging buffer: %w", err)
	}
	defer b.device.DestroyBuffer(staging)

	_, err = b.encode("gxm_readback", func(enc hal.CommandEncoder) {
		enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: t.tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageRenderAttachment,
				NewUsage: gputypes.TextureUsageCopySrc,
			},
		}})
		enc.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{BytesPerRow: aligned, RowsPerImage: r.Height},
			TextureBase: hal.ImageCopyTexture{
				Texture: t.tex,
				Origin:  hal.Origin3D{X: r.X, Y: r.Y},
				Aspect:  aspect(t.desc.Format),
			},
			Size: hal.Extent3D{Width: r.Width, Height: r.Height, DepthOrArrayLayers: 1},
		}})
		enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: t.tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageCopySrc,
				NewUsage: gputypes.TextureUsageRenderAttachment,
			},
		}})
	})
	if err != nil {
		return err
	}
	if err := b.device.WaitIdle(); err != nil {
		return fmt.Errorf("wgpu: wait for readback: %w", err)
	}
	b.collect(false)

	mapping, err := b.device.MapBuffer(staging, 0, size)
	if err != nil {
		return fmt.Errorf("wgpu: map staging buffer: %w", err)
	}
	src := unsafe.Slice((*byte)(mapping.Ptr), size)
	for y := uint32(0); y < r.Height; y++ {
		copy(dst[y*rowBytes:(y+1)*rowBytes], src[y*aligned:y*aligned+rowBytes])
	}
	if err := b.device.UnmapBuffer(staging); err != nil {
		return fmt.Errorf("wgpu: unmap staging buffer: %w", err)
	}
	return nil
}

// CopyImage implements backend.Backend.
func (b *Backend) CopyImage(dst backend.ImageID, dstX, dstY uint32, src backend.ImageID, r backend.Rect) error {
	s, err := b.texture(src, r)
	if err != nil {
		return err
	}
	d, err := b.texture(dst, backend.Rect{X: dstX, Y: dstY, Width: r.Width, Height: r.Height})
	if err != nil {
		return err
	}
	if backend.TexelSize(s.desc.Format) != backend.TexelSize(d.desc.Format) {
		return fmt.Errorf("wgpu: copy %v to %v: %w", s.desc.Format, d.desc.Format, backend.ErrUnsupported)
	}
	_, err = b.encode("gxm_copy", func(enc hal.CommandEncoder) {
		enc.CopyTextureToTexture(s.tex, d.tex, []hal.TextureCopy{{
			SrcBase: hal.ImageCopyTexture{Texture: s.tex, Origin: hal.Origin3D{X: r.X, Y: r.Y}, Aspect: gputypes.TextureAspectAll},
			DstBase: hal.ImageCopyTexture{Texture: d.tex, Origin: hal.Origin3D{X: dstX, Y: dstY}, Aspect: gputypes.TextureAspectAll},
			Size:    hal.Extent3D{Width: r.Width, Height: r.Height, DepthOrArrayLayers: 1},
		}})
	})
	return err
}
