// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package headless is an in-memory backend.
//
// Images are byte slices in their host format, so copies and readbacks are
// exact. A draw does not rasterize triangles: it fills the clipped
// viewport of the colour target with the colour held in the first 16
// bytes of the fragment uniforms (or the configured fill colour), which
// is enough to observe what the renderer core decided to do.
package headless

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/shader"
)

// Name is the registry name of the headless backend.
const Name = "headless"

func init() {
	backend.Register(Name, backend.PriorityHeadless, func() backend.Backend { return New() })
}

// Counters counts backend calls. Live values are current object counts.
type Counters struct {
	ImagesCreated   int
	ImagesDestroyed int
	ViewsCreated    int
	ViewsDestroyed  int
	Framebuffers    int // live
	Pipelines       int // live
	Clears          int
	Writes          int
	Reads           int
	Copies          int
	Draws           int
	StateChanges    int
}

// LiveImages returns the number of images not yet destroyed.
func (c Counters) LiveImages() int { return c.ImagesCreated - c.ImagesDestroyed }

// LiveViews returns the number of views not yet destroyed.
func (c Counters) LiveViews() int { return c.ViewsCreated - c.ViewsDestroyed }

type image struct {
	desc  backend.ImageDesc
	texel uint32
	data  []byte
}

type view struct {
	image backend.ImageID
	desc  backend.ViewDesc
	texel uint32
}

type framebuffer struct {
	color, depth backend.ViewID
}

type pipeline struct {
	vertex, fragment *shader.Module
}

type contextState struct {
	state backend.FixedState
}

// Option configures a Backend.
type Option func(*Backend)

// WithCaps overrides the advertised capabilities.
func WithCaps(c backend.Caps) Option {
	return func(b *Backend) { b.caps = c }
}

// WithFillColor sets the colour drawn when a draw carries no fragment
// uniforms.
func WithFillColor(c gputypes.Color) Option {
	return func(b *Backend) { b.fill = c }
}

// WithLogger sets the logger for per-call diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// Backend is the headless backend. It is not safe for concurrent use.
type Backend struct {
	caps   backend.Caps
	fill   gputypes.Color
	logger *slog.Logger

	initialized bool
	next        uint64

	contexts     map[backend.ContextID]*contextState
	targets      map[backend.RenderTargetID]backend.RenderTargetDesc
	images       map[backend.ImageID]*image
	views        map[backend.ViewID]*view
	framebuffers map[backend.FramebufferID]*framebuffer
	pipelines    map[backend.PipelineID]*pipeline

	counters Counters
	lastDraw *backend.DrawCall
}

var _ backend.Backend = (*Backend)(nil)

// New creates a headless backend with every capability enabled.
func New(opts ...Option) *Backend {
	b := &Backend{
		caps: backend.Caps{
			NormalizedSubrect: true,
			CopyImage:         true,
			FormatViews:       true,
			ComponentViews:    true,
		},
		fill:   gputypes.Color{R: 1, G: 1, B: 1, A: 1},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

// Init implements backend.Backend.
func (b *Backend) Init() error {
	if b.initialized {
		return nil
	}
	b.contexts = make(map[backend.ContextID]*contextState)
	b.targets = make(map[backend.RenderTargetID]backend.RenderTargetDesc)
	b.images = make(map[backend.ImageID]*image)
	b.views = make(map[backend.ViewID]*view)
	b.framebuffers = make(map[backend.FramebufferID]*framebuffer)
	b.pipelines = make(map[backend.PipelineID]*pipeline)
	b.initialized = true
	return nil
}

// Close implements backend.Backend.
func (b *Backend) Close() {
	b.initialized = false
	b.contexts, b.targets, b.images, b.views = nil, nil, nil, nil
	b.framebuffers, b.pipelines = nil, nil
}

// Caps implements backend.Backend.
func (b *Backend) Caps() backend.Caps { return b.caps }

// Counters returns a snapshot of the call counters.
func (b *Backend) Counters() Counters { return b.counters }

// LastDraw returns the most recent draw call, or nil.
func (b *Backend) LastDraw() *backend.DrawCall { return b.lastDraw }

// State returns the fixed-function state of a context.
func (b *Backend) State(id backend.ContextID) (backend.FixedState, bool) {
	c, ok := b.contexts[id]
	if !ok {
		return backend.FixedState{}, false
	}
	return c.state, true
}

// Image returns the raw bytes of an image.
func (b *Backend) Image(id backend.ImageID) ([]byte, bool) {
	img, ok := b.images[id]
	if !ok {
		return nil, false
	}
	return img.data, true
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

// CreateRenderTarget implements backend.Backend.
func (b *Backend) CreateRenderTarget(desc backend.RenderTargetDesc) (backend.RenderTargetID, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	if desc.Width == 0 || desc.Height == 0 {
		return 0, fmt.Errorf("headless: render target %dx%d: empty", desc.Width, desc.Height)
	}
	id := backend.RenderTargetID(b.id())
	b.targets[id] = desc
	return id, nil
}

// DestroyRenderTarget implements backend.Backend.
func (b *Backend) DestroyRenderTarget(id backend.RenderTargetID) {
	delete(b.targets, id)
}

// CreateImage implements backend.Backend.
func (b *Backend) CreateImage(desc backend.ImageDesc) (backend.ImageID, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	texel := backend.TexelSize(desc.Format)
	if texel == 0 {
		return 0, fmt.Errorf("headless: image format %v: %w", desc.Format, backend.ErrUnsupported)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return 0, fmt.Errorf("headless: image %dx%d: empty", desc.Width, desc.Height)
	}
	id := backend.ImageID(b.id())
	b.images[id] = &image{
		desc:  desc,
		texel: texel,
		data:  make([]byte, int(desc.Width)*int(desc.Height)*int(texel)),
	}
	b.counters.ImagesCreated++
	b.logger.Debug("headless: image created", "id", id, "label", desc.Label,
		"width", desc.Width, "height", desc.Height, "format", desc.Format)
	return id, nil
}

// DestroyImage implements backend.Backend. Views of the image must have
// been destroyed first.
func (b *Backend) DestroyImage(id backend.ImageID) {
	if _, ok := b.images[id]; !ok {
		return
	}
	for vid, v := range b.views {
		if v.image == id {
			b.logger.Warn("headless: image destroyed before its view", "image", id, "view", vid)
		}
	}
	delete(b.images, id)
	b.counters.ImagesDestroyed++
}

// CreateView implements backend.Backend.
func (b *Backend) CreateView(id backend.ImageID, desc backend.ViewDesc) (backend.ViewID, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	img, ok := b.images[id]
	if !ok {
		return 0, fmt.Errorf("headless: view of image %d: %w", id, backend.ErrUnknownObject)
	}
	texel := img.texel
	if desc.Format != gputypes.TextureFormatUndefined && desc.Format != img.desc.Format {
		texel = backend.TexelSize(desc.Format)
		if !b.caps.FormatViews && desc.ByteOffset == 0 {
			return 0, fmt.Errorf("headless: %v view of %v image: %w", desc.Format, img.desc.Format, backend.ErrUnsupported)
		}
	}
	if desc.ByteOffset != 0 {
		if !b.caps.ComponentViews {
			return 0, fmt.Errorf("headless: component view: %w", backend.ErrUnsupported)
		}
		if desc.ByteOffset+texel > img.texel {
			return 0, fmt.Errorf("headless: component view at byte %d exceeds %d-byte texel: %w",
				desc.ByteOffset, img.texel, backend.ErrOutOfBounds)
		}
	} else if texel != img.texel {
		return 0, fmt.Errorf("headless: view texel %d != image texel %d: %w", texel, img.texel, backend.ErrUnsupported)
	}
	vid := backend.ViewID(b.id())
	b.views[vid] = &view{image: id, desc: desc, texel: texel}
	b.counters.ViewsCreated++
	return vid, nil
}

// DestroyView implements backend.Backend.
func (b *Backend) DestroyView(id backend.ViewID) {
	if _, ok := b.views[id]; !ok {
		return
	}
	for fid, fb := range b.framebuffers {
		if fb.color == id || fb.depth == id {
			b.logger.Warn("headless: view destroyed before its framebuffer", "view", id, "framebuffer", fid)
		}
	}
	delete(b.views, id)
	b.counters.ViewsDestroyed++
}

func (b *Backend) image(id backend.ImageID, r backend.Rect) (*image, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	img, ok := b.images[id]
	if !ok {
		return nil, fmt.Errorf("headless: image %d: %w", id, backend.ErrUnknownObject)
	}
	if !r.Within(img.desc.Width, img.desc.Height) {
		return nil, fmt.Errorf("headless: rect %+v in %dx%d image: %w", r, img.desc.Width, img.desc.Height, backend.ErrOutOfBounds)
	}
	return img, nil
}

func (img *image) row(x, y uint32) int {
	return (int(y)*int(img.desc.Width) + int(x)) * int(img.texel)
}

// ClearImage implements backend.Backend.
func (b *Backend) ClearImage(id backend.ImageID, v backend.ClearValue) error {
	img, err := b.image(id, backend.Rect{})
	if err != nil {
		return err
	}
	texel := EncodeClear(img.desc.Format, v)
	for i := 0; i < len(img.data); i += len(texel) {
		copy(img.data[i:], texel)
	}
	b.counters.Clears++
	return nil
}

// WriteImage implements backend.Backend.
func (b *Backend) WriteImage(id backend.ImageID, r backend.Rect, data []byte) error {
	img, err := b.image(id, r)
	if err != nil {
		return err
	}
	rowBytes := int(r.Width) * int(img.texel)
	if len(data) < rowBytes*int(r.Height) {
		return fmt.Errorf("headless: write %d bytes, need %d", len(data), rowBytes*int(r.Height))
	}
	for y := uint32(0); y < r.Height; y++ {
		off := img.row(r.X, r.Y+y)
		copy(img.data[off:off+rowBytes], data[int(y)*rowBytes:])
	}
	b.counters.Writes++
	return nil
}

// ReadImage implements backend.Backend.
func (b *Backend) ReadImage(id backend.ImageID, r backend.Rect, dst []byte) error {
	img, err := b.image(id, r)
	if err != nil {
		return err
	}
	rowBytes := int(r.Width) * int(img.texel)
	if len(dst) < rowBytes*int(r.Height) {
		return fmt.Errorf("headless: read into %d bytes, need %d", len(dst), rowBytes*int(r.Height))
	}
	for y := uint32(0); y < r.Height; y++ {
		off := img.row(r.X, r.Y+y)
		copy(dst[int(y)*rowBytes:], img.data[off:off+rowBytes])
	}
	b.counters.Reads++
	return nil
}

// CopyImage implements backend.Backend.
func (b *Backend) CopyImage(dst backend.ImageID, dstX, dstY uint32, src backend.ImageID, r backend.Rect) error {
	s, err := b.image(src, r)
	if err != nil {
		return err
	}
	d, err := b.image(dst, backend.Rect{X: dstX, Y: dstY, Width: r.Width, Height: r.Height})
	if err != nil {
		return err
	}
	if s.texel != d.texel {
		return fmt.Errorf("headless: copy %v to %v: %w", s.desc.Format, d.desc.Format, backend.ErrUnsupported)
	}
	rowBytes := int(r.Width) * int(s.texel)
	for y := uint32(0); y < r.Height; y++ {
		so := s.row(r.X, r.Y+y)
		do := d.row(dstX, dstY+y)
		copy(d.data[do:do+rowBytes], s.data[so:so+rowBytes])
	}
	b.counters.Copies++
	return nil
}

// CreateFramebuffer implements backend.Backend.
func (b *Backend) CreateFramebuffer(color, depth backend.ViewID) (backend.FramebufferID, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	if color == 0 && depth == 0 {
		return 0, fmt.Errorf("headless: framebuffer without attachments")
	}
	for _, v := range []backend.ViewID{color, depth} {
		if _, ok := b.views[v]; v != 0 && !ok {
			return 0, fmt.Errorf("headless: framebuffer view %d: %w", v, backend.ErrUnknownObject)
		}
	}
	id := backend.FramebufferID(b.id())
	b.framebuffers[id] = &framebuffer{color: color, depth: depth}
	b.counters.Framebuffers++
	return id, nil
}

// DestroyFramebuffer implements backend.Backend.
func (b *Backend) DestroyFramebuffer(id backend.FramebufferID) {
	if _, ok := b.framebuffers[id]; ok {
		delete(b.framebuffers, id)
		b.counters.Framebuffers--
	}
}

// LinkProgram implements backend.Backend.
func (b *Backend) LinkProgram(vertex, fragment *shader.Module) (backend.PipelineID, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	if vertex == nil || fragment == nil {
		return 0, fmt.Errorf("headless: link: missing stage")
	}
	if vertex.Stage != shader.StageVertex || fragment.Stage != shader.StageFragment {
		return 0, fmt.Errorf("headless: link %s with %s", vertex.Stage, fragment.Stage)
	}
	id := backend.PipelineID(b.id())
	b.pipelines[id] = &pipeline{vertex: vertex, fragment: fragment}
	b.counters.Pipelines++
	return id, nil
}

// DestroyPipeline implements backend.Backend.
func (b *Backend) DestroyPipeline(id backend.PipelineID) {
	if _, ok := b.pipelines[id]; ok {
		delete(b.pipelines, id)
		b.counters.Pipelines--
	}
}

// ApplyState implements backend.Backend.
func (b *Backend) ApplyState(id backend.ContextID, change backend.StateChange) error {
	c, ok := b.contexts[id]
	if !ok {
		return fmt.Errorf("headless: context %d: %w", id, backend.ErrUnknownObject)
	}
	if pb, ok := change.(backend.ProgramBinding); ok && pb.Pipeline != 0 {
		if _, ok := b.pipelines[pb.Pipeline]; !ok {
			return fmt.Errorf("headless: bind pipeline %d: %w", pb.Pipeline, backend.ErrUnknownObject)
		}
	}
	c.state.Apply(change)
	b.counters.StateChanges++
	return nil
}

// Draw implements backend.Backend.
func (b *Backend) Draw(id backend.ContextID, call *backend.DrawCall) error {
	c, ok := b.contexts[id]
	if !ok {
		return fmt.Errorf("headless: context %d: %w", id, backend.ErrUnknownObject)
	}
	if _, ok := b.pipelines[call.Pipeline]; !ok {
		return fmt.Errorf("headless: draw with pipeline %d: %w", call.Pipeline, backend.ErrUnknownObject)
	}
	if _, ok := call.Primitive.Topology(); !ok {
		return fmt.Errorf("headless: draw %s: %w", call.Primitive, backend.ErrUnsupported)
	}
	fb, ok := b.framebuffers[call.Framebuffer]
	if !ok {
		return fmt.Errorf("headless: framebuffer %d: %w", call.Framebuffer, backend.ErrUnknownObject)
	}
	b.counters.Draws++
	cp := *call
	b.lastDraw = &cp

	if fb.color == 0 || call.IndexCount == 0 || c.state.Program.WriteMask == gputypes.ColorWriteMaskNone {
		return nil
	}
	v := b.views[fb.color]
	img := b.images[v.image]
	r, ok := drawRect(&c.state, call.Region(img.desc.Width, img.desc.Height))
	if !ok {
		return nil
	}

	col := b.fill
	if u := call.FragmentUniforms; len(u) >= 16 {
		col = gputypes.Color{
			R: float64(math.Float32frombits(binary.LittleEndian.Uint32(u[0:]))),
			G: float64(math.Float32frombits(binary.LittleEndian.Uint32(u[4:]))),
			B: float64(math.Float32frombits(binary.LittleEndian.Uint32(u[8:]))),
			A: float64(math.Float32frombits(binary.LittleEndian.Uint32(u[12:]))),
		}
	}
	format := v.desc.Format
	if format == gputypes.TextureFormatUndefined {
		format = img.desc.Format
	}
	texel := EncodeColor(format, col)
	for y := r.Y; y < r.Y+r.Height; y++ {
		for x := r.X; x < r.X+r.Width; x++ {
			off := img.row(x, y) + int(v.desc.ByteOffset)
			copy(img.data[off:off+int(v.texel)], texel)
		}
	}
	b.logger.Debug("headless: draw", "context", id, "rect", r, "format", format)
	return nil
}

// drawRect intersects the target region with the viewport and region
// clip, both given relative to the region origin.
func drawRect(s *backend.FixedState, region backend.Rect) (backend.Rect, bool) {
	ox, oy := float64(region.X), float64(region.Y)
	x0, y0, x1, y1 := ox, oy, ox+float64(region.Width), oy+float64(region.Height)
	if vp := s.Viewport; vp.Enabled {
		x0, y0 = max(x0, ox+float64(vp.X)), max(y0, oy+float64(vp.Y))
		x1, y1 = min(x1, ox+float64(vp.X+vp.Width)), min(y1, oy+float64(vp.Y+vp.Height))
	}
	switch s.Clip.Mode {
	case backend.ClipAll:
		return backend.Rect{}, false
	case backend.ClipOutside:
		cr := s.Clip.Rect
		x0, y0 = max(x0, ox+float64(cr.X)), max(y0, oy+float64(cr.Y))
		x1, y1 = min(x1, ox+float64(cr.X+cr.Width)), min(y1, oy+float64(cr.Y+cr.Height))
	}
	if x1 <= x0 || y1 <= y0 {
		return backend.Rect{}, false
	}
	return backend.Rect{X: uint32(x0), Y: uint32(y0), Width: uint32(x1 - x0), Height: uint32(y1 - y0)}, true
}

func unorm8(v float64) byte {
	return byte(math.Round(min(max(v, 0), 1) * 255))
}

// EncodeColor encodes a colour as one texel of format.
func EncodeColor(format gputypes.TextureFormat, c gputypes.Color) []byte {
	r, g, bl, a := unorm8(c.R), unorm8(c.G), unorm8(c.B), unorm8(c.A)
	switch format {
	case gputypes.TextureFormatR8Unorm:
		return []byte{r}
	case gputypes.TextureFormatRG8Unorm:
		return []byte{r, g}
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return []byte{bl, g, r, a}
	case gputypes.TextureFormatR32Float:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(c.R)))
	}
	texel := make([]byte, max(backend.TexelSize(format), 1))
	copy(texel, []byte{r, g, bl, a})
	return texel
}

// EncodeClear encodes a clear value as one texel of format.
func EncodeClear(format gputypes.TextureFormat, v backend.ClearValue) []byte {
	switch format {
	case gputypes.TextureFormatDepth32Float:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v.Depth))
	case gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth24PlusStencil8:
		d := uint32(math.Round(float64(min(max(v.Depth, 0), 1)) * 0xffffff))
		return binary.LittleEndian.AppendUint32(nil, d|(v.Stencil&0xff)<<24)
	case gputypes.TextureFormatDepth16Unorm:
		return binary.LittleEndian.AppendUint16(nil, uint16(math.Round(float64(min(max(v.Depth, 0), 1))*0xffff)))
	case gputypes.TextureFormatStencil8:
		return []byte{byte(v.Stencil)}
	}
	return EncodeColor(format, v.Color)
}
