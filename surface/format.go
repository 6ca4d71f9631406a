// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gxm/internal/pixconv"
)

// Format is a guest surface or texture pixel format. Names give the
// order of the bytes in guest memory.
type Format uint8

const (
	FormatRGBA8 Format = iota
	FormatBGRA8
	FormatABGR8
	FormatRGB565
	FormatRGBA4
	FormatR8
	FormatR32F
	FormatRGBA16F
	FormatD16
	FormatD24S8
	FormatD32F

	formatCount
)

// FormatInfo describes how a guest format maps to a host format.
type FormatInfo struct {
	Name string
	BPP  int // guest bytes per pixel

	Host gputypes.TextureFormat
	SRGB gputypes.TextureFormat // Undefined when no sRGB view exists

	Depth bool

	// ToHost and ToGuest convert packed pixel runs. Both are nil when the
	// host bytes are the guest bytes.
	ToHost  pixconv.Func
	ToGuest pixconv.Func
}

// Exact reports whether host texels are bit-for-bit the guest pixels.
func (fi *FormatInfo) Exact() bool {
	return fi.ToHost == nil
}

// HostBPP returns the host texel size.
func (fi *FormatInfo) HostBPP() int {
	if fi.Exact() {
		return fi.BPP
	}
	return 4
}

var formats = [formatCount]FormatInfo{
	FormatRGBA8: {Name: "RGBA8", BPP: 4,
		Host: gputypes.TextureFormatRGBA8Unorm, SRGB: gputypes.TextureFormatRGBA8UnormSrgb},
	FormatBGRA8: {Name: "BGRA8", BPP: 4,
		Host: gputypes.TextureFormatBGRA8Unorm, SRGB: gputypes.TextureFormatBGRA8UnormSrgb},
	FormatABGR8: {Name: "ABGR8", BPP: 4,
		Host: gputypes.TextureFormatRGBA8Unorm, SRGB: gputypes.TextureFormatRGBA8UnormSrgb,
		ToHost: pixconv.SwizzleFunc(pixconv.Reverse), ToGuest: pixconv.SwizzleFunc(pixconv.Reverse)},
	FormatRGB565: {Name: "RGB565", BPP: 2,
		Host:   gputypes.TextureFormatRGBA8Unorm,
		ToHost: pixconv.RGB565ToRGBA8, ToGuest: pixconv.RGBA8ToRGB565},
	FormatRGBA4: {Name: "RGBA4", BPP: 2,
		Host:   gputypes.TextureFormatRGBA8Unorm,
		ToHost: pixconv.RGBA4ToRGBA8, ToGuest: pixconv.RGBA8ToRGBA4},
	FormatR8:      {Name: "R8", BPP: 1, Host: gputypes.TextureFormatR8Unorm},
	FormatR32F:    {Name: "R32F", BPP: 4, Host: gputypes.TextureFormatR32Float},
	FormatRGBA16F: {Name: "RGBA16F", BPP: 8, Host: gputypes.TextureFormatRGBA16Float},
	FormatD16:     {Name: "D16", BPP: 2, Host: gputypes.TextureFormatDepth16Unorm, Depth: true},
	FormatD24S8:   {Name: "D24S8", BPP: 4, Host: gputypes.TextureFormatDepth24PlusStencil8, Depth: true},
	FormatD32F:    {Name: "D32F", BPP: 4, Host: gputypes.TextureFormatDepth32Float, Depth: true},
}

// Info returns the description of f, or nil for an unknown format.
func (f Format) Info() *FormatInfo {
	if f >= formatCount {
		return nil
	}
	return &formats[f]
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f < formatCount
}

// String returns the string representation of a Format.
func (f Format) String() string {
	if fi := f.Info(); fi != nil {
		return fi.Name
	}
	return "Unknown"
}
