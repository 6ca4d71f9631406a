// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package tiling converts between the guest's surface memory layouts and
// tightly packed linear rows used by host images.
//
// Three layouts exist:
//   - Linear: rows of width pixels, stride bytes apart.
//   - Swizzled: Morton (Z-order) within a power-of-two square; larger
//     power-of-two rectangles are a row of such squares.
//   - Tiled: 32x32 pixel tiles stored row-major, each tile linear.
package tiling

import "fmt"

// Layout is a guest surface memory layout.
type Layout uint8

const (
	Linear Layout = iota
	Swizzled
	Tiled
)

// TileSize is the edge length of a tile in the Tiled layout.
const TileSize = 32

var layoutNames = [...]string{
	Linear:   "Linear",
	Swizzled: "Swizzled",
	Tiled:    "Tiled",
}

// String returns the string representation of a Layout.
func (l Layout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return "Unknown"
}

// Surface describes a guest surface's geometry.
type Surface struct {
	Layout Layout
	Width  int
	Height int
	BPP    int // bytes per pixel
	Stride int // bytes per row; Linear only
}

func nextPow2(v int) int {
	p := 1
	for p < v {
		p <<= 1
	}
	return p
}

func alignUp(v, a int) int {
	return (v + a - 1) / a * a
}

// Size returns the number of guest bytes the surface occupies.
func (s Surface) Size() int {
	switch s.Layout {
	case Swizzled:
		return nextPow2(s.Width) * nextPow2(s.Height) * s.BPP
	case Tiled:
		return alignUp(s.Width, TileSize) * alignUp(s.Height, TileSize) * s.BPP
	default:
		if s.Height == 0 {
			return 0
		}
		return (s.Height-1)*s.Stride + s.Width*s.BPP
	}
}

// Offset returns the guest byte offset of pixel (x, y).
func (s Surface) Offset(x, y int) int {
	switch s.Layout {
	case Swizzled:
		return swizzledIndex(x, y, nextPow2(s.Width), nextPow2(s.Height)) * s.BPP
	case Tiled:
		tilesPerRow := alignUp(s.Width, TileSize) / TileSize
		tile := (y/TileSize)*tilesPerRow + x/TileSize
		in := (y%TileSize)*TileSize + x%TileSize
		return (tile*TileSize*TileSize + in) * s.BPP
	default:
		return y*s.Stride + x*s.BPP
	}
}

// swizzledIndex interleaves the low bits of x and y over the smaller of
// the two dimensions; the remaining high bits of the longer axis select
// the square.
func swizzledIndex(x, y, w, h int) int {
	minDim := w
	if h < minDim {
		minDim = h
	}
	idx := 0
	bit := 0
	for m := 1; m < minDim; m <<= 1 {
		if x&m != 0 {
			idx |= 1 << bit
		}
		bit++
		if y&m != 0 {
			idx |= 1 << bit
		}
		bit++
	}
	square := minDim * minDim
	if w > h {
		return idx + (x/minDim)*square
	}
	return idx + (y/minDim)*square
}

func (s Surface) validate(guest, host []byte) error {
	if s.Width <= 0 || s.Height <= 0 || s.BPP <= 0 {
		return fmt.Errorf("tiling: invalid surface %dx%d bpp %d", s.Width, s.Height, s.BPP)
	}
	if s.Layout == Linear && s.Stride < s.Width*s.BPP {
		return fmt.Errorf("tiling: stride %d below row size %d", s.Stride, s.Width*s.BPP)
	}
	if len(guest) < s.Size() {
		return fmt.Errorf("tiling: guest buffer %d < %d", len(guest), s.Size())
	}
	if len(host) < s.Width*s.Height*s.BPP {
		return fmt.Errorf("tiling: host buffer %d < %d", len(host), s.Width*s.Height*s.BPP)
	}
	return nil
}

// Decode converts guest memory into tightly packed linear rows.
func Decode(host, guest []byte, s Surface) error {
	if err := s.validate(guest, host); err != nil {
		return err
	}
	row := s.Width * s.BPP
	if s.Layout == Linear {
		for y := 0; y < s.Height; y++ {
			copy(host[y*row:(y+1)*row], guest[y*s.Stride:])
		}
		return nil
	}
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			src := s.Offset(x, y)
			dst := y*row + x*s.BPP
			copy(host[dst:dst+s.BPP], guest[src:src+s.BPP])
		}
	}
	return nil
}

// Encode converts tightly packed linear rows into guest memory.
// Bytes of guest between rows or outside the surface are left untouched.
func Encode(guest, host []byte, s Surface) error {
	if err := s.validate(guest, host); err != nil {
		return err
	}
	row := s.Width * s.BPP
	if s.Layout == Linear {
		for y := 0; y < s.Height; y++ {
			copy(guest[y*s.Stride:y*s.Stride+row], host[y*row:])
		}
		return nil
	}
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			dst := s.Offset(x, y)
			src := y*row + x*s.BPP
			copy(guest[dst:dst+s.BPP], host[src:src+s.BPP])
		}
	}
	return nil
}
