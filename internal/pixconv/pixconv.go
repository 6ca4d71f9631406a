// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pixconv converts pixel rows between guest storage formats and
// the host formats they are rendered in. All functions work on tightly
// packed pixel runs; dst and src must not overlap unless noted.
package pixconv

// Order is a byte permutation for 4-byte pixels: dst[i] = src[Order[i]].
type Order [4]uint8

// Common orders.
var (
	Identity = Order{0, 1, 2, 3}
	Reverse  = Order{3, 2, 1, 0} // ABGR <-> RGBA byte order
	SwapRB   = Order{2, 1, 0, 3} // RGBA <-> BGRA
)

// Inverse returns the order that undoes o.
func (o Order) Inverse() Order {
	var inv Order
	for i, v := range o {
		inv[v] = uint8(i)
	}
	return inv
}

// Swizzle4 permutes the bytes of every 4-byte pixel. dst and src may be
// the same slice.
func Swizzle4(dst, src []byte, o Order) {
	n := min(len(dst), len(src)) &^ 3
	for i := 0; i < n; i += 4 {
		p0, p1, p2, p3 := src[i+int(o[0])], src[i+int(o[1])], src[i+int(o[2])], src[i+int(o[3])]
		dst[i], dst[i+1], dst[i+2], dst[i+3] = p0, p1, p2, p3
	}
}

// expand5 and expand6 replicate high bits into the low bits so 0x1f maps
// to 0xff exactly.
func expand5(v uint16) byte { return byte(v<<3 | v>>2) }
func expand6(v uint16) byte { return byte(v<<2 | v>>4) }

// RGB565ToRGBA8 widens little-endian 5:6:5 pixels (red in the high bits)
// to RGBA8 with opaque alpha.
func RGB565ToRGBA8(dst, src []byte) {
	n := min(len(dst)/4, len(src)/2)
	for i := 0; i < n; i++ {
		v := uint16(src[2*i]) | uint16(src[2*i+1])<<8
		d := dst[4*i : 4*i+4]
		d[0] = expand5(v >> 11 & 0x1f)
		d[1] = expand6(v >> 5 & 0x3f)
		d[2] = expand5(v & 0x1f)
		d[3] = 0xff
	}
}

// RGBA8ToRGB565 narrows RGBA8 pixels to 5:6:5, rounding to nearest and
// dropping alpha.
func RGBA8ToRGB565(dst, src []byte) {
	n := min(len(dst)/2, len(src)/4)
	for i := 0; i < n; i++ {
		s := src[4*i : 4*i+4]
		r := (uint16(s[0])*31 + 127) / 255
		g := (uint16(s[1])*63 + 127) / 255
		b := (uint16(s[2])*31 + 127) / 255
		v := r<<11 | g<<5 | b
		dst[2*i] = byte(v)
		dst[2*i+1] = byte(v >> 8)
	}
}

// RGBA4ToRGBA8 widens 4:4:4:4 pixels stored with red in the low nibble.
func RGBA4ToRGBA8(dst, src []byte) {
	n := min(len(dst)/4, len(src)/2)
	for i := 0; i < n; i++ {
		v := uint16(src[2*i]) | uint16(src[2*i+1])<<8
		for c := 0; c < 4; c++ {
			nib := byte(v >> (4 * c) & 0xf)
			dst[4*i+c] = nib<<4 | nib
		}
	}
}

// RGBA8ToRGBA4 narrows RGBA8 pixels to 4:4:4:4.
func RGBA8ToRGBA4(dst, src []byte) {
	n := min(len(dst)/2, len(src)/4)
	for i := 0; i < n; i++ {
		var v uint16
		for c := 0; c < 4; c++ {
			nib := (uint16(src[4*i+c])*15 + 127) / 255
			v |= nib << (4 * c)
		}
		dst[2*i] = byte(v)
		dst[2*i+1] = byte(v >> 8)
	}
}

// Func converts n pixels from src to dst.
type Func func(dst, src []byte)

// SwizzleFunc returns a Func applying o.
func SwizzleFunc(o Order) Func {
	return func(dst, src []byte) { Swizzle4(dst, src, o) }
}

// Fill writes pattern repeatedly over dst. len(pattern) must divide
// len(dst) for a clean fill; a trailing partial pixel is filled with the
// pattern prefix.
func Fill(dst, pattern []byte) {
	if len(pattern) == 0 {
		return
	}
	for i := 0; i < len(dst); i += len(pattern) {
		copy(dst[i:], pattern)
	}
}
