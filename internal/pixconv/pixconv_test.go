// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pixconv

import (
	"bytes"
	"testing"
)

func TestSwizzle4(t *testing.T) {
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	dst := make([]byte, len(src))

	Swizzle4(dst, src, SwapRB)
	if want := []byte{3, 2, 1, 4, 7, 6, 5, 8}; !bytes.Equal(dst, want) {
		t.Errorf("SwapRB = %v, want %v", dst, want)
	}

	Swizzle4(dst, src, Reverse)
	if want := []byte{4, 3, 2, 1, 8, 7, 6, 5}; !bytes.Equal(dst, want) {
		t.Errorf("Reverse = %v, want %v", dst, want)
	}

	// In place.
	buf := append([]byte(nil), src...)
	Swizzle4(buf, buf, Reverse)
	Swizzle4(buf, buf, Reverse.Inverse())
	if !bytes.Equal(buf, src) {
		t.Errorf("in-place round trip = %v", buf)
	}
}

func TestInverse(t *testing.T) {
	o := Order{1, 2, 3, 0}
	src := []byte{10, 20, 30, 40}
	mid := make([]byte, 4)
	back := make([]byte, 4)
	Swizzle4(mid, src, o)
	Swizzle4(back, mid, o.Inverse())
	if !bytes.Equal(back, src) {
		t.Errorf("inverse round trip = %v, want %v", back, src)
	}
}

func TestRGB565(t *testing.T) {
	tests := []struct {
		name string
		in   uint16
		want [4]byte
	}{
		{"white", 0xffff, [4]byte{0xff, 0xff, 0xff, 0xff}},
		{"black", 0x0000, [4]byte{0, 0, 0, 0xff}},
		{"red", 0xf800, [4]byte{0xff, 0, 0, 0xff}},
		{"green", 0x07e0, [4]byte{0, 0xff, 0, 0xff}},
		{"blue", 0x001f, [4]byte{0, 0, 0xff, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := []byte{byte(tt.in), byte(tt.in >> 8)}
			dst := make([]byte, 4)
			RGB565ToRGBA8(dst, src)
			if [4]byte(dst) != tt.want {
				t.Errorf("RGB565ToRGBA8(%#04x) = %v, want %v", tt.in, dst, tt.want)
			}

			back := make([]byte, 2)
			RGBA8ToRGB565(back, dst)
			if !bytes.Equal(back, src) {
				t.Errorf("narrowing round trip = %v, want %v", back, src)
			}
		})
	}
}

func TestRGBA4RoundTrip(t *testing.T) {
	src := []byte{0x21, 0x43, 0xf0, 0x0f}
	wide := make([]byte, 8)
	RGBA4ToRGBA8(wide, src)
	if wide[0] != 0x11 || wide[1] != 0x22 || wide[3] != 0x44 {
		t.Errorf("RGBA4ToRGBA8 = %v", wide)
	}
	back := make([]byte, 4)
	RGBA8ToRGBA4(back, wide)
	if !bytes.Equal(back, src) {
		t.Errorf("round trip = %v, want %v", back, src)
	}
}

func TestFill(t *testing.T) {
	dst := make([]byte, 10)
	Fill(dst, []byte{1, 2, 3, 4})
	want := []byte{1, 2, 3, 4, 1, 2, 3, 4, 1, 2}
	if !bytes.Equal(dst, want) {
		t.Errorf("Fill = %v, want %v", dst, want)
	}
}
