// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package tiling

import (
	"bytes"
	"testing"
)

func TestSize(t *testing.T) {
	tests := []struct {
		name string
		s    Surface
		want int
	}{
		{"linear packed", Surface{Linear, 128, 128, 4, 512}, 128 * 512},
		{"linear padded", Surface{Linear, 100, 2, 4, 512}, 512 + 400},
		{"swizzled npot", Surface{Swizzled, 100, 60, 4, 0}, 128 * 64 * 4},
		{"tiled", Surface{Tiled, 40, 10, 2, 0}, 64 * 32 * 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Size(); got != tt.want {
				t.Errorf("Size() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSwizzledOffsetIsZOrder(t *testing.T) {
	s := Surface{Layout: Swizzled, Width: 4, Height: 4, BPP: 1}
	// Z-order over a 4x4 square.
	want := [4][4]int{
		{0, 1, 4, 5},
		{2, 3, 6, 7},
		{8, 9, 12, 13},
		{10, 11, 14, 15},
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if got := s.Offset(x, y); got != want[y][x] {
				t.Errorf("Offset(%d,%d) = %d, want %d", x, y, got, want[y][x])
			}
		}
	}
}

func TestSwizzledOffsetsAreUnique(t *testing.T) {
	s := Surface{Layout: Swizzled, Width: 16, Height: 4, BPP: 1}
	seen := make(map[int]bool)
	for y := 0; y < 4; y++ {
		for x := 0; x < 16; x++ {
			o := s.Offset(x, y)
			if o >= s.Size() || seen[o] {
				t.Fatalf("Offset(%d,%d) = %d collides or overflows", x, y, o)
			}
			seen[o] = true
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, layout := range []Layout{Linear, Swizzled, Tiled} {
		t.Run(layout.String(), func(t *testing.T) {
			s := Surface{Layout: layout, Width: 37, Height: 45, BPP: 4, Stride: 37*4 + 12}
			host := make([]byte, s.Width*s.Height*s.BPP)
			for i := range host {
				host[i] = byte(i * 7)
			}
			guest := make([]byte, s.Size())
			if err := Encode(guest, host, s); err != nil {
				t.Fatal(err)
			}
			back := make([]byte, len(host))
			if err := Decode(back, guest, s); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(back, host) {
				t.Error("Decode(Encode(x)) != x")
			}
		})
	}
}

func TestEncodeLinearKeepsRowPadding(t *testing.T) {
	s := Surface{Layout: Linear, Width: 2, Height: 2, BPP: 1, Stride: 4}
	guest := []byte{9, 9, 9, 9, 9, 9, 9, 9}
	if err := Encode(guest, []byte{1, 2, 3, 4}, s); err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 9, 9, 3, 4, 9, 9}
	if !bytes.Equal(guest[:8], want) {
		t.Errorf("guest = %v, want %v", guest, want)
	}
}

func TestValidate(t *testing.T) {
	s := Surface{Layout: Linear, Width: 4, Height: 1, BPP: 4, Stride: 8}
	if err := Decode(make([]byte, 16), make([]byte, 16), s); err == nil {
		t.Error("expected stride error")
	}
	s.Stride = 16
	if err := Decode(make([]byte, 16), make([]byte, 8), s); err == nil {
		t.Error("expected short guest buffer error")
	}
}
