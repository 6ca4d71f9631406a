// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

import "testing"

// Framebuffers are keyed by their colour and depth view ids, which the
// backends hand out sequentially.
func BenchmarkFramebufferLookup(b *testing.B) {
	c := NewSharded[pair, uint64](8, hashPair)
	for i := uint64(1); i <= 64; i++ {
		c.Set(pair{i, i + 1000}, i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v := uint64(i%64) + 1
		_, _ = c.GetOrTryCreate(pair{v, v + 1000}, func() (uint64, error) { return v, nil })
	}
}

func BenchmarkFramebufferSweep(b *testing.B) {
	c := NewSharded[pair, uint64](8, hashPair)
	for i := 0; i < b.N; i++ {
		v := uint64(i%32) + 1
		c.Set(pair{v, 0}, v)
		c.Set(pair{v, v + 1000}, v)
		c.DeleteFunc(func(k pair, _ uint64) bool { return k.a == v || k.b == v })
	}
}

// The surface cache keeps one node per slot and only ever reorders them:
// a hit moves its slot to the front, a removal moves it to the back and
// a miss takes the oldest.
func BenchmarkSlotRing(b *testing.B) {
	const slots = 64
	ring := NewList[int]()
	nodes := make([]*Node[int], slots)
	for i := range nodes {
		nodes[i] = ring.PushBack(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		switch i % 4 {
		case 0, 1:
			ring.MoveToFront(nodes[(i*7)%slots])
		case 2:
			ring.MoveToBack(nodes[(i*13)%slots])
		default:
			slot, _ := ring.Oldest()
			ring.MoveToFront(nodes[slot])
		}
	}
}

func BenchmarkUploadedTextureLookup(b *testing.B) {
	type textureKey struct {
		address uint32
		hash    uint64
	}
	c := NewWithEvict[textureKey, int](256, func(textureKey, int) {})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := textureKey{address: uint32(i%512) * 0x1000, hash: PairHasher(uint64(i%512), 0)}
		_, _ = c.GetOrTryCreate(k, func() (int, error) { return i, nil })
	}
}

func BenchmarkPairHasher(b *testing.B) {
	for i := 0; i < b.N; i++ {
		PairHasher(uint64(i), uint64(i)+1000)
	}
}
