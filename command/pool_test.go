// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"errors"
	"sync"
	"testing"
)

func TestPoolAllocFree(t *testing.T) {
	p := NewPool(4)

	h := p.Alloc(OpDraw, []byte{1, 2, 3}, nil)
	cmd, err := p.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cmd.Op != OpDraw || len(cmd.Payload) != 3 {
		t.Errorf("Get = %v %v, want Draw [1 2 3]", cmd.Op, cmd.Payload)
	}
	if p.Live() != 1 {
		t.Errorf("Live = %d, want 1", p.Live())
	}

	if err := p.Free(h); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if p.Live() != 0 {
		t.Errorf("Live after free = %d, want 0", p.Live())
	}
}

func TestPoolStaleHandle(t *testing.T) {
	p := NewPool(1)

	h := p.Alloc(OpNop, nil, nil)
	if err := p.Free(h); err != nil {
		t.Fatal(err)
	}

	// The slot is reused; the old handle must not alias the new node.
	h2 := p.Alloc(OpSetState, nil, nil)
	if h2.index != h.index {
		t.Fatalf("expected slot reuse, got index %d and %d", h.index, h2.index)
	}
	if _, err := p.Get(h); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Get(stale) err = %v, want ErrStaleHandle", err)
	}
	if err := p.Free(h); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("double Free err = %v, want ErrStaleHandle", err)
	}
	if _, err := p.Get(InvalidHandle); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Get(InvalidHandle) err = %v, want ErrStaleHandle", err)
	}
}

func TestPoolPayloadIsCopied(t *testing.T) {
	p := NewPool(1)
	buf := []byte{9, 9}
	h := p.Alloc(OpNop, buf, nil)
	buf[0] = 0

	cmd, _ := p.Get(h)
	if cmd.Payload[0] != 9 {
		t.Errorf("payload aliases caller buffer")
	}
}

func TestPoolGrowsAcrossChunks(t *testing.T) {
	p := NewPool(0)
	handles := make([]Handle, 0, 3*chunkSize)
	for i := 0; i < 3*chunkSize; i++ {
		handles = append(handles, p.Alloc(OpNop, []byte{byte(i)}, nil))
	}
	for i, h := range handles {
		cmd, err := p.Get(h)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if cmd.Payload[0] != byte(i) {
			t.Fatalf("node %d payload = %d", i, cmd.Payload[0])
		}
	}
}

func TestPoolConcurrentProducers(t *testing.T) {
	p := NewPool(16)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				h := p.Alloc(OpNop, []byte{1}, nil)
				if err := p.Free(h); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if p.Live() != 0 {
		t.Errorf("Live = %d, want 0", p.Live())
	}
}

func TestBuilderFreeChain(t *testing.T) {
	p := NewPool(8)
	b := NewBuilder(p, 1, nil)
	for i := 0; i < 5; i++ {
		if err := b.Add(OpNop, nil); err != nil {
			t.Fatal(err)
		}
	}
	f, _ := b.AddSync(OpNop, nil)
	b.Discard()

	if p.Live() != 0 {
		t.Errorf("Live after Discard = %d, want 0", p.Live())
	}
	if r, ok := f.Result(); !ok || r != ResultNotHandled {
		t.Errorf("discarded reply = (%v, %v), want (NotHandled, true)", r, ok)
	}
	if err := b.Add(OpNop, nil); !errors.Is(err, ErrListFinished) {
		t.Errorf("Add after Discard err = %v, want ErrListFinished", err)
	}
}
