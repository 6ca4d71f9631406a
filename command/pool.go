// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"errors"
	"sync"
)

// ErrStaleHandle is returned when a handle refers to a node that has been
// released (and possibly reused) since the handle was issued.
var ErrStaleHandle = errors.New("command: stale handle")

// Handle addresses a command node in a Pool. The zero Handle is invalid.
type Handle struct {
	index uint32
	gen   uint32
}

// InvalidHandle terminates a command chain.
var InvalidHandle = Handle{}

// IsValid reports whether h could refer to a live node.
func (h Handle) IsValid() bool {
	return h.gen != 0
}

const chunkSize = 256

type slot struct {
	gen  uint32 // odd while live, even while free
	cmd  Command
	keep []byte // payload storage retained across reuse
}

type chunk [chunkSize]slot

// Pool is a slab arena of command nodes shared by all producers and the
// consumer. Producers allocate, the consumer frees; payload storage is
// retained across reuse so steady-state recording does not allocate.
//
// Nodes live in fixed-size chunks that never move, so a *Command returned
// by Get stays valid until the node is freed.
//
// Pool is safe for concurrent use.
type Pool struct {
	mu     sync.Mutex
	chunks []*chunk
	free   []uint32
	next   uint32 // first never-used index
	live   int
}

// NewPool creates a pool with room for capacity nodes before it grows.
func NewPool(capacity int) *Pool {
	p := &Pool{}
	for n := 0; n < capacity; n += chunkSize {
		p.chunks = append(p.chunks, new(chunk))
	}
	return p
}

func (p *Pool) slot(index uint32) *slot {
	return &p.chunks[index/chunkSize][index%chunkSize]
}

// Alloc records a command, copying payload into pooled storage.
// A non-nil reply attaches a future the consumer must resolve.
func (p *Pool) Alloc(op Opcode, payload []byte, reply *Future) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	var index uint32
	if n := len(p.free); n > 0 {
		index = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		index = p.next
		p.next++
		if int(index/chunkSize) >= len(p.chunks) {
			p.chunks = append(p.chunks, new(chunk))
		}
	}

	s := p.slot(index)
	s.gen++ // becomes odd: live
	s.keep = append(s.keep[:0], payload...)
	s.cmd = Command{Op: op, Payload: s.keep, reply: reply}
	p.live++

	return Handle{index: index + 1, gen: s.gen}
}

// Get resolves a handle to its node.
func (p *Pool) Get(h Handle) (*Command, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.lookup(h)
	if err != nil {
		return nil, err
	}
	return &s.cmd, nil
}

// Link sets the successor of the node at h.
func (p *Pool) Link(h, next Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.lookup(h)
	if err != nil {
		return err
	}
	s.cmd.Next = next
	return nil
}

// Free releases the node at h. Its handle becomes stale.
func (p *Pool) Free(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.lookup(h)
	if err != nil {
		return err
	}
	s.gen++ // becomes even: free
	s.cmd = Command{}
	p.free = append(p.free, h.index-1)
	p.live--
	return nil
}

// FreeChain releases h and every node linked after it.
// Used to drop a list that will never be executed.
func (p *Pool) FreeChain(h Handle) int {
	n := 0
	for h.IsValid() {
		cmd, err := p.Get(h)
		if err != nil {
			break
		}
		next := cmd.Next
		if p.Free(h) != nil {
			break
		}
		n++
		h = next
	}
	return n
}

// Live returns the number of allocated nodes.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// lookup validates h. Caller must hold p.mu.
func (p *Pool) lookup(h Handle) (*slot, error) {
	if !h.IsValid() || h.index == 0 || h.index > p.next {
		return nil, ErrStaleHandle
	}
	s := p.slot(h.index - 1)
	if s.gen != h.gen || s.gen&1 == 0 {
		return nil, ErrStaleHandle
	}
	return s, nil
}
