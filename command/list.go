// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import "errors"

// ErrListFinished is returned when recording into a builder after Finish.
var ErrListFinished = errors.New("command: list already finished")

// List is the chain of commands recorded for one scene.
type List struct {
	First Handle
	Last  Handle
	Len   int

	// Context is the guest rendering context that recorded the scene.
	Context uint32

	// Snapshot is the guest-side state record in effect when the scene
	// was recorded. It is opaque to the channel.
	Snapshot any

	// Seq orders lists recorded through the same sequencer.
	Seq uint64

	// Reply is the future of the last command recorded with AddSync.
	Reply *Future
}

// Builder records commands into a List. A Builder belongs to one
// producer goroutine.
type Builder struct {
	pool     *Pool
	list     *List
	enc      Encoder
	finished bool
}

// NewBuilder starts a list for the given context.
func NewBuilder(pool *Pool, context uint32, snapshot any) *Builder {
	return &Builder{
		pool: pool,
		list: &List{Context: context, Snapshot: snapshot},
	}
}

// Encoder returns a reset encoder for building the next payload.
func (b *Builder) Encoder() *Encoder {
	b.enc.Reset()
	return &b.enc
}

// Add records a fire-and-forget command.
func (b *Builder) Add(op Opcode, payload []byte) error {
	return b.add(op, payload, nil)
}

// AddSync records a command whose handler answers through the returned
// future. The future also becomes the list's Reply.
func (b *Builder) AddSync(op Opcode, payload []byte) (*Future, error) {
	f := NewFuture()
	if err := b.add(op, payload, f); err != nil {
		return nil, err
	}
	b.list.Reply = f
	return f, nil
}

func (b *Builder) add(op Opcode, payload []byte, reply *Future) error {
	if b.finished {
		return ErrListFinished
	}
	h := b.pool.Alloc(op, payload, reply)
	if b.list.Last.IsValid() {
		if err := b.pool.Link(b.list.Last, h); err != nil {
			return err
		}
	} else {
		b.list.First = h
	}
	b.list.Last = h
	b.list.Len++
	return nil
}

// Len returns the number of recorded commands.
func (b *Builder) Len() int {
	return b.list.Len
}

// Finish seals the list. The builder cannot be used afterwards.
func (b *Builder) Finish(seq uint64) *List {
	b.finished = true
	b.list.Seq = seq
	return b.list
}

// Discard releases every recorded node without executing them.
func (b *Builder) Discard() {
	b.finished = true
	b.pool.FreeChain(b.list.First)
	if f := b.list.Reply; f != nil {
		f.Resolve(ResultNotHandled)
	}
}
