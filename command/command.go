// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package command implements the channel between guest-emulation threads
// and the render thread.
//
// Producers record a scene into a [List] of commands allocated from a
// shared [Pool]; each command is an [Opcode] plus a little-endian argument
// blob written with an [Encoder]. Finished lists are pushed into a bounded
// [Queue], which blocks producers when the render thread falls behind.
// The render thread pops lists with a timeout and runs them through a
// [Processor], which decodes every command with a [Helper], dispatches it
// to the handler registered for its opcode and frees the node.
//
// Commands that need an answer carry a [Future]; the handler resolves it
// with [Helper.Complete]. Draws and state changes carry none.
//
// # Ownership
//
// A command node is allocated by the producer and released by the
// consumer after its handler returns. Nodes are addressed by generation
// counted [Handle] values, so a handle kept past release is detected
// instead of aliasing a recycled node.
package command

import (
	"encoding/binary"
	"errors"
	"math"
)

// Command is one recorded command: an opcode, its argument blob and the
// handle of the next command in the same list.
//
// A Command is immutable after it is recorded except for its link.
type Command struct {
	Op      Opcode
	Payload []byte
	Next    Handle

	reply *Future
}

// Reply returns the future a producer waits on, or nil for
// fire-and-forget commands.
func (c *Command) Reply() *Future {
	return c.reply
}

// Encoding errors.
var (
	// ErrShortPayload is reported when a read runs past the argument blob.
	ErrShortPayload = errors.New("command: payload too short")

	// ErrTrailingPayload is reported by Helper.Finish when arguments remain.
	ErrTrailingPayload = errors.New("command: trailing payload bytes")
)

// Encoder appends little-endian arguments to a payload. Errors are
// sticky; check Err once after encoding.
//
// The zero value is ready to use.
type Encoder struct {
	buf []byte
	err error
}

// Reset clears the payload, keeping its storage.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
	e.err = nil
}

// Uint8 appends v.
func (e *Encoder) Uint8(v uint8) *Encoder {
	e.buf = append(e.buf, v)
	return e
}

// Uint16 appends v.
func (e *Encoder) Uint16(v uint16) *Encoder {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
	return e
}

// Uint32 appends v.
func (e *Encoder) Uint32(v uint32) *Encoder {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
	return e
}

// Uint64 appends v.
func (e *Encoder) Uint64(v uint64) *Encoder {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
	return e
}

// Int32 appends v.
func (e *Encoder) Int32(v int32) *Encoder {
	return e.Uint32(uint32(v))
}

// Float32 appends v.
func (e *Encoder) Float32(v float32) *Encoder {
	return e.Uint32(math.Float32bits(v))
}

// Bool appends v as one byte.
func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		return e.Uint8(1)
	}
	return e.Uint8(0)
}

// Bytes appends b with a uint32 length prefix.
func (e *Encoder) Bytes(b []byte) *Encoder {
	e.Uint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
	return e
}

// Value appends a fixed-size value or struct of fixed-size fields.
func (e *Encoder) Value(v any) *Encoder {
	if e.err != nil {
		return e
	}
	buf, err := binary.Append(e.buf, binary.LittleEndian, v)
	if err != nil {
		e.err = err
		return e
	}
	e.buf = buf
	return e
}

// Payload returns the encoded bytes. The slice is reused after Reset.
func (e *Encoder) Payload() []byte {
	return e.buf
}

// Err returns the first encoding error.
func (e *Encoder) Err() error {
	return e.err
}
