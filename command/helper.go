// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Helper is a read cursor over one command's arguments plus the
// completion hook for its reply. Reads past the end return zero values
// and record ErrShortPayload; check Err once after decoding.
//
// Byte slices returned by Helper alias pooled storage and are only valid
// for the duration of the handler call.
type Helper struct {
	cmd       *Command
	off       int
	err       error
	completed bool
}

// NewHelper binds a helper to cmd.
func NewHelper(cmd *Command) *Helper {
	return &Helper{cmd: cmd}
}

// reset rebinds h, reusing it across commands.
func (h *Helper) reset(cmd *Command) {
	*h = Helper{cmd: cmd}
}

// Opcode returns the command's opcode.
func (h *Helper) Opcode() Opcode {
	return h.cmd.Op
}

// take returns the next n bytes or nil on underflow.
func (h *Helper) take(n int) []byte {
	if h.err != nil {
		return nil
	}
	if n < 0 || h.off+n > len(h.cmd.Payload) {
		h.err = fmt.Errorf("%w: %s wants %d bytes at offset %d of %d",
			ErrShortPayload, h.cmd.Op, n, h.off, len(h.cmd.Payload))
		return nil
	}
	b := h.cmd.Payload[h.off : h.off+n]
	h.off += n
	return b
}

// Uint8 reads the next byte.
func (h *Helper) Uint8() uint8 {
	if b := h.take(1); b != nil {
		return b[0]
	}
	return 0
}

// Uint16 reads the next little-endian uint16.
func (h *Helper) Uint16() uint16 {
	if b := h.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

// Uint32 reads the next little-endian uint32.
func (h *Helper) Uint32() uint32 {
	if b := h.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

// Uint64 reads the next little-endian uint64.
func (h *Helper) Uint64() uint64 {
	if b := h.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// Int32 reads the next little-endian int32.
func (h *Helper) Int32() int32 {
	return int32(h.Uint32())
}

// Float32 reads the next IEEE-754 float32.
func (h *Helper) Float32() float32 {
	return math.Float32frombits(h.Uint32())
}

// Bool reads one byte as a boolean.
func (h *Helper) Bool() bool {
	return h.Uint8() != 0
}

// Bytes reads a uint32 length-prefixed blob.
func (h *Helper) Bytes() []byte {
	n := h.Uint32()
	if h.err != nil {
		return nil
	}
	return h.take(int(n))
}

// Decode reads a fixed-size value into v, which must be a pointer.
func (h *Helper) Decode(v any) {
	if h.err != nil {
		return
	}
	n, err := binary.Decode(h.cmd.Payload[h.off:], binary.LittleEndian, v)
	if err != nil {
		h.err = fmt.Errorf("%w: %s: %w", ErrShortPayload, h.cmd.Op, err)
		return
	}
	h.off += n
}

// Pop reads the next fixed-size value of type T.
func Pop[T any](h *Helper) T {
	var v T
	h.Decode(&v)
	return v
}

// Remaining returns the number of unread payload bytes.
func (h *Helper) Remaining() int {
	return len(h.cmd.Payload) - h.off
}

// Err returns the first decode error.
func (h *Helper) Err() error {
	return h.err
}

// Finish returns the decode error, or ErrTrailingPayload if arguments
// were left unread.
func (h *Helper) Finish() error {
	if h.err != nil {
		return h.err
	}
	if r := h.Remaining(); r != 0 {
		return fmt.Errorf("%w: %s has %d unread", ErrTrailingPayload, h.cmd.Op, r)
	}
	return nil
}

// Complete resolves the command's reply with r and wakes the producer
// waiting on it. It is a no-op for fire-and-forget commands.
func (h *Helper) Complete(r Result) {
	h.completed = true
	if f := h.cmd.reply; f != nil {
		f.Resolve(r)
	}
}

// Completed reports whether Complete was called.
func (h *Helper) Completed() bool {
	return h.completed
}
