// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package mem models guest-visible memory shared between emulated CPU
// code and the renderer.
//
// Guest accessors (Read, Write) honour page traps installed through the
// Space's [Tracker]: touching a trapped page disarms the trap and runs its
// callback before the access proceeds, which is how surface contents
// produced by the GPU are flushed before the CPU observes them. System
// accessors (ReadSystem, WriteSystem) are used by the renderer itself and
// never fire traps.
//
// On unix the backing store is an anonymous mapping and traps are also
// enforced in hardware with mprotect, so a stray raw access to a trapped
// page faults instead of reading stale data. Elsewhere the store is a
// plain slice and traps are software-only.
package mem

import (
	"errors"
	"fmt"
)

// Errors returned by Space.
var (
	ErrOutOfRange = errors.New("mem: access out of range")
	ErrClosed     = errors.New("mem: space closed")
)

// Space is a flat guest address space starting at address zero.
//
// Space is safe for concurrent use as long as concurrent accesses do not
// overlap; ordering between overlapping accesses is the guest's concern.
type Space struct {
	data    []byte
	tracker *Tracker
	release func([]byte) error
}

// Option configures a Space.
type Option func(*spaceOptions)

type spaceOptions struct {
	noHardwareTraps bool
}

// WithoutHardwareTraps keeps traps software-only even when the platform
// supports page protection.
func WithoutHardwareTraps() Option {
	return func(o *spaceOptions) { o.noHardwareTraps = true }
}

// NewSpace allocates size bytes of guest memory, rounded up to whole pages.
func NewSpace(size int, opts ...Option) (*Space, error) {
	var o spaceOptions
	for _, opt := range opts {
		opt(&o)
	}
	if size <= 0 {
		return nil, fmt.Errorf("mem: invalid size %d", size)
	}

	page := pageSize()
	size = (size + page - 1) &^ (page - 1)

	data, release, hw, err := allocate(size)
	if err != nil {
		return nil, fmt.Errorf("mem: allocate %d bytes: %w", size, err)
	}
	if o.noHardwareTraps {
		hw = false
	}

	s := &Space{data: data, release: release}
	s.tracker = newTracker(data, page, hw)
	return s, nil
}

// Size returns the size of the space in bytes.
func (s *Space) Size() int {
	return len(s.data)
}

// Tracker returns the page trap tracker for the space.
func (s *Space) Tracker() *Tracker {
	return s.tracker
}

func (s *Space) bounds(addr uint32, n int) error {
	if s.data == nil {
		return ErrClosed
	}
	if n < 0 || uint64(addr)+uint64(n) > uint64(len(s.data)) {
		return fmt.Errorf("%w: [%#x, +%d) in %d bytes", ErrOutOfRange, addr, n, len(s.data))
	}
	return nil
}

// Read copies guest memory at addr into p as the guest CPU would,
// firing any trap on the touched pages first.
func (s *Space) Read(addr uint32, p []byte) error {
	if err := s.bounds(addr, len(p)); err != nil {
		return err
	}
	s.tracker.touch(addr, uint32(len(p)), false)
	s.tracker.withAccess(addr, uint32(len(p)), func() {
		copy(p, s.data[addr:])
	})
	return nil
}

// Write copies p into guest memory at addr as the guest CPU would,
// firing any trap on the touched pages first.
func (s *Space) Write(addr uint32, p []byte) error {
	if err := s.bounds(addr, len(p)); err != nil {
		return err
	}
	s.tracker.touch(addr, uint32(len(p)), true)
	s.tracker.withAccess(addr, uint32(len(p)), func() {
		copy(s.data[addr:], p)
	})
	return nil
}

// ReadSystem copies guest memory without firing traps. Pages armed for
// read trapping are lifted for the duration of the copy.
func (s *Space) ReadSystem(addr uint32, p []byte) error {
	if err := s.bounds(addr, len(p)); err != nil {
		return err
	}
	s.tracker.withAccess(addr, uint32(len(p)), func() {
		copy(p, s.data[addr:])
	})
	return nil
}

// WriteSystem copies p into guest memory without firing traps.
func (s *Space) WriteSystem(addr uint32, p []byte) error {
	if err := s.bounds(addr, len(p)); err != nil {
		return err
	}
	s.tracker.withAccess(addr, uint32(len(p)), func() {
		copy(s.data[addr:], p)
	})
	return nil
}

// Close releases the backing store.
func (s *Space) Close() error {
	if s.data == nil {
		return nil
	}
	s.tracker.reset()
	data := s.data
	s.data = nil
	if s.release != nil {
		return s.release(data)
	}
	return nil
}
