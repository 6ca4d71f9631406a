// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mem

import (
	"errors"
	"sync"
)

// ErrTrapsUnsupported is returned by Watch when the tracker cannot trap.
var ErrTrapsUnsupported = errors.New("mem: page traps unsupported")

// TrapFunc is called on the accessing goroutine when a guest access
// touches a watched range. write reports whether the access was a store.
// The watch is disarmed before the callback runs.
type TrapFunc func(addr uint32, write bool)

// WatchID identifies a watch. Callers pick ids; an id may own at most one
// watch at a time.
type WatchID uint64

type watch struct {
	id         WatchID
	addr, size uint32
	fn         TrapFunc
}

// Tracker keeps page-granularity access traps over a Space.
//
// A watch is one-shot: the first guest access to any of its pages removes
// the whole watch, restores normal page protection and calls its TrapFunc.
type Tracker struct {
	mu       sync.Mutex
	data     []byte
	page     uint32
	hw       bool
	disabled bool
	watches  map[WatchID]*watch
	pages    map[uint32][]WatchID // page index -> watches covering it
}

func newTracker(data []byte, page int, hw bool) *Tracker {
	return &Tracker{
		data:    data,
		page:    uint32(page),
		hw:      hw,
		watches: make(map[WatchID]*watch),
		pages:   make(map[uint32][]WatchID),
	}
}

// Supported reports whether traps can be armed at all.
func (t *Tracker) Supported() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.disabled
}

// Hardware reports whether traps are backed by page protection.
func (t *Tracker) Hardware() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hw && !t.disabled
}

// Disable turns trapping off. Existing watches are dropped and later
// Watch calls fail with ErrTrapsUnsupported.
func (t *Tracker) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disabled = true
	t.dropAll()
}

// PageSize returns the trap granularity.
func (t *Tracker) PageSize() uint32 {
	return t.page
}

// Watch arms a trap on every page overlapping [addr, addr+size).
// Re-arming an id replaces its previous watch.
func (t *Tracker) Watch(id WatchID, addr, size uint32, fn TrapFunc) error {
	if size == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disabled {
		return ErrTrapsUnsupported
	}
	if uint64(addr)+uint64(size) > uint64(len(t.data)) {
		return ErrOutOfRange
	}
	if _, ok := t.watches[id]; ok {
		t.remove(id)
	}

	w := &watch{id: id, addr: addr, size: size, fn: fn}
	t.watches[id] = w
	first, last := t.pageSpan(addr, size)
	for p := first; p <= last; p++ {
		t.pages[p] = append(t.pages[p], id)
		if len(t.pages[p]) == 1 {
			if err := t.protectPage(p, true); err != nil {
				// Protection failed: fall back to software traps for good.
				t.hw = false
			}
		}
	}
	return nil
}

// Unwatch disarms id. It reports whether a watch was armed.
func (t *Tracker) Unwatch(id WatchID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.watches[id]; !ok {
		return false
	}
	t.remove(id)
	return true
}

// Armed reports whether id currently has a watch.
func (t *Tracker) Armed(id WatchID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.watches[id]
	return ok
}

// touch fires every watch overlapping a guest access. Callbacks run
// without the lock held so they may block on the render thread, which in
// turn calls back into the tracker.
func (t *Tracker) touch(addr, size uint32, write bool) {
	if size == 0 {
		return
	}
	t.mu.Lock()
	if len(t.watches) == 0 {
		t.mu.Unlock()
		return
	}
	var fired []*watch
	first, last := t.pageSpan(addr, size)
	for p := first; p <= last; p++ {
		for _, id := range t.pages[p] {
			w := t.watches[id]
			if w == nil {
				continue
			}
			fired = append(fired, w)
			t.remove(id)
		}
	}
	t.mu.Unlock()

	for _, w := range fired {
		if w.fn != nil {
			w.fn(addr, write)
		}
	}
}

// withAccess runs fn with hardware protection lifted on the range.
func (t *Tracker) withAccess(addr, size uint32, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hw || len(t.watches) == 0 || size == 0 {
		fn()
		return
	}
	first, last := t.pageSpan(addr, size)
	var lifted []uint32
	for p := first; p <= last; p++ {
		if len(t.pages[p]) > 0 {
			if t.protectPage(p, false) == nil {
				lifted = append(lifted, p)
			}
		}
	}
	fn()
	for _, p := range lifted {
		_ = t.protectPage(p, true)
	}
}

// remove drops a watch. Caller must hold t.mu.
func (t *Tracker) remove(id WatchID) {
	w := t.watches[id]
	delete(t.watches, id)
	first, last := t.pageSpan(w.addr, w.size)
	for p := first; p <= last; p++ {
		ids := t.pages[p]
		for i, other := range ids {
			if other == id {
				ids = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(ids) == 0 {
			delete(t.pages, p)
			_ = t.protectPage(p, false)
		} else {
			t.pages[p] = ids
		}
	}
}

func (t *Tracker) dropAll() {
	for p := range t.pages {
		_ = t.protectPage(p, false)
	}
	t.watches = make(map[WatchID]*watch)
	t.pages = make(map[uint32][]WatchID)
}

func (t *Tracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropAll()
	t.data = nil
}

func (t *Tracker) pageSpan(addr, size uint32) (first, last uint32) {
	return addr / t.page, (addr + size - 1) / t.page
}

// protectPage applies or lifts hardware protection. Caller must hold t.mu.
func (t *Tracker) protectPage(p uint32, armed bool) error {
	if !t.hw || t.data == nil {
		return nil
	}
	off := p * t.page
	return protect(t.data[off:off+t.page], armed)
}
