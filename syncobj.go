// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gxm

import (
	"sync"
	"time"
)

type syncObject struct {
	value   uint32
	changed chan struct{}
}

// syncObjects holds guest sync object values. The render thread signals
// them; producers wait on them.
type syncObjects struct {
	mu      sync.Mutex
	objects map[uint32]*syncObject
}

// get must be called with mu held.
func (s *syncObjects) get(id uint32) *syncObject {
	o, ok := s.objects[id]
	if !ok {
		o = &syncObject{changed: make(chan struct{})}
		s.objects[id] = o
	}
	return o
}

func (s *syncObjects) signal(id, value uint32) {
	s.mu.Lock()
	o := s.get(id)
	o.value = value
	close(o.changed)
	o.changed = make(chan struct{})
	s.mu.Unlock()
}

// SyncObjectValue returns the last value signalled for a sync object.
func (r *Renderer) SyncObjectValue(id uint32) uint32 {
	r.syncs.mu.Lock()
	defer r.syncs.mu.Unlock()
	return r.syncs.get(id).value
}

// WaitSyncObject blocks until sync object id holds at least value. A
// non-positive timeout waits without limit. It reports false on timeout
// or when the renderer closes first.
func (r *Renderer) WaitSyncObject(id, value uint32, timeout time.Duration) bool {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	for {
		r.syncs.mu.Lock()
		o := r.syncs.get(id)
		if o.value >= value {
			r.syncs.mu.Unlock()
			return true
		}
		changed := o.changed
		r.syncs.mu.Unlock()

		select {
		case <-changed:
		case <-expired:
			return false
		case <-r.closing:
			return false
		}
	}
}
