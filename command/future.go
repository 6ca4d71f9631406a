// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"context"
	"sync"
	"time"
)

// Future is a single-shot reply slot. The consumer resolves it once with
// a Result; any number of producers may wait on it.
type Future struct {
	once   sync.Once
	done   chan struct{}
	result Result
}

// NewFuture creates an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve stores r and wakes waiters. Only the first call has an effect;
// it reports whether this call resolved the future.
func (f *Future) Resolve(r Result) bool {
	resolved := false
	f.once.Do(func() {
		f.result = r
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the stored result and whether the future is resolved.
func (f *Future) Result() (Result, bool) {
	select {
	case <-f.done:
		return f.result, true
	default:
		return 0, false
	}
}

// Wait blocks until the future is resolved or ctx is done.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// WaitTimeout blocks for at most d. ok is false on timeout.
func (f *Future) WaitTimeout(d time.Duration) (r Result, ok bool) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-f.done:
		return f.result, true
	case <-t.C:
		return 0, false
	}
}
