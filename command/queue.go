// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueClosed is returned when pushing to a closed queue.
var ErrQueueClosed = errors.New("command: queue closed")

// DefaultQueueCapacity is the number of pending scenes a queue holds
// before producers block.
const DefaultQueueCapacity = 16

// Queue is a bounded multi-producer single-consumer queue of lists.
// Push blocks while the queue is full; nothing is ever dropped. Pop
// waits at most a timeout so the render loop keeps running when idle.
type Queue struct {
	ch        chan *List
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue holding up to capacity lists.
// If capacity <= 0, DefaultQueueCapacity is used.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		ch:   make(chan *List, capacity),
		done: make(chan struct{}),
	}
}

// Push enqueues l, blocking while the queue is full.
func (q *Queue) Push(l *List) error {
	return q.PushContext(context.Background(), l)
}

// PushContext is Push bounded by ctx.
func (q *Queue) PushContext(ctx context.Context, l *List) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- l:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop returns the oldest list, or false if none arrived within timeout.
// Lists pushed before Close are still returned after it.
func (q *Queue) Pop(timeout time.Duration) (*List, bool) {
	select {
	case l := <-q.ch:
		return l, true
	default:
	}
	if timeout <= 0 {
		return nil, false
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case l := <-q.ch:
		return l, true
	case <-t.C:
		return nil, false
	case <-q.done:
		select {
		case l := <-q.ch:
			return l, true
		default:
			return nil, false
		}
	}
}

// Len returns the number of pending lists.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Close wakes blocked producers with ErrQueueClosed.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Closed is closed once Close has been called.
func (q *Queue) Closed() <-chan struct{} {
	return q.done
}
