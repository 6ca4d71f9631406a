// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"context"
	"testing"
	"time"
)

func record(t *testing.T, pool *Pool, seq uint64, ops ...Opcode) *List {
	t.Helper()
	b := NewBuilder(pool, 1, nil)
	for _, op := range ops {
		e := b.Encoder()
		e.Uint64(seq)
		if err := b.Add(op, e.Payload()); err != nil {
			t.Fatal(err)
		}
	}
	return b.Finish(seq)
}

func TestProcessorAppliesInSubmissionOrder(t *testing.T) {
	pool := NewPool(64)
	q := NewQueue(4)
	p := NewProcessor(pool, nil)

	var seen []uint64
	var ops []Opcode
	p.Handle(OpSetState, func(l *List, h *Helper) {
		seen = append(seen, h.Uint64())
		ops = append(ops, h.Opcode())
	})
	p.Handle(OpDraw, func(l *List, h *Helper) {
		seen = append(seen, h.Uint64())
		ops = append(ops, h.Opcode())
	})

	const n = 20
	lists := make([]*List, 0, n)
	for i := uint64(1); i <= n; i++ {
		lists = append(lists, record(t, pool, i, OpSetState, OpSetState, OpDraw))
	}
	go func() {
		for _, l := range lists {
			_ = q.Push(l)
		}
	}()

	total := 0
	for total < n {
		total += p.Drain(q, 4, time.Second)
	}

	if len(seen) != 3*n {
		t.Fatalf("executed %d commands, want %d", len(seen), 3*n)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("list %d processed after list %d", seen[i], seen[i-1])
		}
	}
	for i := 0; i < len(ops); i += 3 {
		if ops[i] != OpSetState || ops[i+1] != OpSetState || ops[i+2] != OpDraw {
			t.Fatalf("commands reordered within list: %v", ops[i:i+3])
		}
	}
	if pool.Live() != 0 {
		t.Errorf("Live = %d after processing, want 0", pool.Live())
	}
}

func TestProcessorSkipsUnknownOpcode(t *testing.T) {
	pool := NewPool(8)
	p := NewProcessor(pool, nil)

	ran := 0
	p.Handle(OpNop, func(*List, *Helper) { ran++ })

	l := record(t, pool, 1, OpNop, Opcode(0x7fff), OpDraw, OpNop)
	if got := p.Execute(l); got != 2 {
		t.Errorf("Execute ran %d handlers, want 2", got)
	}
	if ran != 2 {
		t.Errorf("Nop handler ran %d times, want 2", ran)
	}
	if _, skipped := p.Stats(); skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if pool.Live() != 0 {
		t.Errorf("Live = %d, want 0", pool.Live())
	}
}

func TestProcessorSurvivesHandlerPanic(t *testing.T) {
	pool := NewPool(8)
	p := NewProcessor(pool, nil)

	after := false
	p.Handle(OpDraw, func(*List, *Helper) { panic("bad draw") })
	p.Handle(OpNop, func(*List, *Helper) { after = true })

	b := NewBuilder(pool, 1, nil)
	f, _ := b.AddSync(OpDraw, nil)
	_ = b.Add(OpNop, nil)
	p.Execute(b.Finish(1))

	if !after {
		t.Error("sibling command did not run after a panic")
	}
	if r, ok := f.Result(); !ok || r != ResultError {
		t.Errorf("reply = (%v, %v), want (Error, true)", r, ok)
	}
}

func TestProcessorCompletesForgottenReply(t *testing.T) {
	pool := NewPool(8)
	p := NewProcessor(pool, nil)
	p.Handle(OpCreateContext, func(*List, *Helper) {})

	b := NewBuilder(pool, 1, nil)
	f, _ := b.AddSync(OpCreateContext, nil)
	p.Execute(b.Finish(1))

	if r, ok := f.Result(); !ok || r != ResultNotHandled {
		t.Errorf("reply = (%v, %v), want (NotHandled, true)", r, ok)
	}
}

func TestSubmitAndWaitReturnsCompletedValue(t *testing.T) {
	pool := NewPool(8)
	q := NewQueue(1)
	p := NewProcessor(pool, nil)

	executed := make(chan struct{})
	p.Handle(OpNop, func(l *List, h *Helper) {
		close(executed)
		h.Complete(Result(h.Int32()))
	})

	b := NewBuilder(pool, 1, nil)
	e := b.Encoder()
	e.Int32(42)
	f, err := b.AddSync(OpNop, e.Payload())
	if err != nil {
		t.Fatal(err)
	}
	l := b.Finish(1)
	if l.Reply != f {
		t.Fatal("list reply is not the sync command's future")
	}

	done := make(chan Result, 1)
	go func() {
		_ = q.Push(l)
		r, _ := f.Wait(context.Background())
		done <- r
	}()

	select {
	case <-done:
		t.Fatal("waiter returned before the command executed")
	case <-time.After(20 * time.Millisecond):
	}

	p.Drain(q, 1, time.Second)

	select {
	case r := <-done:
		select {
		case <-executed:
		default:
			t.Fatal("waiter woke without the handler running")
		}
		if r != 42 {
			t.Errorf("result = %d, want 42", r)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke")
	}
}

func TestFutureSingleShot(t *testing.T) {
	f := NewFuture()
	if !f.Resolve(1) {
		t.Fatal("first Resolve returned false")
	}
	if f.Resolve(2) {
		t.Error("second Resolve returned true")
	}
	if r, ok := f.WaitTimeout(time.Millisecond); !ok || r != 1 {
		t.Errorf("WaitTimeout = (%v, %v), want (1, true)", r, ok)
	}

	g := NewFuture()
	if _, ok := g.WaitTimeout(5 * time.Millisecond); ok {
		t.Error("unresolved future reported ok")
	}
}

func TestProcessorAfterList(t *testing.T) {
	pool := NewPool(16)
	p := NewProcessor(pool, nil)
	p.Handle(OpNop, func(l *List, h *Helper) { h.Uint64() })

	var done []uint64
	p.AfterList(func(l *List) {
		if n := pool.Live(); n != 0 {
			t.Errorf("list %d: %d nodes still live", l.Seq, n)
		}
		done = append(done, l.Seq)
	})
	p.Execute(record(t, pool, 7, OpNop, OpNop))
	p.Execute(record(t, pool, 8, OpNop))
	if len(done) != 2 || done[0] != 7 || done[1] != 8 {
		t.Errorf("AfterList saw %v, want [7 8]", done)
	}
}
