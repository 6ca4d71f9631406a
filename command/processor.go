// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"fmt"
	"log/slog"
	"time"
)

// HandlerFunc executes one command. l is the list being processed.
type HandlerFunc func(l *List, h *Helper)

// Processor runs lists on the render thread, dispatching every command
// to the handler registered for its opcode and releasing it afterwards.
//
// A Processor is owned by the consumer goroutine and is not safe for
// concurrent use.
type Processor struct {
	pool     *Pool
	handlers [opcodeCount]HandlerFunc
	helper   Helper
	logger   *slog.Logger
	after    func(l *List)

	executed uint64
	skipped  uint64
}

// NewProcessor creates a processor that frees nodes back into pool.
func NewProcessor(pool *Pool, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Processor{pool: pool, logger: logger}
}

// SetLogger replaces the processor's logger.
func (p *Processor) SetLogger(l *slog.Logger) {
	if l != nil {
		p.logger = l
	}
}

// Handle registers fn for op, replacing any previous handler.
func (p *Processor) Handle(op Opcode, fn HandlerFunc) {
	if !op.Valid() {
		panic(fmt.Sprintf("command: Handle(%d): unknown opcode", op))
	}
	p.handlers[op] = fn
}

// AfterList sets a function called once a list has been executed and
// released.
func (p *Processor) AfterList(fn func(l *List)) {
	p.after = fn
}

// Execute runs every command of l in order and releases the chain.
// It returns the number of commands whose handler ran.
func (p *Processor) Execute(l *List) int {
	ran := 0
	h := l.First
	for h.IsValid() {
		cmd, err := p.pool.Get(h)
		if err != nil {
			// Broken chain: nothing after h can be reached safely.
			p.logger.Warn("command: broken list", "seq", l.Seq, "error", err)
			break
		}
		next := cmd.Next

		if p.dispatch(l, cmd) {
			ran++
		}

		if err := p.pool.Free(h); err != nil {
			p.logger.Warn("command: free failed", "op", cmd.Op, "error", err)
		}
		h = next
	}
	if p.after != nil {
		p.after(l)
	}
	return ran
}

// dispatch runs one command. A synchronous command is always resolved,
// even if its handler is missing, panics or forgets to complete.
func (p *Processor) dispatch(l *List, cmd *Command) (ran bool) {
	p.helper.reset(cmd)
	hp := &p.helper

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("command: handler panic", "op", cmd.Op, "seq", l.Seq, "panic", r)
			hp.Complete(ResultError)
			ran = false
		}
		if cmd.reply != nil && !hp.Completed() {
			hp.Complete(ResultNotHandled)
		}
	}()

	if !cmd.Op.Valid() || p.handlers[cmd.Op] == nil {
		p.skipped++
		p.logger.Warn("command: unknown opcode, skipping", "op", uint16(cmd.Op), "seq", l.Seq)
		return false
	}

	p.handlers[cmd.Op](l, hp)
	p.executed++
	return true
}

// Drain pops and executes up to budget lists from q. The first pop waits
// at most timeout; later pops do not wait. It returns the number of
// lists executed.
func (p *Processor) Drain(q *Queue, budget int, timeout time.Duration) int {
	n := 0
	for n < budget {
		wait := timeout
		if n > 0 {
			wait = 0
		}
		l, ok := q.Pop(wait)
		if !ok {
			break
		}
		p.Execute(l)
		n++
	}
	return n
}

// Stats reports how many commands ran and how many were skipped.
func (p *Processor) Stats() (executed, skipped uint64) {
	return p.executed, p.skipped
}
