// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gxm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/command"
	"github.com/gogpu/gxm/mem"
	"github.com/gogpu/gxm/shader"
	"github.com/gogpu/gxm/state"
	"github.com/gogpu/gxm/surface"
)

// Renderer errors.
var (
	ErrClosed  = errors.New("gxm: renderer closed")
	ErrRunning = errors.New("gxm: renderer already running")
	ErrNoReply = errors.New("gxm: scene has no synchronous command")
)

// guestContext is the render-thread view of a guest rendering context.
type guestContext struct {
	state *state.Context
	color *surface.Surface
	depth *surface.Surface
}

// Stats is a snapshot of renderer activity, published once per frame.
type Stats struct {
	Frames   uint64 // render loop iterations, idle ones included
	Scenes   uint64 // lists executed
	Commands uint64 // commands whose handler ran
	Skipped  uint64 // commands with an unknown opcode
	Pending  int    // scenes waiting in the queue
	Contexts int    // live guest contexts

	State    state.Stats
	Surfaces surface.Stats
}

// Renderer owns the command channel and everything the render thread
// touches: the backend, per-context state and the surface cache.
// Producers record scenes with NewScene and hand them over with Submit
// or SubmitAndWait; Run executes them.
type Renderer struct {
	cfg    Config
	logger *slog.Logger

	be          backend.Backend
	ownsBackend bool
	memory      *mem.Space
	ownsMemory  bool

	pool     *command.Pool
	queue    *command.Queue
	proc     *command.Processor
	machine  *state.Machine
	surfaces *surface.Cache

	// Owned by the render thread.
	contexts map[uint32]*guestContext
	targets  map[uint32]backend.RenderTargetID

	seq   atomic.Uint64
	syncs syncObjects

	lifeMu  sync.Mutex
	running bool
	closed  bool
	closing chan struct{}
	stopped chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// New creates a renderer. Without WithBackend the backend named by the
// configuration is opened; without WithMemory a private guest memory
// space is allocated.
func New(opts ...Option) (*Renderer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	cfg := o.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Renderer{
		cfg:      cfg,
		logger:   o.logger,
		be:       o.backend,
		memory:   o.memory,
		contexts: make(map[uint32]*guestContext),
		targets:  make(map[uint32]backend.RenderTargetID),
		closing:  make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if r.logger == nil {
		r.logger = forwardingLogger()
	}
	r.syncs.objects = make(map[uint32]*syncObject)

	if r.be == nil {
		be, err := backend.Open(cfg.Backend)
		if err != nil {
			return nil, fmt.Errorf("gxm: open backend: %w", err)
		}
		r.be, r.ownsBackend = be, true
	}
	if r.memory == nil {
		space, err := mem.NewSpace(cfg.MemorySize)
		if err != nil {
			if r.ownsBackend {
				r.be.Close()
			}
			return nil, fmt.Errorf("gxm: guest memory: %w", err)
		}
		r.memory, r.ownsMemory = space, true
	}

	compiler := o.compiler
	if compiler == nil {
		compiler = shader.NewNagaCompiler(shader.SourceTranslator{}, 0)
	}

	cacheOpts := []surface.Option{
		surface.WithCapacity(cfg.SurfaceCacheCapacity),
		surface.WithOverlapSlack(cfg.OverlapSlack),
		surface.WithTextureCacheSize(cfg.TextureCacheSize),
		surface.WithSyncRequester(r.requestSync),
		surface.WithLogger(r.logger),
	}
	if cfg.DisableSurfaceSync {
		cacheOpts = append(cacheOpts, surface.WithoutSync())
	}
	r.surfaces = surface.New(r.be, r.memory, cacheOpts...)
	r.machine = state.NewMachine(r.be, compiler,
		state.WithMemory(r.memory),
		state.WithTextureSource(r.surfaces),
		state.WithLogger(r.logger),
	)

	r.pool = command.NewPool(cfg.PoolSize)
	r.queue = command.NewQueue(cfg.QueueCapacity)
	r.proc = command.NewProcessor(r.pool, r.logger)
	r.proc.AfterList(r.endScene)
	r.registerHandlers()

	r.logger.Info("gxm: renderer created",
		"backend", r.be.Name(),
		"queue", cfg.QueueCapacity,
		"surface_sync", !cfg.DisableSurfaceSync,
		"always_sync", r.surfaces.AlwaysSync())
	return r, nil
}

// Config returns the configuration the renderer was created with.
func (r *Renderer) Config() Config { return r.cfg }

// Backend returns the backend.
func (r *Renderer) Backend() backend.Backend { return r.be }

// Memory returns the guest memory space. Guest code reads and writes
// surfaces through Read and Write, which honour surface sync.
func (r *Renderer) Memory() *mem.Space { return r.memory }

// Run executes submitted scenes on the calling goroutine, which becomes
// the render thread, until ctx is cancelled or Close is called. Scenes
// already queued when it stops still run. Run returns nil after Close
// and the context error after cancellation.
func (r *Renderer) Run(ctx context.Context) error {
	r.lifeMu.Lock()
	switch {
	case r.closed:
		r.lifeMu.Unlock()
		return ErrClosed
	case r.running:
		r.lifeMu.Unlock()
		return ErrRunning
	}
	r.running = true
	r.lifeMu.Unlock()
	defer close(r.stopped)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return r.loop(gctx)
	})
	// Closing the queue wakes producers blocked on a full queue and tells
	// the loop to finish.
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-r.closing:
		}
		r.queue.Close()
		return nil
	})
	return g.Wait()
}

func (r *Renderer) loop(ctx context.Context) error {
	r.logger.Debug("gxm: render loop started")
	for {
		n := r.proc.Drain(r.queue, r.cfg.ScenesPerFrame, r.cfg.PopTimeout.Std())
		r.publish(n)

		select {
		case <-r.queue.Closed():
			n := r.proc.Drain(r.queue, math.MaxInt, 0)
			r.publish(n)
			r.logger.Debug("gxm: render loop stopped", "drained", n)
			select {
			case <-r.closing:
				return nil
			default:
				return ctx.Err()
			}
		default:
		}
	}
}

// endScene runs on the render thread after every list.
func (r *Renderer) endScene(l *command.List) {
	if c, ok := r.contexts[l.Context]; ok {
		c.color, c.depth = nil, nil
		c.state.SetTarget(state.Target{})
	}
	r.surfaces.EndScene()
}

func (r *Renderer) publish(scenes int) {
	executed, skipped := r.proc.Stats()
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.stats.Frames++
	r.stats.Scenes += uint64(scenes)
	r.stats.Commands = executed
	r.stats.Skipped = skipped
	r.stats.Contexts = len(r.contexts)
	r.stats.State = r.machine.Stats()
	r.stats.Surfaces = r.surfaces.Stats()
}

// Stats returns the counters published by the last frame.
func (r *Renderer) Stats() Stats {
	r.statsMu.Lock()
	s := r.stats
	r.statsMu.Unlock()
	s.Pending = r.queue.Len()
	return s
}

// Submit hands a recorded scene to the render thread. It blocks while
// the queue is full; ctx bounds the wait. A scene can be submitted once.
func (r *Renderer) Submit(ctx context.Context, s *Scene) error {
	l, err := s.finish(r.seq.Add(1))
	if err != nil {
		return err
	}
	if err := r.queue.PushContext(ctx, l); err != nil {
		s.discard()
		if errors.Is(err, command.ErrQueueClosed) {
			return ErrClosed
		}
		return fmt.Errorf("gxm: submit: %w", err)
	}
	return nil
}

// SubmitAndWait submits s and waits for the result of its last
// synchronous command. The result is returned only once the render
// thread has executed that command.
func (r *Renderer) SubmitAndWait(ctx context.Context, s *Scene) (command.Result, error) {
	reply := s.reply()
	if reply == nil {
		s.discard()
		return command.ResultError, ErrNoReply
	}
	if err := r.Submit(ctx, s); err != nil {
		return command.ResultNotHandled, err
	}
	select {
	case <-reply.Done():
		res, _ := reply.Result()
		return res, nil
	case <-ctx.Done():
		return command.ResultNotHandled, ctx.Err()
	case <-r.stopped:
		if res, ok := reply.Result(); ok {
			return res, nil
		}
		return command.ResultNotHandled, ErrClosed
	}
}

// requestSync is called by a page trap on the guest goroutine that
// touched a surface. It returns once the render thread has flushed the
// range, or after the sync timeout.
func (r *Renderer) requestSync(addr, size uint32, write bool) {
	s := r.NewScene(internalContext)
	s.SyncSurfaceData(addr, size)

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SyncTimeout.Std())
	defer cancel()
	res, err := r.SubmitAndWait(ctx, s)
	if err != nil || res != command.ResultOK {
		r.logger.Warn("gxm: surface sync failed",
			"addr", addr, "size", size, "write", write, "result", res, "err", err)
	}
}

// Close stops the render loop and releases every resource. Producers
// waiting on an unexecuted command are answered with ResultNotHandled.
func (r *Renderer) Close() error {
	r.lifeMu.Lock()
	if r.closed {
		r.lifeMu.Unlock()
		return nil
	}
	r.closed = true
	running := r.running
	r.lifeMu.Unlock()

	close(r.closing)
	if running {
		<-r.stopped
	}
	r.release()
	return nil
}

func (r *Renderer) release() {
	r.queue.Close()
	// A processor without handlers answers every pending reply.
	rejects := command.NewProcessor(r.pool, r.logger)
	for {
		l, ok := r.queue.Pop(0)
		if !ok {
			break
		}
		rejects.Execute(l)
	}

	for id, c := range r.contexts {
		r.machine.DestroyContext(c.state)
		delete(r.contexts, id)
	}
	for id, rt := range r.targets {
		r.be.DestroyRenderTarget(rt)
		delete(r.targets, id)
	}
	r.machine.Close()
	r.surfaces.Close()
	if r.ownsBackend {
		r.be.Close()
	}
	if r.ownsMemory {
		if err := r.memory.Close(); err != nil {
			r.logger.Warn("gxm: release guest memory", "err", err)
		}
	}
	r.logger.Info("gxm: renderer closed")
}
