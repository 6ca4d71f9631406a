// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gxm

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/backend/headless"
	"github.com/gogpu/gxm/command"
	"github.com/gogpu/gxm/mem"
	"github.com/gogpu/gxm/shader"
	"github.com/gogpu/gxm/state"
	"github.com/gogpu/gxm/surface"
)

// sourceCompiler builds modules from SourceTranslator directives only;
// the headless backend never compiles WGSL.
var sourceCompiler = shader.CompilerFunc(func(p *shader.Program) (*shader.Module, error) {
	wgsl, entry, r, err := shader.SourceTranslator{}.Translate(p)
	if err != nil {
		return nil, err
	}
	return &shader.Module{Stage: p.Stage, Fingerprint: p.Fingerprint, EntryPoint: entry, WGSL: wgsl, Reflection: r}, nil
})

func newTestBackend(t *testing.T) *headless.Backend {
	t.Helper()
	be := headless.New()
	require.NoError(t, be.Init())
	t.Cleanup(be.Close)
	return be
}

// smallConfig keeps the private guest memory small.
func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.MemorySize = 1 << 20
	return cfg
}

type harness struct {
	r     *Renderer
	be    *headless.Backend
	space *mem.Space
}

func newHarness(t *testing.T, cfg Config, run bool) *harness {
	t.Helper()
	be := newTestBackend(t)
	space, err := mem.NewSpace(1<<20, mem.WithoutHardwareTraps())
	require.NoError(t, err)

	r, err := New(WithConfig(cfg), WithBackend(be), WithMemory(space), WithShaderCompiler(sourceCompiler))
	require.NoError(t, err)

	h := &harness{r: r, be: be, space: space}
	var done chan error
	if run {
		done = h.start()
	}
	t.Cleanup(func() {
		assert.NoError(t, r.Close())
		if done != nil {
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Error("Run did not return after Close")
			}
		}
		_ = space.Close()
	})
	return h
}

func (h *harness) start() chan error {
	done := make(chan error, 1)
	go func() { done <- h.r.Run(context.Background()) }()
	return done
}

func (h *harness) wait(t *testing.T, s *Scene) command.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := h.r.SubmitAndWait(ctx, s)
	require.NoError(t, err)
	return res
}

func (h *harness) createContext(t *testing.T, id uint32) {
	t.Helper()
	s := h.r.NewScene(0)
	s.CreateContext(id)
	require.Equal(t, command.ResultOK, h.wait(t, s))
}

func colorUniform(r, g, b, a float32) []byte {
	var out []byte
	for _, v := range []float32{r, g, b, a} {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

// recordTriangle records a solid triangle covering the whole target.
func (h *harness) recordTriangle(t *testing.T, s *Scene, color []byte) {
	t.Helper()
	require.NoError(t, h.space.WriteSystem(0x9000, []byte{0, 0, 1, 0, 2, 0}))
	s.SetState(state.ProgramArgs{Stage: uint8(shader.StageVertex), Code: []byte(shader.SolidVertexWGSL)})
	s.SetState(state.ProgramArgs{Stage: uint8(shader.StageFragment), Code: []byte(shader.SolidFragmentWGSL)})
	s.SetState(state.VertexStreamArgs{Index: 0, Address: 0x8000, Stride: 8})
	s.SetState(state.UniformArgs{Stage: uint8(shader.StageFragment), Index: 0, Data: color})
	s.Draw(state.DrawArgs{IndexAddress: 0x9000, IndexCount: 3})
}

var target = SurfaceArgs{
	Address: 0x1000,
	Format:  uint8(surface.FormatRGBA8),
	Layout:  LayoutLinear,
	Stride:  64,
	Width:   16,
	Height:  16,
}

func TestSubmitAndWaitReturnsCompletedValue(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	s := h.r.NewScene(0)
	s.Nop(42)
	assert.Equal(t, command.Result(42), h.wait(t, s))
}

func TestSubmitAndWaitWithoutReply(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	s := h.r.NewScene(0)
	s.NewFrame()
	_, err := h.r.SubmitAndWait(context.Background(), s)
	assert.ErrorIs(t, err, ErrNoReply)
}

func TestSceneSubmittedOnce(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	s := h.r.NewScene(0)
	s.Nop(1)
	require.Equal(t, command.Result(1), h.wait(t, s))
	assert.ErrorIs(t, h.r.Submit(context.Background(), s), ErrSubmitted)
}

func TestContextLifecycle(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.createContext(t, 1)

	s := h.r.NewScene(0)
	s.CreateContext(1)
	assert.Equal(t, command.ResultError, h.wait(t, s), "duplicate context")

	s = h.r.NewScene(0)
	s.CreateRenderTarget(3, backend.RenderTargetDesc{Width: 64, Height: 64, Scenes: 1})
	assert.Equal(t, command.ResultOK, h.wait(t, s))

	s = h.r.NewScene(0)
	s.DestroyRenderTarget(3)
	s.DestroyContext(1)
	s.Nop(command.ResultOK)
	h.wait(t, s)

	require.Eventually(t, func() bool { return h.r.Stats().Contexts == 0 }, 2*time.Second, time.Millisecond)
}

func TestScenesApplyInSubmissionOrder(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	const n = 50
	for i := uint32(1); i <= n; i++ {
		s := h.r.NewScene(0)
		s.SignalSyncObject(7, i)
		require.NoError(t, h.r.Submit(context.Background(), s))
	}
	require.True(t, h.r.WaitSyncObject(7, n, 5*time.Second))
	assert.Equal(t, uint32(n), h.r.SyncObjectValue(7))
	assert.False(t, h.r.WaitSyncObject(8, 1, 10*time.Millisecond), "unsignalled object")
}

func TestMalformedCommandsDoNotStopTheScene(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.createContext(t, 1)

	s := h.r.NewScene(1)
	s.Raw(command.Opcode(200), nil)
	s.Raw(command.OpSetState, []byte{0xff})
	s.Raw(command.OpSetState, []byte{byte(command.StateOpCount), 0})
	s.SetState(state.CullModeArgs{Mode: state.CullBack})
	s.Nop(5)
	assert.Equal(t, command.Result(5), h.wait(t, s))

	require.Eventually(t, func() bool { return h.r.Stats().Skipped == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), h.r.Stats().State.StateChanges)
}

func TestQueueBackpressure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueCapacity = 1
	h := newHarness(t, cfg, false)

	first := h.r.NewScene(0)
	first.NewFrame()
	require.NoError(t, h.r.Submit(context.Background(), first))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	blocked := h.r.NewScene(0)
	blocked.NewFrame()
	err := h.r.Submit(ctx, blocked)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pushed := make(chan error, 1)
	go func() {
		s := h.r.NewScene(0)
		s.NewFrame()
		pushed <- h.r.Submit(context.Background(), s)
	}()
	select {
	case <-pushed:
		t.Fatal("Submit returned while the queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	done := h.start()
	t.Cleanup(func() {
		h.r.Close()
		<-done
	})
	select {
	case err := <-pushed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Submit still blocked after the render loop started")
	}
}

func TestCloseAnswersPendingReplies(t *testing.T) {
	h := newHarness(t, DefaultConfig(), false)
	s := h.r.NewScene(0)
	f := s.Nop(9)
	require.NoError(t, h.r.Submit(context.Background(), s))
	require.NoError(t, h.r.Close())

	res, ok := f.Result()
	require.True(t, ok, "reply left unresolved")
	assert.Equal(t, command.ResultNotHandled, res)

	s = h.r.NewScene(0)
	s.Nop(1)
	assert.ErrorIs(t, h.r.Submit(context.Background(), s), ErrClosed)
	assert.ErrorIs(t, h.r.Run(context.Background()), ErrClosed)
}

func TestRunTwice(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	require.Eventually(t, func() bool { return h.r.Stats().Frames > 0 }, 2*time.Second, time.Millisecond)
	assert.ErrorIs(t, h.r.Run(context.Background()), ErrRunning)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, DefaultConfig(), false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.r.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "Run = %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run ignored cancellation")
	}
}

func TestDrawIsFlushedOnGuestRead(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.createContext(t, 1)

	s := h.r.NewScene(1)
	s.SetContext(SetContextArgs{Color: target})
	h.recordTriangle(t, s, colorUniform(1, 0, 0, 1))
	s.Nop(command.ResultOK)
	require.Equal(t, command.ResultOK, h.wait(t, s))
	require.Eventually(t, func() bool { return h.r.Stats().State.Draws == 1 }, 2*time.Second, time.Millisecond)

	// The guest read traps, and returns only after the flush.
	px := make([]byte, 4)
	require.NoError(t, h.space.Read(target.Address+64*5+4*3, px))
	assert.Equal(t, []byte{0xff, 0, 0, 0xff}, px)
	require.Eventually(t, func() bool { return h.r.Stats().Surfaces.Flushes >= 1 }, 2*time.Second, time.Millisecond)
}

func TestRenderIntoInteriorOfSurface(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.createContext(t, 1)

	s := h.r.NewScene(1)
	s.SetContext(SetContextArgs{Color: target})
	h.recordTriangle(t, s, colorUniform(1, 0, 0, 1))
	s.Nop(command.ResultOK)
	h.wait(t, s)

	// Rows 8 to 11 of the same surface, as a target of their own.
	band := target
	band.Address += 8 * target.Stride
	band.Height = 4
	s = h.r.NewScene(1)
	s.SetContext(SetContextArgs{Color: band})
	h.recordTriangle(t, s, colorUniform(0, 1, 0, 1))
	s.Nop(command.ResultOK)
	require.Equal(t, command.ResultOK, h.wait(t, s))
	require.Eventually(t, func() bool { return h.r.Stats().State.Draws == 2 }, 2*time.Second, time.Millisecond)

	row := func(y uint32) []byte {
		px := make([]byte, 4)
		require.NoError(t, h.space.Read(target.Address+y*target.Stride+4*5, px))
		return px
	}
	red, green := []byte{0xff, 0, 0, 0xff}, []byte{0, 0xff, 0, 0xff}
	assert.Equal(t, red, row(7))
	assert.Equal(t, green, row(8))
	assert.Equal(t, green, row(11))
	assert.Equal(t, red, row(12))

	st := h.r.Stats().Surfaces
	assert.Equal(t, uint64(1), st.Created)
	assert.Zero(t, st.Invalidations)
}

func TestRenderThenSampleHitsTheCache(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.createContext(t, 1)

	s := h.r.NewScene(1)
	s.SetContext(SetContextArgs{Color: target})
	h.recordTriangle(t, s, colorUniform(0, 0, 1, 1))
	s.Nop(command.ResultOK)
	h.wait(t, s)

	// Sample the surface just rendered from a textured fragment program.
	textured := []byte("// gxm:entry fs_main\n// gxm:sampler 0\n// gxm:uniform 0 0 16\n")
	s = h.r.NewScene(1)
	s.SetContext(SetContextArgs{Color: SurfaceArgs{
		Address: 0x4000, Format: uint8(surface.FormatRGBA8), Stride: 64, Width: 16, Height: 16,
	}})
	s.SetState(state.ProgramArgs{Stage: uint8(shader.StageVertex), Code: []byte(shader.SolidVertexWGSL)})
	s.SetState(state.ProgramArgs{Stage: uint8(shader.StageFragment), Code: textured})
	s.SetState(state.VertexStreamArgs{Index: 0, Address: 0x8000, Stride: 8})
	s.SetState(state.TextureArgs{
		Slot: 0, Address: target.Address, Format: target.Format,
		Stride: target.Stride, Width: target.Width, Height: target.Height,
	})
	s.Draw(state.DrawArgs{IndexAddress: 0x9000, IndexCount: 3})
	s.Nop(command.ResultOK)
	h.wait(t, s)

	require.Eventually(t, func() bool { return h.r.Stats().State.Draws == 2 }, 2*time.Second, time.Millisecond)
	st := h.r.Stats().Surfaces
	assert.GreaterOrEqual(t, st.Hits, uint64(1))
	assert.Zero(t, h.be.Counters().Copies, "sampling a whole surface needs no copy")
	assert.Zero(t, st.Casts)
	assert.Equal(t, uint64(2), st.Created)

	last := h.be.LastDraw()
	require.NotNil(t, last)
	require.Len(t, last.Textures, 1)
	assert.Equal(t, backend.FullUV, last.Textures[0].UV)
}

func TestDisabledSurfaceSyncLeavesGuestMemory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DisableSurfaceSync = true
	h := newHarness(t, cfg, true)
	h.createContext(t, 1)

	s := h.r.NewScene(1)
	s.SetContext(SetContextArgs{Color: target})
	h.recordTriangle(t, s, colorUniform(1, 1, 1, 1))
	s.SyncSurfaceData(target.Address, 1024)
	require.Equal(t, command.ResultOK, h.wait(t, s))

	px := make([]byte, 4)
	require.NoError(t, h.space.Read(target.Address, px))
	assert.Equal(t, []byte{0, 0, 0, 0}, px)
}

func TestDrawWithoutContextTargetIsSkipped(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.createContext(t, 1)

	s := h.r.NewScene(1)
	h.recordTriangle(t, s, colorUniform(1, 0, 0, 1))
	s.Nop(command.ResultOK)
	h.wait(t, s)

	require.Eventually(t, func() bool { return h.r.Stats().State.Skipped == 1 }, 2*time.Second, time.Millisecond)
	assert.Zero(t, h.be.Counters().Draws)
}

func TestSceneStateSuppliesTargets(t *testing.T) {
	h := newHarness(t, DefaultConfig(), true)
	h.createContext(t, 1)

	st := SceneState{Targets: SetContextArgs{Color: target}}
	s := h.r.NewSceneWithState(1, st)
	// The scene keeps its own copy.
	st.Targets.Color.Address = 0x4000
	s.BindTargets()
	h.recordTriangle(t, s, colorUniform(0, 0, 1, 1))
	s.Nop(command.ResultOK)
	h.wait(t, s)
	require.Eventually(t, func() bool { return h.r.Stats().State.Draws == 1 }, 2*time.Second, time.Millisecond)

	px := make([]byte, 4)
	require.NoError(t, h.space.Read(target.Address, px))
	assert.Equal(t, []byte{0, 0, 0xff, 0xff}, px)

	// Without a scene state there is nothing to bind.
	s = h.r.NewScene(1)
	s.BindTargets()
	h.recordTriangle(t, s, colorUniform(0, 1, 0, 1))
	s.Nop(command.ResultOK)
	h.wait(t, s)
	require.Eventually(t, func() bool { return h.r.Stats().State.Skipped == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), h.r.Stats().State.Draws)
}
