// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command gxmreplay drives a gxm renderer with synthetic guest scenes.
//
// Several producer goroutines each own a guest context and a colour
// surface. Every scene binds the solid programs, draws one triangle per
// requested draw and signals the producer's sync object. When all scenes
// have run the renderer statistics are printed; -dump writes the first
// producer's surface, read back through guest memory, as a BMP file.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"image"
	"log"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/gxm"
	"github.com/gogpu/gxm/backend"
	_ "github.com/gogpu/gxm/backend/headless"
	"github.com/gogpu/gxm/backend/wgpu"
	"github.com/gogpu/gxm/command"
	"github.com/gogpu/gxm/shader"
	"github.com/gogpu/gxm/state"
	"github.com/gogpu/gxm/surface"
)

// Guest memory layout.
const (
	indexAddress   = 0x1000
	vertexAddress  = 0x2000
	surfaceBase    = 0x10000
	surfaceSpacing = 0x10000
)

type options struct {
	config    string
	backend   string
	producers int
	scenes    int
	draws     int
	width     int
	height    int
	dump      string
	verbose   bool
}

func main() {
	var o options
	flag.StringVar(&o.config, "config", "", "TOML configuration file")
	flag.StringVar(&o.backend, "backend", "", "backend name (headless, wgpu-noop); empty uses the config")
	flag.IntVar(&o.producers, "producers", 4, "producer goroutines")
	flag.IntVar(&o.scenes, "scenes", 100, "scenes per producer")
	flag.IntVar(&o.draws, "draws", 4, "draws per scene")
	flag.IntVar(&o.width, "width", 64, "surface width")
	flag.IntVar(&o.height, "height", 64, "surface height")
	flag.StringVar(&o.dump, "dump", "", "write the first surface to this BMP file")
	flag.BoolVar(&o.verbose, "v", false, "log renderer activity")
	flag.Parse()

	if err := run(o); err != nil {
		log.Fatalf("gxmreplay: %v", err)
	}
}

func run(o options) error {
	if o.producers < 1 || o.scenes < 1 || o.draws < 1 {
		return fmt.Errorf("producers, scenes and draws must be positive")
	}
	stride := o.width * 4
	if o.width < 1 || o.height < 1 || stride*o.height > surfaceSpacing {
		return fmt.Errorf("surface %dx%d does not fit in %#x bytes", o.width, o.height, surfaceSpacing)
	}

	cfg := gxm.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = gxm.LoadConfig(o.config); err != nil {
			return err
		}
	}
	if o.backend != "" {
		cfg.Backend = o.backend
	}
	if need := surfaceBase + o.producers*surfaceSpacing; cfg.MemorySize < need {
		cfg.MemorySize = need
	}
	if o.verbose {
		gxm.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	opts := []gxm.Option{gxm.WithConfig(cfg)}
	be, release, err := openBackend(cfg.Backend)
	if err != nil {
		return err
	}
	defer release()
	if be != nil {
		opts = append(opts, gxm.WithBackend(be))
	}

	r, err := gxm.New(opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	loop := make(chan error, 1)
	go func() { loop <- r.Run(ctx) }()

	if err := writeGeometry(r); err != nil {
		return err
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < o.producers; p++ {
		g.Go(func() error { return produce(gctx, r, o, p) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	if o.dump != "" {
		if err := dump(r, o, o.dump); err != nil {
			return err
		}
	}

	st := r.Stats()
	fmt.Printf("backend:  %s\n", r.Backend().Name())
	fmt.Printf("scenes:   %d in %v (%.0f/s)\n", st.Scenes, elapsed.Round(time.Millisecond),
		float64(st.Scenes)/elapsed.Seconds())
	fmt.Printf("commands: %d executed, %d skipped\n", st.Commands, st.Skipped)
	fmt.Printf("state:    draws=%d skipped=%d failed=%d changes=%d reuses=%d\n",
		st.State.Draws, st.State.Skipped, st.State.Failed, st.State.StateChanges, st.State.ProgramReuses)
	fmt.Println(st.Surfaces)

	if err := r.Close(); err != nil {
		return err
	}
	return <-loop
}

// openBackend creates the wgpu noop backend itself so it can release the
// device afterwards. Other names are left to the registry.
func openBackend(name string) (backend.Backend, func(), error) {
	if name != wgpu.NoopName {
		return nil, func() {}, nil
	}
	provider, err := wgpu.NewNoopProvider()
	if err != nil {
		return nil, nil, err
	}
	be, err := wgpu.New(provider, wgpu.WithLogger(gxm.Logger()))
	if err != nil {
		provider.Release()
		return nil, nil, err
	}
	if err := be.Init(); err != nil {
		provider.Release()
		return nil, nil, err
	}
	return be, func() {
		be.Close()
		provider.Release()
	}, nil
}

// writeGeometry stores one triangle shared by every draw.
func writeGeometry(r *gxm.Renderer) error {
	var verts []byte
	for _, v := range []float32{-1, -1, 3, -1, -1, 3} {
		verts = binary.LittleEndian.AppendUint32(verts, math.Float32bits(v))
	}
	if err := r.Memory().Write(vertexAddress, verts); err != nil {
		return err
	}
	return r.Memory().Write(indexAddress, []byte{0, 0, 1, 0, 2, 0})
}

func surfaceArgs(o options, p int) gxm.SurfaceArgs {
	return gxm.SurfaceArgs{
		Address: uint32(surfaceBase + p*surfaceSpacing),
		Format:  uint8(surface.FormatRGBA8),
		Layout:  gxm.LayoutLinear,
		Stride:  uint32(o.width * 4),
		Width:   uint32(o.width),
		Height:  uint32(o.height),
	}
}

func produce(ctx context.Context, r *gxm.Renderer, o options, p int) error {
	id := uint32(p + 1)
	s := r.NewScene(0)
	s.CreateContext(id)
	res, err := r.SubmitAndWait(ctx, s)
	if err != nil {
		return fmt.Errorf("producer %d: create context: %w", p, err)
	}
	if res != command.ResultOK {
		return fmt.Errorf("producer %d: create context: result %d", p, res)
	}

	for i := 0; i < o.scenes; i++ {
		s := r.NewScene(id)
		s.SetContext(gxm.SetContextArgs{Color: surfaceArgs(o, p)})
		s.SetState(state.ProgramArgs{Stage: uint8(shader.StageVertex), Code: []byte(shader.SolidVertexWGSL)})
		s.SetState(state.ProgramArgs{Stage: uint8(shader.StageFragment), Code: []byte(shader.SolidFragmentWGSL)})
		s.SetState(state.VertexStreamArgs{Index: 0, Address: vertexAddress, Stride: 8})
		for d := 0; d < o.draws; d++ {
			s.SetState(state.UniformArgs{Stage: uint8(shader.StageFragment), Data: color(p, i, d)})
			s.Draw(state.DrawArgs{IndexAddress: indexAddress, IndexCount: 3})
		}
		s.SignalSyncObject(id, uint32(i+1))
		if err := r.Submit(ctx, s); err != nil {
			return fmt.Errorf("producer %d: scene %d: %w", p, i, err)
		}
	}
	if !r.WaitSyncObject(id, uint32(o.scenes), time.Minute) {
		return fmt.Errorf("producer %d: last scene did not run", p)
	}
	return nil
}

func color(p, scene, draw int) []byte {
	h := float64(p*31+scene*7+draw) / 64
	rgba := []float32{
		float32(0.5 + 0.5*math.Sin(h)),
		float32(0.5 + 0.5*math.Sin(h+2)),
		float32(0.5 + 0.5*math.Sin(h+4)),
		1,
	}
	var out []byte
	for _, v := range rgba {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

// dump reads the first surface as the guest would, which flushes any
// pending GPU content first.
func dump(r *gxm.Renderer, o options, path string) error {
	a := surfaceArgs(o, 0)
	img := image.NewNRGBA(image.Rect(0, 0, o.width, o.height))
	for y := 0; y < o.height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+o.width*4]
		if err := r.Memory().Read(a.Address+uint32(y)*a.Stride, row); err != nil {
			return fmt.Errorf("dump: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := bmp.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("dump: %w", err)
	}
	log.Printf("surface %#x written to %s", a.Address, path)
	return f.Close()
}
