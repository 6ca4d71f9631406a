// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gxm is the GPU command virtualization layer of a console
// emulator.
//
// # Overview
//
// Guest code running on emulation goroutines records its rendering calls
// into scenes. Each scene is a chain of commands for one guest rendering
// context, and it is handed to a single render goroutine through a
// bounded queue. The render goroutine owns everything that touches the
// host device: per-context render state, linked programs and the surface
// cache that maps guest memory ranges to host images.
//
// # Quick Start
//
//	r, err := gxm.New(gxm.WithBackend(be))
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	go r.Run(ctx)
//
//	s := r.NewScene(0)
//	s.CreateContext(1)
//	if _, err := r.SubmitAndWait(ctx, s); err != nil {
//	    return err
//	}
//
//	s = r.NewScene(1)
//	s.SetContext(gxm.SetContextArgs{Color: gxm.SurfaceArgs{
//	    Address: 0x1000, Stride: 512, Width: 128, Height: 128,
//	}})
//	s.SetState(state.ProgramArgs{Stage: uint8(shader.StageVertex), Code: vs})
//	s.SetState(state.ProgramArgs{Stage: uint8(shader.StageFragment), Code: fs})
//	s.Draw(state.DrawArgs{IndexAddress: 0x8000, IndexCount: 6})
//	err = r.Submit(ctx, s)
//
// # Coherency
//
// Surfaces are backed by guest memory. When the GPU renders to a linear
// colour surface its pages are trapped; the first guest access through
// [mem.Space.Read] or [mem.Space.Write] waits for the render goroutine to
// copy the rendered pixels back. Where traps are unavailable every
// rendered surface is copied back at the end of each scene.
//
// # Packages
//
//   - command: commands, scenes as lists, the queue and the batch processor
//   - state: per-context render state and draw preparation
//   - surface: the surface cache
//   - backend: the host device interface, with headless and wgpu backends
//   - shader: guest program compilation
//   - mem: guest memory with page write traps
//
// # Logging
//
// gxm is silent by default. See [SetLogger].
package gxm
