// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package state

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/internal/cache"
	"github.com/gogpu/gxm/shader"
)

// programKey identifies a linked program by the content of its stages.
type programKey struct {
	vertex, fragment shader.Fingerprint
}

// Program is a linked vertex and fragment pair.
type Program struct {
	Vertex   *shader.Module
	Fragment *shader.Module
	Pipeline backend.PipelineID

	err error
}

// ProgramCache links program pairs once per content and keeps them for
// the life of the backend. A pair that failed to compile or link stays
// failed, so a broken program is reported once and not rebuilt on every
// draw.
type ProgramCache struct {
	be       backend.Backend
	compiler shader.Compiler
	entries  *cache.Cache[programKey, *Program]
	logger   *slog.Logger

	builds   uint64
	failures uint64
}

// NewProgramCache creates an unbounded program cache.
func NewProgramCache(be backend.Backend, compiler shader.Compiler, logger *slog.Logger) *ProgramCache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ProgramCache{
		be:       be,
		compiler: compiler,
		entries:  cache.New[programKey, *Program](0),
		logger:   logger,
	}
}

// Get returns the linked program for a vertex and fragment pair,
// building it on first use.
func (pc *ProgramCache) Get(vertex, fragment *shader.Program) (*Program, error) {
	key := programKey{vertex.Fingerprint, fragment.Fingerprint}
	p := pc.entries.GetOrCreate(key, func() *Program {
		return pc.build(vertex, fragment)
	})
	if p.err != nil {
		return nil, p.err
	}
	return p, nil
}

func (pc *ProgramCache) build(vertex, fragment *shader.Program) *Program {
	pc.builds++
	p := &Program{}
	if pc.compiler == nil {
		p.err = shader.ErrNoTranslator
	} else if p.Vertex, p.err = pc.compiler.Compile(vertex); p.err == nil {
		if p.Fragment, p.err = pc.compiler.Compile(fragment); p.err == nil {
			p.Pipeline, p.err = pc.be.LinkProgram(p.Vertex, p.Fragment)
		}
	}
	if p.err != nil {
		pc.failures++
		p.err = fmt.Errorf("state: program %016x/%016x: %w",
			uint64(vertex.Fingerprint), uint64(fragment.Fingerprint), p.err)
		pc.logger.Warn("state: program build failed", "err", p.err)
		return p
	}
	pc.logger.Debug("state: program linked", "vertex", uint64(vertex.Fingerprint),
		"fragment", uint64(fragment.Fingerprint), "pipeline", p.Pipeline)
	return p
}

// Len returns the number of cached pairs, failed ones included.
func (pc *ProgramCache) Len() int {
	return pc.entries.Len()
}

// Builds returns how many pairs were built and how many of them failed.
func (pc *ProgramCache) Builds() (builds, failures uint64) {
	return pc.builds, pc.failures
}

// Close destroys every linked pipeline.
func (pc *ProgramCache) Close() {
	pc.entries.Range(func(_ programKey, p *Program) bool {
		if p.err == nil && p.Pipeline != 0 {
			pc.be.DestroyPipeline(p.Pipeline)
		}
		return true
	})
	pc.entries.Clear()
}
