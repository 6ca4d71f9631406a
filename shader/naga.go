// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"fmt"

	"github.com/gogpu/naga"

	"github.com/gogpu/gxm/internal/cache"
)

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile wgsl: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("compile wgsl: spir-v size %d not a multiple of 4", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

type moduleKey struct {
	stage Stage
	fp    Fingerprint
}

// NagaCompiler translates programs with a Translator and compiles the
// result with naga. Modules are cached by fingerprint, so a program bound
// by several contexts is compiled once.
type NagaCompiler struct {
	translator Translator
	modules    *cache.Cache[moduleKey, *Module]
}

// NewNagaCompiler creates a compiler. cacheSize bounds the module cache;
// 0 means unbounded.
func NewNagaCompiler(t Translator, cacheSize int) *NagaCompiler {
	return &NagaCompiler{
		translator: t,
		modules:    cache.New[moduleKey, *Module](cacheSize),
	}
}

// Compile implements Compiler.
func (c *NagaCompiler) Compile(p *Program) (*Module, error) {
	if c.translator == nil {
		return nil, &CompileError{Stage: p.Stage, Fingerprint: p.Fingerprint, Err: ErrNoTranslator}
	}
	return c.modules.GetOrTryCreate(moduleKey{p.Stage, p.Fingerprint}, func() (*Module, error) {
		src, entry, refl, err := c.translator.Translate(p)
		if err != nil {
			return nil, &CompileError{Stage: p.Stage, Fingerprint: p.Fingerprint, Err: err}
		}
		words, err := CompileWGSL(src)
		if err != nil {
			return nil, &CompileError{Stage: p.Stage, Fingerprint: p.Fingerprint, Err: err}
		}
		return &Module{
			Stage:       p.Stage,
			Fingerprint: p.Fingerprint,
			EntryPoint:  entry,
			WGSL:        src,
			SPIRV:       words,
			Reflection:  refl,
		}, nil
	})
}

// Cached returns the number of compiled modules held.
func (c *NagaCompiler) Cached() int {
	return c.modules.Len()
}
