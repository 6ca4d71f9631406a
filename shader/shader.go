// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader is the renderer's view of guest shader programs.
//
// Translating guest bytecode is not done here: a [Translator] supplied by
// the embedder turns a [Program] into WGSL plus [Reflection] data, and
// [NagaCompiler] compiles that WGSL to SPIR-V for the host. The state
// machine only ever talks to the [Compiler] interface.
package shader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/gogpu/gputypes"
)

// Stage is a programmable pipeline stage.
type Stage uint8

const (
	StageVertex Stage = iota
	StageFragment
)

// String returns the string representation of a Stage.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "Vertex"
	case StageFragment:
		return "Fragment"
	}
	return "Unknown"
}

// Fingerprint identifies program content independently of where the guest
// stored it.
type Fingerprint uint64

// Sum computes the fingerprint of a program's bytes.
func Sum(stage Stage, code []byte) Fingerprint {
	var d xxhash.Digest
	d.Reset()
	var hdr [9]byte
	hdr[0] = byte(stage)
	binary.LittleEndian.PutUint64(hdr[1:], uint64(len(code)))
	_, _ = d.Write(hdr[:])
	_, _ = d.Write(code)
	return Fingerprint(d.Sum64())
}

// Program is a guest shader program as bound by SetState Program.
type Program struct {
	Stage       Stage
	Code        []byte
	Fingerprint Fingerprint
}

// NewProgram copies code and fingerprints it.
func NewProgram(stage Stage, code []byte) *Program {
	c := append([]byte(nil), code...)
	return &Program{Stage: stage, Code: c, Fingerprint: Sum(stage, c)}
}

// Uniform locates one guest uniform parameter inside the host uniform block.
type Uniform struct {
	Index  int // guest parameter index
	Offset int // byte offset in the uniform block
	Size   int // bytes
}

// Attribute is one vertex input fetched from a stream.
type Attribute struct {
	Location int
	Stream   int
	Offset   int
	Format   gputypes.VertexFormat
}

// Reflection is what the state machine needs to know about a compiled
// program to feed it.
type Reflection struct {
	Uniforms         []Uniform
	UniformBlockSize int
	Attributes       []Attribute
	Samplers         []int // texture slots read by the program
}

// Uniform returns the uniform for a guest parameter index.
func (r *Reflection) Uniform(index int) (Uniform, bool) {
	for _, u := range r.Uniforms {
		if u.Index == index {
			return u, true
		}
	}
	return Uniform{}, false
}

// Streams returns the number of vertex streams the attributes read.
func (r *Reflection) Streams() int {
	n := 0
	for _, a := range r.Attributes {
		if a.Stream+1 > n {
			n = a.Stream + 1
		}
	}
	return n
}

// Module is a compiled program ready for the backend.
type Module struct {
	Stage       Stage
	Fingerprint Fingerprint
	EntryPoint  string
	WGSL        string
	SPIRV       []uint32
	Reflection  Reflection
}

// Compiler turns guest programs into host modules.
type Compiler interface {
	Compile(p *Program) (*Module, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(p *Program) (*Module, error)

// Compile calls f(p).
func (f CompilerFunc) Compile(p *Program) (*Module, error) {
	return f(p)
}

// ErrNoTranslator is returned when a compiler has nothing to translate with.
var ErrNoTranslator = errors.New("shader: no translator")

// Translator converts guest bytecode into WGSL and reflection data.
type Translator interface {
	Translate(p *Program) (wgsl string, entry string, r Reflection, err error)
}

// CompileError wraps a failure with the program it belongs to.
type CompileError struct {
	Stage       Stage
	Fingerprint Fingerprint
	Err         error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("shader: compile %s program %016x: %v", e.Stage, uint64(e.Fingerprint), e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}
