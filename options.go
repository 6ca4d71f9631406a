// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gxm

import (
	"log/slog"

	"github.com/gogpu/gxm/backend"
	"github.com/gogpu/gxm/mem"
	"github.com/gogpu/gxm/shader"
)

// Option configures a Renderer during creation.
//
// Example:
//
//	// Defaults: best registered backend, private guest memory.
//	r, err := gxm.New()
//
//	// Injected collaborators.
//	r, err := gxm.New(gxm.WithBackend(be), gxm.WithMemory(space))
type Option func(*options)

type options struct {
	config   Config
	backend  backend.Backend
	memory   *mem.Space
	compiler shader.Compiler
	logger   *slog.Logger
}

func defaultOptions() options {
	return options{config: DefaultConfig()}
}

// WithConfig replaces the default configuration.
func WithConfig(c Config) Option {
	return func(o *options) {
		o.config = c
	}
}

// WithBackend sets an initialized backend. The caller keeps ownership:
// Renderer.Close does not close it. Without this option the backend
// named by Config.Backend is opened and owned by the renderer.
func WithBackend(b backend.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithMemory sets the guest memory surfaces are backed by. The caller
// keeps ownership. Without this option a private space of
// Config.MemorySize bytes is created.
func WithMemory(m *mem.Space) Option {
	return func(o *options) {
		o.memory = m
	}
}

// WithShaderCompiler sets the compiler for guest programs. The default
// compiles SourceTranslator programs with naga.
func WithShaderCompiler(c shader.Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithLogger sets the renderer's logger instead of the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
