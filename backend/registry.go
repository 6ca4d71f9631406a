// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"sort"
	"sync"
)

// Factory creates a new, uninitialized backend instance.
type Factory func() Backend

// Standard priorities. Higher is preferred by Default.
const (
	PriorityGPU      = 100
	PriorityHeadless = 50
	PriorityNull     = 10
)

type registryEntry struct {
	name     string
	priority int
	factory  Factory
}

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]registryEntry)
)

// Register registers a backend factory with the given name and priority.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, priority int, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = registryEntry{name: name, priority: priority, factory: factory}
}

// Available returns registered backend names, highest priority first.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sortedNames()
}

// sortedNames must be called with registryMu held.
func sortedNames() []string {
	entries := make([]registryEntry, 0, len(backends))
	for _, e := range backends {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority > entries[j].priority
		}
		return entries[i].name < entries[j].name
	})
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Get returns a backend instance by name.
// Returns nil if the backend is not registered.
func Get(name string) Backend {
	registryMu.RLock()
	e, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil
	}
	return e.factory()
}

// Default returns the highest priority backend whose factory produces an
// instance. Returns nil if no backends are registered.
func Default() Backend {
	registryMu.RLock()
	names := sortedNames()
	registryMu.RUnlock()

	for _, name := range names {
		if b := Get(name); b != nil {
			return b
		}
	}
	return nil
}

// InitDefault creates and initializes the default backend.
func InitDefault() (Backend, error) {
	b := Default()
	if b == nil {
		return nil, ErrBackendNotAvailable
	}

	if err := b.Init(); err != nil {
		return nil, err
	}

	return b, nil
}
