// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache provides the generic caching primitives used by the
// renderer.
//
// # List[K]
//
// An intrusive doubly-linked LRU list. The surface cache uses it to order
// the slots of its fixed-capacity ring.
//
// # Cache[K, V]
//
// A thread-safe cache with a soft limit (25% eviction when exceeded) and
// fallible find-or-build. A soft limit of 0 makes it unbounded, which is
// how the program cache uses it.
//
//	programs := cache.New[Key, *Linked](0)
//	p, err := programs.GetOrTryCreate(key, link)
//
// # ShardedCache[K, V]
//
// A sharded LRU with an eviction callback and predicate sweeps. Framebuffer
// objects live here so a view about to be destroyed can sweep every
// framebuffer that references it.
//
//	fbs := cache.NewSharded[Key, ID](64, hashKey)
//	fbs.OnEvict(func(k Key, id ID) { dev.DestroyFramebuffer(id) })
//	fbs.DeleteFunc(func(k Key, _ ID) bool { return k.Color == view })
//
// # Thread Safety
//
// Cache and ShardedCache are safe for concurrent use. List is not.
package cache
