// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package state reproduces guest rendering state on a backend.
//
// Every guest context has a [Context] holding what its SetState commands
// have established so far. A [Machine] decodes those commands through a
// static table indexed by sub-opcode. Fixed-function changes are applied
// to the backend at once; programs, textures, vertex streams and uniform
// writes are only recorded, since they can only be resolved once a draw
// knows which program pair it runs.
//
// At draw time the program pair is looked up by content fingerprint in an
// unbounded [ProgramCache], uniform writes are laid out against the
// program's reflection, and index and vertex data are read from guest
// memory sized by the highest index the draw references.
package state
