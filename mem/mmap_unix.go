// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build linux || darwin || freebsd || netbsd || openbsd

package mem

import "golang.org/x/sys/unix"

func pageSize() int {
	return unix.Getpagesize()
}

func allocate(size int) (data []byte, release func([]byte) error, hw bool, err error) {
	data, err = unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		// Fall back to heap memory with software traps.
		return make([]byte, size), nil, false, nil
	}
	return data, unix.Munmap, true, nil
}

func protect(b []byte, armed bool) error {
	prot := unix.PROT_READ | unix.PROT_WRITE
	if armed {
		prot = unix.PROT_NONE
	}
	return unix.Mprotect(b, prot)
}
