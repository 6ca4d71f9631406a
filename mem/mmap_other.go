// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package mem

const defaultPageSize = 4096

func pageSize() int {
	return defaultPageSize
}

func allocate(size int) ([]byte, func([]byte) error, bool, error) {
	return make([]byte, size), nil, false, nil
}

func protect([]byte, bool) error {
	return nil
}
