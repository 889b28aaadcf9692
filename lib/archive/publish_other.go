// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package archive

import "os"

func renameNoReplace(oldPath, newPath string) error {
	return renameIfAbsent(oldPath, newPath)
}

// syncDir is best effort: not every platform can fsync a directory.
func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer dir.Close()
	_ = dir.Sync()
	return nil
}
