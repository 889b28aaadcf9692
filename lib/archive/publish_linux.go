// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package archive

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// renameNoReplace atomically renames oldPath to newPath, failing with
// an error matching fs.ErrExist if newPath exists. Filesystems without
// RENAME_NOREPLACE fall back to renameIfAbsent.
func renameNoReplace(oldPath, newPath string) error {
	err := unix.Renameat2(unix.AT_FDCWD, oldPath, unix.AT_FDCWD, newPath, unix.RENAME_NOREPLACE)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EOPNOTSUPP):
		return renameIfAbsent(oldPath, newPath)
	default:
		return &os.LinkError{Op: "renameat2", Old: oldPath, New: newPath, Err: err}
	}
}

// syncDir flushes directory metadata so a completed rename survives a
// crash.
func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: opening %s for sync: %w", path, err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("archive: syncing %s: %w", path, err)
	}
	return nil
}
