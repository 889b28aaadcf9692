// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// renameIfAbsent renames oldPath to newPath unless newPath exists. The
// check and the rename are separate steps, which is only safe with a
// single writer per directory.
func renameIfAbsent(oldPath, newPath string) error {
	_, err := os.Lstat(newPath)
	if err == nil {
		return &os.LinkError{Op: "rename", Old: oldPath, New: newPath, Err: fs.ErrExist}
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("archive: checking %s: %w", newPath, err)
	}
	return os.Rename(oldPath, newPath)
}
