// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package lockfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
)

// acquire creates path exclusively. A lock file left by a crashed
// process must be removed by hand.
func acquire(path string) (func() error, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("lockfile: creating %s: %w", path, err)
	}
	file.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("lockfile: creating %s: %w", path, err)
	}
	return func() error { return os.Remove(path) }, nil
}
