// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// Package lockfile guards an archive output directory against a second
// archiver process.
//
// The archive writer assumes a single writer per output directory and
// takes no lock of its own. Deployments that cannot guarantee a single
// scheduled process enable "archive.lock" in the configuration, and the
// archiver holds this lock for the lifetime of each run.
package lockfile

import (
	"errors"
	"path/filepath"
)

// Name is the lock file created in the guarded directory.
const Name = ".msglog-archiver.lock"

// ErrLocked is returned by Acquire when another process holds the lock.
var ErrLocked = errors.New("lockfile: directory is locked by another archiver")

// Lock is a held directory lock.
type Lock struct {
	path    string
	release func() error
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release releases the lock. Calling it more than once is a no-op.
func (l *Lock) Release() error {
	if l.release == nil {
		return nil
	}
	release := l.release
	l.release = nil
	return release()
}

// Acquire takes the lock for dir without blocking. It returns an error
// matching ErrLocked if another process holds it.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, Name)
	release, err := acquire(path)
	if err != nil {
		return nil, err
	}
	return &Lock{path: path, release: release}, nil
}
