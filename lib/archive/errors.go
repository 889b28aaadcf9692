// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrNilRecord is returned when a nil record is passed to Add or
	// Write. The call has no side effects.
	ErrNilRecord = errors.New("archive: record to be archived must not be nil")

	// ErrRecordTooLarge is returned when a record's container is too
	// large to be stored in an archive.
	ErrRecordTooLarge = errors.New("archive: record container too large")

	// ErrEntryNamesExhausted is returned when no unused entry name was
	// found within the retry limit.
	ErrEntryNamesExhausted = errors.New("archive: could not generate a unique entry name")

	// ErrFileNamesExhausted is returned when no unused archive file name
	// was found within the retry limit.
	ErrFileNamesExhausted = errors.New("archive: could not generate a unique archive file name")

	// ErrWriterClosed is returned by Write and Rotate after Close or
	// Discard.
	ErrWriterClosed = errors.New("archive: writer is closed")
)

// EncodingError reports a record that could not be rendered into its
// container bytes.
type EncodingError struct {
	RecordID string
	Err      error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("archive: encoding record %q: %v", e.RecordID, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// StoreError wraps a failed Store call.
type StoreError struct {
	// Op names the store operation: "load last", "mark record
	// archived", "mark archive created".
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("archive: store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
