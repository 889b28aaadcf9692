// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"time"

	"github.com/xchange-foundation/msglog/lib/chain"
)

// Record is a unit of the online message log that can be archived.
type Record interface {
	// Timestamp is the record's creation time. The archive file name
	// carries the earliest and latest timestamps of its records.
	Timestamp() time.Time

	// ID is a stable identifier used to derive the record's entry name
	// inside the archive container.
	ID() string

	// IsResponse reports whether the record is the response half of an
	// exchange.
	IsResponse() bool

	// ContainerBytes renders the record into the bytes stored as its
	// archive entry. The same record must always render to the same
	// bytes.
	ContainerBytes() ([]byte, error)
}

// Store is the persistent side of the archiver. All calls may block on
// I/O and none are retried.
type Store interface {
	// LoadLast returns the chain head: the pointer of the most recently
	// published archive, or the zero pointer if there is none.
	LoadLast() (chain.Pointer, error)

	// MarkRecordArchived flags record as archived.
	MarkRecordArchived(record Record) error

	// MarkArchiveCreated records pointer as the new chain head.
	MarkArchiveCreated(pointer chain.Pointer) error
}
