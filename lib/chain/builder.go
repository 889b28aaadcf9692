// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"bytes"
	"fmt"
)

// Loader returns the authoritative chain head from persistent storage.
// It returns the zero Pointer when no archive has been published.
type Loader interface {
	LoadLast() (Pointer, error)
}

// Builder computes the running hash chain for the records of the
// archive currently being built and serializes its linking info block.
//
// The commit protocol is two-phase:
//
//  1. AfterCommitStaged once the archive bytes (including Build output)
//     are written to a staging file. The pending entries are dropped,
//     the final running digest is kept as StagedDigest, and the working
//     digest is rewound to the previously loaded pointer.
//  2. AfterCommitConfirmed once the archive is published and the new
//     pointer is durably recorded. The pointer is reloaded from the
//     Loader, never taken from memory.
//
// Builder is not safe for concurrent use.
type Builder struct {
	algorithm string
	loader    Loader

	previous     Pointer
	lastDigest   string
	stagedDigest string
	entries      []Entry

	// size is len(Build()), maintained incrementally.
	size int
}

// NewBuilder returns a Builder for algorithm whose reference point is
// the pointer currently returned by loader.
func NewBuilder(algorithm string, loader Loader) (*Builder, error) {
	if err := ValidateAlgorithm(algorithm); err != nil {
		return nil, err
	}
	if loader == nil {
		return nil, fmt.Errorf("chain: loader is required")
	}
	builder := &Builder{
		algorithm: algorithm,
		loader:    loader,
	}
	if err := builder.reload(); err != nil {
		return nil, err
	}
	return builder, nil
}

// AddRecord extends the running digest with data and appends the
// linking entry for the record stored under name. Nothing is persisted.
func (b *Builder) AddRecord(name string, data []byte) (Entry, error) {
	digest, err := NextDigest(b.algorithm, b.lastDigest, data)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{Digest: digest, FileName: name}
	b.entries = append(b.entries, entry)
	b.lastDigest = digest
	b.size += entryLineLength(entry)
	return entry, nil
}

// Build serializes the linking info block: a header line referencing
// the previously loaded pointer and the algorithm, then one line per
// pending entry in the order they were added. Build does not modify
// the builder.
func (b *Builder) Build() []byte {
	var buffer bytes.Buffer
	buffer.Grow(b.size)
	buffer.WriteString(headerLine(b.previous, b.algorithm))
	for _, entry := range b.entries {
		buffer.WriteString(entry.Digest)
		buffer.WriteByte(' ')
		buffer.WriteString(entry.FileName)
		buffer.WriteByte('\n')
	}
	return buffer.Bytes()
}

// Size returns len(Build()) without building.
func (b *Builder) Size() int { return b.size }

// AfterCommitStaged records the final running digest as the staged
// digest, drops the pending entries and rewinds the working digest to
// the previously loaded pointer.
func (b *Builder) AfterCommitStaged() {
	b.stagedDigest = b.lastDigest
	b.entries = nil
	b.lastDigest = b.previous.Digest()
	b.size = len(headerLine(b.previous, b.algorithm))
}

// AfterCommitConfirmed reloads the authoritative pointer from the
// loader. Call it only after the archive file is published and its
// pointer recorded.
func (b *Builder) AfterCommitConfirmed() error {
	if err := b.reload(); err != nil {
		return err
	}
	b.stagedDigest = ""
	return nil
}

// Algorithm returns the hash algorithm identifier.
func (b *Builder) Algorithm() string { return b.algorithm }

// Previous returns the pointer the next Build header references.
func (b *Builder) Previous() Pointer { return b.previous }

// LastDigest returns the current running digest.
func (b *Builder) LastDigest() string { return b.lastDigest }

// StagedDigest returns the final digest captured by the last
// AfterCommitStaged, or "" when nothing is staged.
func (b *Builder) StagedDigest() string { return b.stagedDigest }

// Len returns the number of pending entries.
func (b *Builder) Len() int { return len(b.entries) }

// Entries returns a copy of the pending entries.
func (b *Builder) Entries() []Entry {
	return append([]Entry(nil), b.entries...)
}

func (b *Builder) reload() error {
	pointer, err := b.loader.LoadLast()
	if err != nil {
		return fmt.Errorf("chain: loading last archive pointer: %w", err)
	}
	b.previous = pointer
	b.lastDigest = pointer.Digest()
	b.entries = nil
	b.size = len(headerLine(pointer, b.algorithm))
	return nil
}

func headerLine(previous Pointer, algorithm string) string {
	return dashIfEmpty(previous.Digest()) + " " + dashIfEmpty(previous.FileName()) + " " + algorithm + "\n"
}

func entryLineLength(entry Entry) int {
	return len(entry.Digest) + 1 + len(entry.FileName) + 1
}
