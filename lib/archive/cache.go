// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/xchange-foundation/msglog/lib/chain"
)

// State is the rotation state of a [Cache].
type State int

const (
	// StateEmpty: no records since construction or the last reset.
	StateEmpty State = iota

	// StateFilling: records accumulated, candidate within the maximum
	// size.
	StateFilling

	// StateRotationPending: the last Add pushed the candidate past the
	// maximum size (or the entry limit). The next Add starts a fresh
	// batch.
	StateRotationPending
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFilling:
		return "filling"
	case StateRotationPending:
		return "rotation-pending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Linker is the part of [chain.Builder] the cache needs: it links each
// added record and serializes the linking info block embedded as the
// last container entry.
type Linker interface {
	AddRecord(name string, data []byte) (chain.Entry, error)
	Build() []byte
	Size() int
}

// CacheConfig configures a [Cache].
type CacheConfig struct {
	// MaxArchiveSize is the candidate container size, in bytes, above
	// which rotation becomes pending. Required; at most
	// MaxArchiveSizeLimit.
	MaxArchiveSize int64

	// Compression is applied to record entries. Zero is
	// CompressionStore; use ParseEntryCompression("") for the default.
	Compression EntryCompression

	// MaxRecordSize is the largest accepted rendered record container,
	// in bytes. Larger records are rejected with ErrRecordTooLarge.
	// Zero means MaxRecordSizeLimit.
	MaxRecordSize int64

	// EntryExtension is appended to entry names. Defaults to
	// DefaultEntryExtension.
	EntryExtension string

	// Random generates entry name suffixes. Defaults to RandomSuffix.
	Random SuffixFunc
}

// Cache accumulates records into the in-memory candidate archive.
//
// The candidate is a zip container holding one entry per record, in
// add order, followed by the linking info block produced by the
// Linker. Record entries are compressed once when added and the
// container size is maintained arithmetically, so Size is always equal
// to len(CandidateBytes()) without rebuilding the container.
//
// Cache is not safe for concurrent use.
type Cache struct {
	maxSize        int64
	maxRecordSize  int64
	entryExtension string
	random         SuffixFunc
	linker         Linker
	compressor     *entryCompressor

	state       State
	entries     []containerEntry
	names       map[string]struct{}
	entriesSize int64
	start, end  time.Time

	// candidate caches the materialized container. It is valid while
	// the entries are unchanged and the linker still builds
	// candidateLinking.
	candidate        []byte
	candidateLinking []byte
}

// NewCache returns an empty cache linking records through linker.
func NewCache(config CacheConfig, linker Linker) (*Cache, error) {
	if linker == nil {
		return nil, fmt.Errorf("archive: linker is required")
	}
	if config.MaxArchiveSize <= 0 {
		return nil, fmt.Errorf("archive: maximum archive size must be positive, got %d", config.MaxArchiveSize)
	}
	if config.MaxArchiveSize > MaxArchiveSizeLimit {
		return nil, fmt.Errorf("archive: maximum archive size %d exceeds limit %d", config.MaxArchiveSize, MaxArchiveSizeLimit)
	}
	if config.MaxRecordSize < 0 || config.MaxRecordSize > MaxRecordSizeLimit {
		return nil, fmt.Errorf("archive: maximum record size must be between 0 and %d, got %d", MaxRecordSizeLimit, config.MaxRecordSize)
	}
	if config.MaxRecordSize == 0 {
		config.MaxRecordSize = MaxRecordSizeLimit
	}
	if config.EntryExtension == "" {
		config.EntryExtension = DefaultEntryExtension
	}
	if config.Random == nil {
		config.Random = RandomSuffix
	}
	compressor, err := newEntryCompressor(config.Compression)
	if err != nil {
		return nil, err
	}
	return &Cache{
		maxSize:        config.MaxArchiveSize,
		maxRecordSize:  config.MaxRecordSize,
		entryExtension: config.EntryExtension,
		random:         config.Random,
		linker:         linker,
		compressor:     compressor,
		names:          make(map[string]struct{}),
	}, nil
}

// Add appends record to the candidate archive and links it.
//
// If rotation was pending, the previous batch is discarded first: a
// pending rotation means the caller has already drained and committed
// it. The rotation decision is made after record is included, so a
// single oversized record is archived on its own rather than dropped.
//
// Add is atomic: on error neither the cache nor the linker has changed.
func (c *Cache) Add(record Record) error {
	if record == nil {
		return ErrNilRecord
	}
	data, err := record.ContainerBytes()
	if err != nil {
		return &EncodingError{RecordID: record.ID(), Err: err}
	}
	if int64(len(data)) > c.maxRecordSize {
		return fmt.Errorf("%w: record %q renders to %d bytes", ErrRecordTooLarge, record.ID(), len(data))
	}

	resetFirst := c.state == StateRotationPending
	name, err := c.newEntryName(record, resetFirst)
	if err != nil {
		return err
	}
	entry, err := c.compressor.compress(name, data)
	if err != nil {
		return err
	}
	if _, err := c.linker.AddRecord(name, data); err != nil {
		return fmt.Errorf("archive: linking record %q: %w", record.ID(), err)
	}

	if resetFirst {
		c.Reset()
	}
	c.entries = append(c.entries, entry)
	c.names[name] = struct{}{}
	c.entriesSize += entry.size()
	c.candidate = nil
	c.candidateLinking = nil

	timestamp := record.Timestamp()
	if c.start.IsZero() || timestamp.Before(c.start) {
		c.start = timestamp
	}
	if c.end.IsZero() || timestamp.After(c.end) {
		c.end = timestamp
	}

	if c.Size() > c.maxSize || len(c.entries) >= maxRecords {
		c.state = StateRotationPending
	} else {
		c.state = StateFilling
	}
	return nil
}

// newEntryName picks an entry name not used in the batch record will
// join. When fresh is set, that batch is the one starting after the
// pending reset.
func (c *Cache) newEntryName(record Record, fresh bool) (string, error) {
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		suffix, err := c.random()
		if err != nil {
			return "", err
		}
		name := entryName(record.ID(), record.IsResponse(), suffix, c.entryExtension)
		if name == LinkingInfoName {
			continue
		}
		if fresh {
			return name, nil
		}
		if _, taken := c.names[name]; !taken {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w for record %q after %d attempts", ErrEntryNamesExhausted, record.ID(), maxNameAttempts)
}

// Reset discards the accumulated records and returns the cache to
// StateEmpty. The linker is not touched.
func (c *Cache) Reset() {
	c.state = StateEmpty
	c.entries = nil
	clear(c.names)
	c.entriesSize = 0
	c.start = time.Time{}
	c.end = time.Time{}
	c.candidate = nil
	c.candidateLinking = nil
}

// State returns the rotation state.
func (c *Cache) State() State { return c.state }

// IsRotationPending reports whether the last Add pushed the candidate
// past the maximum size.
func (c *Cache) IsRotationPending() bool { return c.state == StateRotationPending }

// Len returns the number of records in the candidate.
func (c *Cache) Len() int { return len(c.entries) }

// StartTime returns the earliest record timestamp in the candidate, or
// the zero time if it is empty.
func (c *Cache) StartTime() time.Time { return c.start }

// EndTime returns the latest record timestamp in the candidate, or the
// zero time if it is empty.
func (c *Cache) EndTime() time.Time { return c.end }

// Size returns the exact byte length of the candidate container,
// including the linking info entry as the linker would build it now.
func (c *Cache) Size() int64 {
	return containerSize(c.entriesSize, c.linker.Size())
}

// CandidateBytes returns the complete candidate container. The result
// is cached until the container changes and must not be modified.
func (c *Cache) CandidateBytes() []byte {
	linking := c.linker.Build()
	if c.candidate == nil || !bytes.Equal(linking, c.candidateLinking) {
		var buffer bytes.Buffer
		buffer.Grow(int(containerSize(c.entriesSize, len(linking))))
		// Writes into a bytes.Buffer cannot fail.
		_ = writeContainer(&buffer, c.entries, linking)
		c.candidate = buffer.Bytes()
		c.candidateLinking = linking
	}
	return c.candidate
}

// WriteTo streams the candidate container to w without materializing
// it.
func (c *Cache) WriteTo(w io.Writer) (int64, error) {
	linking := c.linker.Build()
	if c.candidate != nil && bytes.Equal(linking, c.candidateLinking) {
		written, err := w.Write(c.candidate)
		return int64(written), err
	}
	counter := &countingWriter{writer: w}
	err := writeContainer(counter, c.entries, linking)
	return counter.count, err
}

// Close releases encoder resources. The cache must not be used
// afterwards.
func (c *Cache) Close() {
	c.compressor.close()
}

type countingWriter struct {
	writer io.Writer
	count  int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	written, err := w.writer.Write(p)
	w.count += int64(written)
	return written, err
}
