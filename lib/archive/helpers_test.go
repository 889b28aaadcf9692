// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/xchange-foundation/msglog/lib/chain"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type testRecord struct {
	id       string
	response bool
	at       time.Time
	body     []byte
	err      error
}

func (r *testRecord) Timestamp() time.Time { return r.at }
func (r *testRecord) ID() string           { return r.id }
func (r *testRecord) IsResponse() bool     { return r.response }

func (r *testRecord) ContainerBytes() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.body, nil
}

// newRecord returns a record with a body of size bytes, timestamped
// index minutes after baseTime.
func newRecord(index, size int) *testRecord {
	return &testRecord{
		id:   fmt.Sprintf("r%d", index),
		at:   baseTime.Add(time.Duration(index) * time.Minute),
		body: bytes.Repeat([]byte{byte('a' + index%26)}, size),
	}
}

// memoryStore is an in-process Store with fault injection. Every call
// is appended to calls.
type memoryStore struct {
	head  chain.Pointer
	calls []string

	loadErr        error
	markRecordErr  error
	markArchiveErr error

	onMarkRecord func(Record)
}

func (s *memoryStore) LoadLast() (chain.Pointer, error) {
	s.calls = append(s.calls, "load")
	if s.loadErr != nil {
		return chain.Pointer{}, s.loadErr
	}
	return s.head, nil
}

func (s *memoryStore) MarkRecordArchived(record Record) error {
	s.calls = append(s.calls, "record "+record.ID())
	if s.onMarkRecord != nil {
		s.onMarkRecord(record)
	}
	return s.markRecordErr
}

func (s *memoryStore) MarkArchiveCreated(pointer chain.Pointer) error {
	s.calls = append(s.calls, "archive "+pointer.FileName())
	if s.markArchiveErr != nil {
		return s.markArchiveErr
	}
	s.head = pointer
	return nil
}

// sequence returns a SuffixFunc yielding values in order and then
// repeating the last one.
func sequence(values ...string) SuffixFunc {
	index := 0
	return func() (string, error) {
		value := values[index]
		if index < len(values)-1 {
			index++
		}
		return value, nil
	}
}

// counter returns a SuffixFunc yielding distinct 10-character suffixes.
func counter() SuffixFunc {
	next := 0
	return func() (string, error) {
		next++
		return fmt.Sprintf("%010d", next), nil
	}
}

// listDir returns the archive and staging file names in dir.
func listDir(t *testing.T, dir string) (archives, staging []string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".tmp"):
			staging = append(staging, entry.Name())
		default:
			archives = append(archives, entry.Name())
		}
	}
	return archives, staging
}
