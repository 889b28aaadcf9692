// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// memoryLoader is a Loader whose pointer can be changed between
// loads, standing in for the persistent store.
type memoryLoader struct {
	pointer Pointer
	err     error
	loads   int
}

func (l *memoryLoader) LoadLast() (Pointer, error) {
	l.loads++
	return l.pointer, l.err
}

func TestNewBuilderRejectsUnknownAlgorithm(t *testing.T) {
	_, err := NewBuilder("MD5", &memoryLoader{})
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("NewBuilder(MD5) error = %v, want ErrUnsupportedAlgorithm", err)
	}
}

func TestNewBuilderPropagatesLoaderFailure(t *testing.T) {
	loaderErr := errors.New("database is locked")
	_, err := NewBuilder(SHA256, &memoryLoader{err: loaderErr})
	if !errors.Is(err, loaderErr) {
		t.Fatalf("NewBuilder error = %v, want wrapped %v", err, loaderErr)
	}
}

func TestBuildSentinelHeader(t *testing.T) {
	for _, algorithm := range Algorithms() {
		t.Run(algorithm, func(t *testing.T) {
			builder, err := NewBuilder(algorithm, &memoryLoader{})
			if err != nil {
				t.Fatalf("NewBuilder: %v", err)
			}
			want := "- - " + algorithm + "\n"
			if got := string(builder.Build()); got != want {
				t.Errorf("Build() = %q, want %q", got, want)
			}
		})
	}
}

func TestAddRecordExtendsRunningDigest(t *testing.T) {
	loader := &memoryLoader{pointer: NewPointer("deadbeef", "mlog-prev.zip")}
	builder, err := NewBuilder(SHA256, loader)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	entry, err := builder.AddRecord("a.cbor", []byte("first"))
	if err != nil {
		t.Fatalf("AddRecord: %v", err)
	}

	recordDigest, _ := HexDigest(SHA256, []byte("first"))
	want, _ := HexDigest(SHA256, []byte("deadbeef"+recordDigest))
	if entry.Digest != want {
		t.Errorf("entry digest = %s, want %s", entry.Digest, want)
	}
	if builder.LastDigest() != want {
		t.Errorf("LastDigest() = %s, want %s", builder.LastDigest(), want)
	}

	second, err := builder.AddRecord("b.cbor", []byte("second"))
	if err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	wantSecond, _ := NextDigest(SHA256, want, []byte("second"))
	if second.Digest != wantSecond {
		t.Errorf("second digest = %s, want %s", second.Digest, wantSecond)
	}

	wantBuild := "deadbeef mlog-prev.zip SHA-256\n" +
		want + " a.cbor\n" +
		wantSecond + " b.cbor\n"
	if got := string(builder.Build()); got != wantBuild {
		t.Errorf("Build() =\n%s\nwant\n%s", got, wantBuild)
	}
	if builder.Size() != len(wantBuild) {
		t.Errorf("Size() = %d, want %d", builder.Size(), len(wantBuild))
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	records := [][]byte{[]byte("one"), []byte("two"), []byte("three")}

	build := func() []byte {
		builder, err := NewBuilder(SHA512, &memoryLoader{pointer: NewPointer("abc", "mlog-x.zip")})
		if err != nil {
			t.Fatalf("NewBuilder: %v", err)
		}
		for index, record := range records {
			if _, err := builder.AddRecord(fmt.Sprintf("r%d.cbor", index), record); err != nil {
				t.Fatalf("AddRecord: %v", err)
			}
		}
		return builder.Build()
	}

	first := build()
	second := build()
	if string(first) != string(second) {
		t.Fatalf("Build output differs between runs:\n%s\n%s", first, second)
	}
}

func TestRecordOrderChangesChain(t *testing.T) {
	builderA, _ := NewBuilder(SHA256, &memoryLoader{})
	builderB, _ := NewBuilder(SHA256, &memoryLoader{})

	builderA.AddRecord("x", []byte("x"))
	builderA.AddRecord("y", []byte("y"))
	builderB.AddRecord("y", []byte("y"))
	builderB.AddRecord("x", []byte("x"))

	if builderA.LastDigest() == builderB.LastDigest() {
		t.Fatal("reordering records produced the same final digest")
	}
}

func TestAfterCommitStagedRewinds(t *testing.T) {
	start := NewPointer("0011", "mlog-start.zip")
	builder, err := NewBuilder(SHA256, &memoryLoader{pointer: start})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	builder.AddRecord("a", []byte("a"))
	final, _ := builder.AddRecord("b", []byte("b"))

	builder.AfterCommitStaged()

	if builder.StagedDigest() != final.Digest {
		t.Errorf("StagedDigest() = %s, want %s", builder.StagedDigest(), final.Digest)
	}
	if builder.LastDigest() != start.Digest() {
		t.Errorf("LastDigest() after staging = %s, want rewound %s", builder.LastDigest(), start.Digest())
	}
	if builder.Len() != 0 {
		t.Errorf("Len() after staging = %d, want 0", builder.Len())
	}
	if got, want := string(builder.Build()), "0011 mlog-start.zip SHA-256\n"; got != want {
		t.Errorf("Build() after staging = %q, want %q", got, want)
	}
}

func TestAfterCommitConfirmedReloadsFromStore(t *testing.T) {
	loader := &memoryLoader{}
	builder, err := NewBuilder(SHA256, loader)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	builder.AddRecord("a", []byte("a"))
	builder.AfterCommitStaged()

	// The store now holds a pointer that differs from the staged
	// digest; the builder must adopt the store's value.
	loader.pointer = NewPointer("feedface", "mlog-new.zip")
	if err := builder.AfterCommitConfirmed(); err != nil {
		t.Fatalf("AfterCommitConfirmed: %v", err)
	}

	if builder.Previous() != loader.pointer {
		t.Errorf("Previous() = %v, want %v", builder.Previous(), loader.pointer)
	}
	if builder.LastDigest() != "feedface" {
		t.Errorf("LastDigest() = %s, want feedface", builder.LastDigest())
	}
	if builder.StagedDigest() != "" {
		t.Errorf("StagedDigest() = %q, want empty", builder.StagedDigest())
	}
	if !strings.HasPrefix(string(builder.Build()), "feedface mlog-new.zip ") {
		t.Errorf("Build() header does not reference reloaded pointer: %q", builder.Build())
	}
}

func TestUnconfirmedBatchNeverReachesNewBuilder(t *testing.T) {
	before := NewPointer("c0ffee", "mlog-before.zip")
	loader := &memoryLoader{pointer: before}

	discarded, err := NewBuilder(SHA256, loader)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	for index := 0; index < 5; index++ {
		if _, err := discarded.AddRecord(fmt.Sprintf("r%d", index), []byte{byte(index)}); err != nil {
			t.Fatalf("AddRecord: %v", err)
		}
	}
	discarded.AfterCommitStaged()

	restarted, err := NewBuilder(SHA256, loader)
	if err != nil {
		t.Fatalf("NewBuilder after restart: %v", err)
	}
	if restarted.Previous() != before {
		t.Fatalf("restarted Previous() = %v, want %v", restarted.Previous(), before)
	}
	if restarted.LastDigest() != before.Digest() {
		t.Fatalf("restarted LastDigest() = %s, want %s", restarted.LastDigest(), before.Digest())
	}
}

func TestAfterCommitConfirmedPropagatesLoaderFailure(t *testing.T) {
	loader := &memoryLoader{}
	builder, _ := NewBuilder(SHA256, loader)
	builder.AddRecord("a", []byte("a"))
	builder.AfterCommitStaged()

	loader.err = errors.New("disk I/O error")
	if err := builder.AfterCommitConfirmed(); !errors.Is(err, loader.err) {
		t.Fatalf("AfterCommitConfirmed error = %v, want %v", err, loader.err)
	}
}
