// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/xchange-foundation/msglog/lib/chain"
)

func newTestWriter(t *testing.T, store *memoryStore, config WriterConfig) *Writer {
	t.Helper()
	if config.Dir == "" {
		config.Dir = t.TempDir()
	}
	if config.HashAlgorithm == "" {
		config.HashAlgorithm = chain.SHA256
	}
	if config.EntryRandom == nil {
		config.EntryRandom = counter()
	}
	if config.FileRandom == nil {
		config.FileRandom = counter()
	}
	writer, err := NewWriter(config, store)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	t.Cleanup(writer.Discard)
	return writer
}

// With stored entries, 26-byte entry names and SHA-256, each 60-byte
// record adds 188 bytes of zip structure and 92 bytes of linking info.
// Four records cross 1000 bytes; three do not.
func TestWriterEndToEnd(t *testing.T) {
	dir := t.TempDir()
	store := &memoryStore{}
	writer := newTestWriter(t, store, WriterConfig{Dir: dir, MaxArchiveSize: 1000})

	var records []*testRecord
	for index := 1; index <= 5; index++ {
		records = append(records, newRecord(index, 60))
	}
	for index, record := range records[:3] {
		if err := writer.Write(record); err != nil {
			t.Fatalf("Write R%d: %v", index+1, err)
		}
		if len(writer.Published()) != 0 {
			t.Fatalf("rotated after R%d", index+1)
		}
	}
	if err := writer.Write(records[3]); err != nil {
		t.Fatalf("Write R4: %v", err)
	}
	published := writer.Published()
	if len(published) != 1 {
		t.Fatalf("published %d archives after R4, want 1", len(published))
	}
	first := published[0]
	if first.Records != 4 {
		t.Errorf("first archive has %d records, want 4", first.Records)
	}
	if store.head != first.Pointer || writer.Head() != first.Pointer {
		t.Errorf("head = %v / %v, want %v", store.head, writer.Head(), first.Pointer)
	}
	if !first.Start.Equal(records[0].at) || !first.End.Equal(records[3].at) {
		t.Errorf("window = [%v, %v]", first.Start, first.End)
	}

	if err := writer.Write(records[4]); err != nil {
		t.Fatalf("Write R5: %v", err)
	}
	info, err := chain.ParseLinkingInfo(writer.builder.Build())
	if err != nil {
		t.Fatalf("ParseLinkingInfo: %v", err)
	}
	if info.Previous != first.Pointer {
		t.Errorf("R5 batch references %v, want %v", info.Previous, first.Pointer)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	published = writer.Published()
	if len(published) != 2 || published[1].Records != 1 {
		t.Fatalf("published = %+v", published)
	}

	archive, err := OpenArchive(first.Path)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer archive.Close()
	if got := len(archive.RecordNames()); got != 4 {
		t.Errorf("first archive holds %d records", got)
	}
	stat, err := os.Stat(first.Path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if stat.Size() != first.Size {
		t.Errorf("%s is %d bytes, want %d", first.Path, stat.Size(), first.Size)
	}

	head, err := VerifyFiles([]string{published[1].Path, first.Path})
	if err != nil {
		t.Fatalf("VerifyFiles: %v", err)
	}
	if head != published[1].Pointer || store.head != head {
		t.Errorf("verified head %v, published %v, store %v", head, published[1].Pointer, store.head)
	}

	archives, staging := listDir(t, dir)
	if len(archives) != 2 || len(staging) != 0 {
		t.Errorf("dir holds archives %v and staging files %v", archives, staging)
	}
}

func TestWriterRejectsNilRecord(t *testing.T) {
	dir := t.TempDir()
	store := &memoryStore{}
	writer := newTestWriter(t, store, WriterConfig{Dir: dir, MaxArchiveSize: 1000})

	if err := writer.Write(nil); !errors.Is(err, ErrNilRecord) {
		t.Fatalf("Write(nil) error = %v", err)
	}
	if _, staging := listDir(t, dir); len(staging) != 0 {
		t.Errorf("staging file opened for rejected record: %v", staging)
	}
	if !slices.Equal(store.calls, []string{"load"}) {
		t.Errorf("store calls = %v, want only the initial load", store.calls)
	}
	if err := writer.Write(newRecord(1, 10)); err != nil {
		t.Errorf("Write after rejected record: %v", err)
	}
}

func TestWriterEncodingErrorKeepsWriterUsable(t *testing.T) {
	store := &memoryStore{}
	writer := newTestWriter(t, store, WriterConfig{MaxArchiveSize: 1000})

	broken := newRecord(1, 10)
	broken.err = errors.New("bad signature")
	var encodingErr *EncodingError
	if err := writer.Write(broken); !errors.As(err, &encodingErr) {
		t.Fatalf("Write error = %v, want EncodingError", err)
	}
	if writer.Pending() != 0 {
		t.Errorf("Pending = %d after failed write", writer.Pending())
	}
	if err := writer.Write(newRecord(2, 10)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(writer.Published()) != 1 || writer.Published()[0].Records != 1 {
		t.Errorf("published = %+v", writer.Published())
	}
}

func TestWriterMarksRecordsBeforePublishing(t *testing.T) {
	dir := t.TempDir()
	store := &memoryStore{}
	store.onMarkRecord = func(Record) {
		if archives, _ := listDir(t, dir); len(archives) != 0 {
			t.Errorf("archive %v published before record was marked", archives)
		}
	}
	writer := newTestWriter(t, store, WriterConfig{Dir: dir, MaxArchiveSize: 1000})

	for index := 1; index <= 3; index++ {
		if err := writer.Write(newRecord(index, 10)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	name := writer.Published()[0].Pointer.FileName()
	want := []string{"load", "record r1", "record r2", "record r3", "archive " + name, "load"}
	if !slices.Equal(store.calls, want) {
		t.Errorf("store calls = %v, want %v", store.calls, want)
	}
}

func TestWriterCloseFlushesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	writer := newTestWriter(t, &memoryStore{}, WriterConfig{Dir: dir, MaxArchiveSize: 1 << 20})

	for index := 1; index <= 2; index++ {
		if err := writer.Write(newRecord(index, 10)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if _, staging := listDir(t, dir); len(staging) != 1 {
		t.Fatalf("staging files before Close = %v, want one", staging)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	archives, staging := listDir(t, dir)
	if len(archives) != 1 || len(staging) != 0 {
		t.Errorf("after Close: archives %v, staging %v", archives, staging)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := writer.Write(newRecord(3, 10)); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Write after Close error = %v", err)
	}
}

func TestWriterCloseWithoutRecordsPublishesNothing(t *testing.T) {
	dir := t.TempDir()
	store := &memoryStore{}
	writer := newTestWriter(t, store, WriterConfig{Dir: dir, MaxArchiveSize: 1000})

	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if archives, staging := listDir(t, dir); len(archives)+len(staging) != 0 {
		t.Errorf("dir not empty: %v %v", archives, staging)
	}
	if !store.head.IsEmpty() {
		t.Errorf("head = %v", store.head)
	}
}

// A crash between staging and rename must leave the canonical names
// untouched: the earlier archive stays complete and no partial file is
// visible under an archive name.
func TestWriterPublishIsAtomic(t *testing.T) {
	dir := t.TempDir()
	store := &memoryStore{}
	writer := newTestWriter(t, store, WriterConfig{Dir: dir, MaxArchiveSize: 1 << 20})

	if err := writer.Write(newRecord(1, 10)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	first := writer.Published()[0]

	crash := errors.New("simulated crash")
	writer.beforePublish = func(stagingPath string) error {
		staged, err := OpenArchive(stagingPath)
		if err != nil {
			t.Errorf("staging file is incomplete: %v", err)
			return crash
		}
		staged.Close()
		return crash
	}
	if err := writer.Write(newRecord(2, 10)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Rotate(); !errors.Is(err, crash) {
		t.Fatalf("Rotate error = %v, want simulated crash", err)
	}

	archives, _ := listDir(t, dir)
	if !slices.Equal(archives, []string{first.Pointer.FileName()}) {
		t.Fatalf("archives = %v, want only %s", archives, first.Pointer.FileName())
	}
	if _, err := VerifyFiles([]string{first.Path}); err != nil {
		t.Errorf("earlier archive no longer verifies: %v", err)
	}
	if store.head != first.Pointer {
		t.Errorf("head = %v, want %v", store.head, first.Pointer)
	}

	if err := writer.Close(); !errors.Is(err, crash) {
		t.Errorf("Close error = %v, want the rotate failure", err)
	}
	if _, staging := listDir(t, dir); len(staging) != 0 {
		t.Errorf("staging files left after Close: %v", staging)
	}

	// A fresh writer picks up the durable head, not the staged digest.
	restarted := newTestWriter(t, store, WriterConfig{Dir: dir, MaxArchiveSize: 1 << 20})
	if restarted.Head() != first.Pointer {
		t.Errorf("restarted head = %v, want %v", restarted.Head(), first.Pointer)
	}
}

func TestWriterRetriesTakenFileNames(t *testing.T) {
	dir := t.TempDir()
	writer := newTestWriter(t, &memoryStore{}, WriterConfig{
		Dir:            dir,
		MaxArchiveSize: 1 << 20,
		FileRandom:     sequence("aaaaaaaaaa", "aaaaaaaaaa", "bbbbbbbbbb"),
	})

	for range 2 {
		if err := writer.Write(newRecord(1, 10)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := writer.Rotate(); err != nil {
			t.Fatalf("Rotate: %v", err)
		}
	}
	published := writer.Published()
	if !strings.Contains(published[0].Path, "-aaaaaaaaaa.zip") || !strings.Contains(published[1].Path, "-bbbbbbbbbb.zip") {
		t.Errorf("paths = %s, %s", published[0].Path, published[1].Path)
	}
}

func TestWriterFileNamesExhausted(t *testing.T) {
	dir := t.TempDir()
	writer := newTestWriter(t, &memoryStore{}, WriterConfig{
		Dir:            dir,
		MaxArchiveSize: 1 << 20,
		FileRandom:     sequence("aaaaaaaaaa"),
	})

	if err := writer.Write(newRecord(1, 10)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	first := writer.Published()[0]
	original, err := os.ReadFile(first.Path)
	if err != nil {
		t.Fatal(err)
	}

	if err := writer.Write(newRecord(1, 20)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Rotate(); !errors.Is(err, ErrFileNamesExhausted) {
		t.Fatalf("Rotate error = %v, want ErrFileNamesExhausted", err)
	}
	current, err := os.ReadFile(first.Path)
	if err != nil || string(current) != string(original) {
		t.Errorf("existing archive was modified (err %v)", err)
	}
	writer.Discard()
	if _, staging := listDir(t, dir); len(staging) != 0 {
		t.Errorf("staging files left after Discard: %v", staging)
	}
}

func TestRenameNoReplaceRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source")
	target := filepath.Join(dir, "target")
	if err := os.WriteFile(source, []byte("new"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}

	for name, rename := range map[string]func(string, string) error{
		"renameNoReplace": renameNoReplace,
		"renameIfAbsent":  renameIfAbsent,
	} {
		if err := rename(source, target); !errors.Is(err, os.ErrExist) {
			t.Errorf("%s error = %v, want ErrExist", name, err)
		}
		if data, _ := os.ReadFile(target); string(data) != "old" {
			t.Errorf("%s replaced the target", name)
		}
	}
	if err := renameNoReplace(source, filepath.Join(dir, "fresh")); err != nil {
		t.Errorf("renameNoReplace to a free name: %v", err)
	}
}

func TestWriterStoreErrors(t *testing.T) {
	t.Run("load", func(t *testing.T) {
		store := &memoryStore{loadErr: errors.New("database locked")}
		_, err := NewWriter(WriterConfig{Dir: t.TempDir(), MaxArchiveSize: 1000}, store)
		var storeErr *StoreError
		if !errors.As(err, &storeErr) || storeErr.Op != "load last" {
			t.Fatalf("NewWriter error = %v, want StoreError(load last)", err)
		}
	})

	t.Run("mark record", func(t *testing.T) {
		dir := t.TempDir()
		store := &memoryStore{markRecordErr: errors.New("disk full")}
		writer := newTestWriter(t, store, WriterConfig{Dir: dir, MaxArchiveSize: 1000})

		err := writer.Write(newRecord(1, 10))
		var storeErr *StoreError
		if !errors.As(err, &storeErr) || storeErr.Op != "mark record archived" {
			t.Fatalf("Write error = %v", err)
		}
		if err := writer.Close(); !errors.Is(err, store.markRecordErr) {
			t.Errorf("Close error = %v", err)
		}
		if archives, staging := listDir(t, dir); len(archives)+len(staging) != 0 {
			t.Errorf("dir not empty: %v %v", archives, staging)
		}
	})

	t.Run("mark archive", func(t *testing.T) {
		dir := t.TempDir()
		store := &memoryStore{markArchiveErr: errors.New("constraint failed")}
		writer := newTestWriter(t, store, WriterConfig{Dir: dir, MaxArchiveSize: 1000})

		if err := writer.Write(newRecord(1, 10)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		err := writer.Close()
		var storeErr *StoreError
		if !errors.As(err, &storeErr) || storeErr.Op != "mark archive created" {
			t.Fatalf("Close error = %v", err)
		}
		if !store.head.IsEmpty() {
			t.Errorf("head = %v after failed MarkArchiveCreated", store.head)
		}
		if _, staging := listDir(t, dir); len(staging) != 0 {
			t.Errorf("staging files left: %v", staging)
		}
	})
}

type passthroughEncryptor struct{ buffers int }

func (e *passthroughEncryptor) Extension() string { return ".age" }

func (e *passthroughEncryptor) Encrypt(w io.Writer) (io.WriteCloser, error) {
	e.buffers++
	return nopWriteCloser{w}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestWriterEncryptedArchiveName(t *testing.T) {
	dir := t.TempDir()
	encryptor := &passthroughEncryptor{}
	writer := newTestWriter(t, &memoryStore{}, WriterConfig{
		Dir:            dir,
		MaxArchiveSize: 1000,
		Encryptor:      encryptor,
	})
	if err := writer.Write(newRecord(1, 10)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := writer.Published()[0].Path
	if !strings.HasSuffix(path, ".zip.age") || encryptor.buffers != 1 {
		t.Errorf("path = %s, encryptions = %d", path, encryptor.buffers)
	}
	if _, err := OpenArchive(path); !errors.Is(err, ErrEncrypted) {
		t.Errorf("OpenArchive error = %v, want ErrEncrypted", err)
	}
}
