// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xchange-foundation/msglog/lib/chain"
)

// Encryptor wraps published archives, e.g. lib/sealed. Encrypted
// archives get Extension appended to their file name.
type Encryptor interface {
	Extension() string
	Encrypt(w io.Writer) (io.WriteCloser, error)
}

// WriterConfig configures a [Writer].
type WriterConfig struct {
	// Dir is the output directory. It must exist.
	Dir string

	// Prefix starts every archive file name. Defaults to DefaultPrefix;
	// see GroupPrefix.
	Prefix string

	// HashAlgorithm is the chain hash algorithm. Defaults to
	// chain.DefaultAlgorithm.
	HashAlgorithm string

	// MaxArchiveSize is the container size in bytes that triggers
	// rotation. Required.
	MaxArchiveSize int64

	// MaxRecordSize bounds a single record's container. Zero means
	// MaxRecordSizeLimit.
	MaxRecordSize int64

	// EntryCompression is applied to record entries.
	EntryCompression EntryCompression

	// Encryptor, if set, encrypts each published archive.
	Encryptor Encryptor

	// EntryRandom and FileRandom generate entry and file name
	// suffixes. Both default to RandomSuffix.
	EntryRandom SuffixFunc
	FileRandom  SuffixFunc

	Logger *slog.Logger
}

// Published describes one archive file published by a Writer.
type Published struct {
	Pointer    chain.Pointer
	Path       string
	Records    int
	Size       int64
	Start, End time.Time
}

// Writer batches records into archive files published in one directory
// and links them into one chain. See the package documentation for the
// rotation protocol and the single-writer precondition.
//
// Writer is not safe for concurrent use. After any error from Write or
// Rotate the writer is unusable: Close returns the same error after
// removing staging files, and nothing further is published.
type Writer struct {
	config  WriterConfig
	logger  *slog.Logger
	store   Store
	builder *chain.Builder
	cache   *Cache

	staging      *os.File
	stagingPaths []string

	// pending counts records accepted since the last rotation.
	pending   int
	published []Published
	err       error
	closed    bool

	// beforePublish, when set, runs after the staging file is complete
	// and before it is renamed.
	beforePublish func(stagingPath string) error
}

// NewWriter returns a writer publishing into config.Dir whose chain
// starts at the head currently recorded in store.
func NewWriter(config WriterConfig, store Store) (*Writer, error) {
	if store == nil {
		return nil, fmt.Errorf("archive: store is required")
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("archive: output directory is required")
	}
	info, err := os.Stat(config.Dir)
	if err != nil {
		return nil, fmt.Errorf("archive: output directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("archive: output path %s is not a directory", config.Dir)
	}
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if config.HashAlgorithm == "" {
		config.HashAlgorithm = chain.DefaultAlgorithm
	}
	if config.FileRandom == nil {
		config.FileRandom = RandomSuffix
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	builder, err := chain.NewBuilder(config.HashAlgorithm, storeLoader{store})
	if err != nil {
		return nil, err
	}
	cache, err := NewCache(CacheConfig{
		MaxArchiveSize: config.MaxArchiveSize,
		MaxRecordSize:  config.MaxRecordSize,
		Compression:    config.EntryCompression,
		Random:         config.EntryRandom,
	}, builder)
	if err != nil {
		return nil, err
	}

	return &Writer{
		config:  config,
		logger:  config.Logger.With("dir", config.Dir, "prefix", config.Prefix),
		store:   store,
		builder: builder,
		cache:   cache,
	}, nil
}

// Write adds record to the current archive, marks it archived in the
// store, and rotates if the archive has reached the maximum size.
//
// The record is marked archived as soon as it is accepted, before the
// archive holding it is published. A nil record is rejected with
// ErrNilRecord and has no side effects; an encoding error leaves the
// current archive unchanged.
func (w *Writer) Write(record Record) error {
	if record == nil {
		return ErrNilRecord
	}
	if err := w.usable(); err != nil {
		return err
	}
	if err := w.openStaging(); err != nil {
		return w.fail(err)
	}

	if err := w.cache.Add(record); err != nil {
		var encodingErr *EncodingError
		if errors.As(err, &encodingErr) || errors.Is(err, ErrRecordTooLarge) {
			return err
		}
		return w.fail(err)
	}
	w.pending++

	if err := w.store.MarkRecordArchived(record); err != nil {
		return w.fail(&StoreError{Op: "mark record archived", Err: err})
	}

	if w.cache.IsRotationPending() {
		return w.Rotate()
	}
	return nil
}

// Rotate publishes the current archive. It is a no-op when no records
// were written since the last rotation.
func (w *Writer) Rotate() error {
	if err := w.usable(); err != nil {
		return err
	}
	if w.pending == 0 {
		return nil
	}
	if err := w.rotate(); err != nil {
		return w.fail(err)
	}
	return nil
}

func (w *Writer) rotate() error {
	if err := w.openStaging(); err != nil {
		return err
	}
	staging := w.staging
	w.staging = nil

	size, err := w.writeStaging(staging)
	if closeErr := staging.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("archive: closing staging file: %w", closeErr)
	}
	if err != nil {
		return err
	}
	w.builder.AfterCommitStaged()

	if w.beforePublish != nil {
		if err := w.beforePublish(staging.Name()); err != nil {
			return err
		}
	}
	name, err := w.publish(staging.Name())
	if err != nil {
		return err
	}
	w.forgetStaging(staging.Name())
	path := filepath.Join(w.config.Dir, name)

	pointer := chain.NewPointer(w.builder.StagedDigest(), name)
	if err := w.store.MarkArchiveCreated(pointer); err != nil {
		return &StoreError{Op: "mark archive created", Err: err}
	}
	if err := w.builder.AfterCommitConfirmed(); err != nil {
		return fmt.Errorf("archive: confirming chain head: %w", err)
	}

	published := Published{
		Pointer: pointer,
		Path:    path,
		Records: w.cache.Len(),
		Size:    size,
		Start:   w.cache.StartTime(),
		End:     w.cache.EndTime(),
	}
	w.published = append(w.published, published)
	w.cache.Reset()
	w.pending = 0

	w.logger.Info("archive published",
		"file", name,
		"records", published.Records,
		"bytes", published.Size,
		"digest", pointer.Digest(),
	)
	return nil
}

// writeStaging writes the candidate container, through the encryptor
// if configured, and fsyncs the file.
func (w *Writer) writeStaging(file *os.File) (int64, error) {
	if w.config.Encryptor == nil {
		size, err := w.cache.WriteTo(file)
		if err != nil {
			return 0, fmt.Errorf("archive: writing staging file: %w", err)
		}
		if err := file.Sync(); err != nil {
			return 0, fmt.Errorf("archive: syncing staging file: %w", err)
		}
		return size, nil
	}

	encrypted, err := w.config.Encryptor.Encrypt(file)
	if err != nil {
		return 0, fmt.Errorf("archive: starting encryption: %w", err)
	}
	if _, err := w.cache.WriteTo(encrypted); err != nil {
		encrypted.Close()
		return 0, fmt.Errorf("archive: writing staging file: %w", err)
	}
	if err := encrypted.Close(); err != nil {
		return 0, fmt.Errorf("archive: finishing encryption: %w", err)
	}
	if err := file.Sync(); err != nil {
		return 0, fmt.Errorf("archive: syncing staging file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("archive: staging file: %w", err)
	}
	return info.Size(), nil
}

// publish renames the staging file to a fresh unique archive name and
// returns that name. An existing file is never replaced.
func (w *Writer) publish(stagingPath string) (string, error) {
	extension := ""
	if w.config.Encryptor != nil {
		extension = w.config.Encryptor.Extension()
	}
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		suffix, err := w.config.FileRandom()
		if err != nil {
			return "", err
		}
		name := FileName{
			Prefix:    w.config.Prefix,
			Start:     w.cache.StartTime(),
			End:       w.cache.EndTime(),
			Suffix:    suffix,
			Extension: extension,
		}.String()

		err = renameNoReplace(stagingPath, filepath.Join(w.config.Dir, name))
		if errors.Is(err, fs.ErrExist) {
			w.logger.Debug("archive name taken", "file", name)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("archive: publishing %s: %w", name, err)
		}
		if err := syncDir(w.config.Dir); err != nil {
			return "", err
		}
		return name, nil
	}
	return "", fmt.Errorf("%w after %d attempts", ErrFileNamesExhausted, maxNameAttempts)
}

// Close publishes any records written since the last rotation, even if
// the maximum size was not reached, then removes every staging file.
// Staging files are removed on every path, including failures. Calling
// Close again returns nil.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	defer w.release()

	if w.err != nil {
		return w.err
	}
	if w.pending > 0 {
		if err := w.rotate(); err != nil {
			w.err = err
			return err
		}
	}
	return nil
}

// Discard closes the writer without publishing and removes staging
// files. Records already marked archived stay marked; callers discard
// when the surrounding store transaction is rolled back.
func (w *Writer) Discard() {
	if w.closed {
		return
	}
	if w.pending > 0 {
		w.logger.Warn("discarding unpublished records", "records", w.pending)
	}
	w.release()
}

func (w *Writer) release() {
	w.closed = true
	if w.staging != nil {
		w.staging.Close()
		w.staging = nil
	}
	for _, path := range w.stagingPaths {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("removing staging file", "path", path, "error", err)
		}
	}
	w.stagingPaths = nil
	w.cache.Close()
}

// Published returns the archives published so far, oldest first.
func (w *Writer) Published() []Published {
	return append([]Published(nil), w.published...)
}

// Head returns the chain head as last confirmed by the store.
func (w *Writer) Head() chain.Pointer { return w.builder.Previous() }

// Pending returns the number of records written since the last
// rotation.
func (w *Writer) Pending() int { return w.pending }

func (w *Writer) usable() error {
	if w.closed {
		return ErrWriterClosed
	}
	return w.err
}

func (w *Writer) fail(err error) error {
	w.err = err
	return err
}

func (w *Writer) openStaging() error {
	if w.staging != nil {
		return nil
	}
	file, err := os.CreateTemp(w.config.Dir, "."+w.config.Prefix+"-*.tmp")
	if err != nil {
		return fmt.Errorf("archive: creating staging file: %w", err)
	}
	w.staging = file
	w.stagingPaths = append(w.stagingPaths, file.Name())
	w.logger.Debug("staging file opened", "path", file.Name())
	return nil
}

func (w *Writer) forgetStaging(path string) {
	for index, candidate := range w.stagingPaths {
		if candidate == path {
			w.stagingPaths = append(w.stagingPaths[:index], w.stagingPaths[index+1:]...)
			return
		}
	}
}

// storeLoader adapts a Store to chain.Loader.
type storeLoader struct {
	store Store
}

func (l storeLoader) LoadLast() (chain.Pointer, error) {
	pointer, err := l.store.LoadLast()
	if err != nil {
		return chain.Pointer{}, &StoreError{Op: "load last", Err: err}
	}
	return pointer, nil
}
