// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package archiver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/xchange-foundation/msglog/lib/archive"
	"github.com/xchange-foundation/msglog/lib/clock"
	"github.com/xchange-foundation/msglog/lib/config"
	"github.com/xchange-foundation/msglog/lib/lockfile"
	"github.com/xchange-foundation/msglog/lib/messagelog"
)

// DefaultPurgeBatchSize bounds the rows deleted per statement by Clean.
const DefaultPurgeBatchSize = 1000

// Config holds the parameters of a Job.
type Config struct {
	// Dir is the archive output directory. It must exist and be
	// writable.
	Dir string

	// Grouping is config.GroupingNone, GroupingMember or
	// GroupingSubsystem. Empty means none.
	Grouping string

	// BatchSize bounds the records archived per transaction.
	BatchSize int

	// Writer settings passed through to archive.NewWriter.
	MaxArchiveSize   int64
	MaxRecordSize    int64
	HashAlgorithm    string
	EntryCompression archive.EntryCompression
	Encryptor        archive.Encryptor

	// TransferCommand, if set, runs through /bin/sh after every write
	// and every committed batch that leaves archives published since
	// its previous run.
	TransferCommand string

	// Lock makes Run hold the archiver lock file in Dir.
	Lock bool

	// KeepRecordsFor is the retention period used by Clean.
	KeepRecordsFor time.Duration

	// PurgeBatchSize defaults to DefaultPurgeBatchSize.
	PurgeBatchSize int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Summary describes one Run.
type Summary struct {
	Records   int
	Batches   int
	Published []archive.Published

	// Skipped lists the row ids of records that could not be rendered
	// into an archive. They stay non-archived.
	Skipped []int64
}

// batchResult describes one archiveBatch call.
type batchResult struct {
	records int

	// skipped lists records first skipped in this batch.
	skipped []int64

	published   []archive.Published
	transferred int
}

// Job archives and cleans one message log.
type Job struct {
	config Config
	store  *messagelog.Store
	logger *slog.Logger
}

// New returns a Job over store.
func New(cfg Config, store *messagelog.Store) (*Job, error) {
	if store == nil {
		return nil, fmt.Errorf("archiver: store is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("archiver: output directory is required")
	}
	switch cfg.Grouping {
	case "":
		cfg.Grouping = config.GroupingNone
	case config.GroupingNone, config.GroupingMember, config.GroupingSubsystem:
	default:
		return nil, fmt.Errorf("archiver: unknown grouping %q", cfg.Grouping)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("archiver: batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.PurgeBatchSize <= 0 {
		cfg.PurgeBatchSize = DefaultPurgeBatchSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Job{config: cfg, store: store, logger: cfg.Logger}, nil
}

// Run archives every record that was pending when the pass started.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	if err := checkOutputDir(j.config.Dir); err != nil {
		return summary, err
	}
	if j.config.Lock {
		lock, err := lockfile.Acquire(j.config.Dir)
		if err != nil {
			return summary, fmt.Errorf("archiver: %w", err)
		}
		defer lock.Release()
	}

	maxID, err := j.store.MaxNonArchivedID(ctx)
	if err != nil {
		return summary, fmt.Errorf("archiver: %w", err)
	}
	if maxID == 0 {
		j.logger.Debug("nothing to archive")
		return summary, nil
	}

	start := j.config.Clock.Now()
	skipped := make(map[int64]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := j.archiveBatch(ctx, maxID, skipped)
		summary.Published = append(summary.Published, result.published...)
		if err != nil {
			return summary, err
		}
		for _, id := range result.skipped {
			skipped[id] = struct{}{}
		}
		summary.Skipped = append(summary.Skipped, result.skipped...)
		if result.records > 0 {
			summary.Records += result.records
			summary.Batches++
		}
		if len(result.published) > result.transferred {
			j.runTransferCommand(ctx)
		}
		if result.records+len(result.skipped) < j.config.BatchSize {
			break
		}
	}

	j.logger.Info("archived log records",
		"records", summary.Records,
		"batches", summary.Batches,
		"archives", len(summary.Published),
		"skipped", len(summary.Skipped),
		"duration", j.config.Clock.Now().Sub(start),
	)
	return summary, nil
}

// archiveBatch archives up to BatchSize records in one transaction,
// not counting the records in skip, which stay non-archived and are
// selected again. result.published lists archives that reached the
// directory even if the transaction later failed.
func (j *Job) archiveBatch(ctx context.Context, maxID int64, skip map[int64]struct{}) (result batchResult, err error) {
	err = j.store.WithConn(ctx, func(conn *sqlite.Conn) (err error) {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return fmt.Errorf("archiver: begin transaction: %w", err)
		}
		defer endTransaction(&err)

		batch, err := j.store.NonArchived(conn, maxID, j.config.BatchSize+len(skip))
		if err != nil {
			return err
		}

		var (
			writer *archive.Writer
			group  string
		)
		finish := func() error {
			if writer == nil {
				return nil
			}
			closeErr := writer.Close()
			result.published = append(result.published, writer.Published()...)
			writer = nil
			return closeErr
		}
		defer func() {
			if writer != nil {
				writer.Discard()
				result.published = append(result.published, writer.Published()...)
			}
		}()

		for _, record := range batch {
			if _, known := skip[record.RowID]; known {
				continue
			}
			if result.records+len(result.skipped) == j.config.BatchSize {
				break
			}
			key := record.GroupKey(j.config.Grouping)
			if writer == nil || key != group {
				if err := finish(); err != nil {
					return err
				}
				if writer, err = j.newWriter(conn, key); err != nil {
					return err
				}
				group = key
			}
			if err := writer.Write(record); err != nil {
				if !recordLocal(err) {
					return fmt.Errorf("archiver: record %d: %w", record.RowID, err)
				}
				j.logger.Error("skipping record that cannot be archived",
					"record", record.RowID,
					"query_id", record.QueryID,
					"error", err,
				)
				result.skipped = append(result.skipped, record.RowID)
				continue
			}
			result.records++
			if published := len(result.published) + len(writer.Published()); published > result.transferred {
				j.runTransferCommand(ctx)
				result.transferred = published
			}
		}
		return finish()
	})
	if err != nil {
		result.records = 0
		result.skipped = nil
	}
	return result, err
}

// recordLocal reports whether err from archive.Writer.Write concerns
// only the record being written. The writer stays usable after such
// errors.
func recordLocal(err error) bool {
	var encodingErr *archive.EncodingError
	return errors.As(err, &encodingErr) || errors.Is(err, archive.ErrRecordTooLarge)
}

func (j *Job) newWriter(conn *sqlite.Conn, group string) (*archive.Writer, error) {
	return archive.NewWriter(archive.WriterConfig{
		Dir:              j.config.Dir,
		Prefix:           archive.GroupPrefix(group),
		HashAlgorithm:    j.config.HashAlgorithm,
		MaxArchiveSize:   j.config.MaxArchiveSize,
		MaxRecordSize:    j.config.MaxRecordSize,
		EntryCompression: j.config.EntryCompression,
		Encryptor:        j.config.Encryptor,
		Logger:           j.logger.With("group", group),
	}, j.store.ArchiveStore(conn, group))
}

// runTransferCommand runs the transfer command, logging its standard
// error on failure.
func (j *Job) runTransferCommand(ctx context.Context) {
	if j.config.TransferCommand == "" {
		return
	}
	j.logger.Info("transferring archives", "command", j.config.TransferCommand)

	var stderr bytes.Buffer
	command := exec.CommandContext(ctx, "/bin/sh", "-c", j.config.TransferCommand)
	command.Dir = j.config.Dir
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		j.logger.Error("archive transfer command failed",
			"command", j.config.TransferCommand,
			"error", err,
			"stderr", strings.TrimSpace(stderr.String()),
		)
	}
}

// Clean deletes archived records older than the retention period and
// returns how many were deleted.
func (j *Job) Clean(ctx context.Context) (int, error) {
	if j.config.KeepRecordsFor <= 0 {
		return 0, fmt.Errorf("archiver: retention period must be positive")
	}
	cutoff := j.config.Clock.Now().Add(-j.config.KeepRecordsFor)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		deleted, err := j.store.PurgeArchived(ctx, cutoff, j.config.PurgeBatchSize)
		total += deleted
		if err != nil {
			return total, fmt.Errorf("archiver: %w", err)
		}
		if deleted < j.config.PurgeBatchSize {
			break
		}
	}
	j.logger.Info("removed archived records", "count", total, "older_than", cutoff)
	return total, nil
}

// checkOutputDir verifies dir is a writable directory.
func checkOutputDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("archiver: output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archiver: output path %s must be a directory", dir)
	}
	probe, err := os.CreateTemp(dir, ".msglog-probe-*")
	if err != nil {
		return fmt.Errorf("archiver: output directory %s must be writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
