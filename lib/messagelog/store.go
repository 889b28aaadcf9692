// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package messagelog

import (
	"context"
	"crypto/cipher"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/xchange-foundation/msglog/lib/clock"
	"github.com/xchange-foundation/msglog/lib/codec"
	"github.com/xchange-foundation/msglog/lib/compress"
	"github.com/xchange-foundation/msglog/lib/sqlitepool"
)

// ErrNotFound is returned by Get for an unknown record id.
var ErrNotFound = errors.New("messagelog: record not found")

const schema = `
CREATE TABLE IF NOT EXISTS message_records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	query_id    TEXT    NOT NULL,
	member      TEXT    NOT NULL,
	subsystem   TEXT    NOT NULL DEFAULT '',
	response    INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	compression INTEGER NOT NULL,
	encrypted   INTEGER NOT NULL,
	body        BLOB,
	body_size   INTEGER NOT NULL,
	signature   BLOB,
	archived    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS message_records_pending
	ON message_records (archived, member, subsystem, id);
CREATE INDEX IF NOT EXISTS message_records_created
	ON message_records (archived, created_at);
CREATE TABLE IF NOT EXISTS archive_digests (
	group_name TEXT PRIMARY KEY,
	digest     TEXT NOT NULL,
	filename   TEXT NOT NULL
);
`

const recordColumns = "id, query_id, member, subsystem, response, created_at, " +
	"compression, encrypted, body, body_size, signature, archived"

// Config holds the parameters for opening a Store. Path is required.
type Config struct {
	// Path is the SQLite database file. The parent directory must
	// exist.
	Path string

	// PoolSize is the number of pooled connections.
	PoolSize int

	// Synchronous is passed to sqlitepool.
	Synchronous string

	// Compression is applied to bodies on insert.
	Compression compress.Tag

	// EncryptionKey enables body encryption on insert and is required
	// to read encrypted bodies. It must be KeySize bytes.
	EncryptionKey []byte

	// Codec renders archive containers. Defaults to codec.New().
	Codec *codec.Codec

	// Clock stamps records inserted without CreatedAt. Defaults to
	// the real clock.
	Clock clock.Clock

	// Logger receives operational messages. Nil discards them.
	Logger *slog.Logger
}

// Store is the online message log. It is safe for concurrent use.
type Store struct {
	pool        *sqlitepool.Pool
	compressor  *compress.Compressor
	compression compress.Tag
	aead        cipher.AEAD
	codec       *codec.Codec
	clock       clock.Clock
	logger      *slog.Logger
}

// Open opens or creates the message log at cfg.Path.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.EncryptionKey != nil && len(cfg.EncryptionKey) != KeySize {
		return nil, fmt.Errorf("messagelog: encryption key is %d bytes, want %d", len(cfg.EncryptionKey), KeySize)
	}
	aead, err := newBodyCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	recordCodec := cfg.Codec
	if recordCodec == nil {
		if recordCodec, err = codec.New(); err != nil {
			return nil, fmt.Errorf("messagelog: %w", err)
		}
	}
	compressor, err := compress.New()
	if err != nil {
		return nil, fmt.Errorf("messagelog: %w", err)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:        cfg.Path,
		PoolSize:    cfg.PoolSize,
		Synchronous: cfg.Synchronous,
		Logger:      logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		compressor.Close()
		return nil, fmt.Errorf("messagelog: %w", err)
	}

	return &Store{
		pool:        pool,
		compressor:  compressor,
		compression: cfg.Compression,
		aead:        aead,
		codec:       recordCodec,
		clock:       cfg.Clock,
		logger:      logger,
	}, nil
}

// Close closes the connection pool. It blocks until borrowed
// connections are returned.
func (s *Store) Close() error {
	err := s.pool.Close()
	s.compressor.Close()
	return err
}

// WithConn runs fn on a pooled connection. Callers use it to run
// archiving inside their own transaction.
func (s *Store) WithConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	return s.pool.WithConn(ctx, fn)
}

// Insert logs a message and returns its row id.
func (s *Store) Insert(ctx context.Context, record NewRecord) (int64, error) {
	if record.Member == "" {
		return 0, fmt.Errorf("messagelog: insert: member is required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}

	stored, tag, err := s.compressor.Compress(record.Body, s.compression)
	if err != nil {
		return 0, fmt.Errorf("messagelog: insert: %w", err)
	}
	encrypted := false
	if s.aead != nil {
		if stored, err = sealBody(s.aead, stored, record.QueryID); err != nil {
			return 0, err
		}
		encrypted = true
	}
	var signature any
	if len(record.Signature) > 0 {
		signature = record.Signature
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("messagelog: insert: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO message_records
		(query_id, member, subsystem, response, created_at,
		 compression, encrypted, body, body_size, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			record.QueryID,
			record.Member,
			record.Subsystem,
			boolInt(record.Response),
			createdAt.UnixMilli(),
			int(tag),
			boolInt(encrypted),
			stored,
			len(record.Body),
			signature,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("messagelog: insert: %w", err)
	}
	return conn.LastInsertRowID(), nil
}

// Get returns one record with its body decoded.
func (s *Store) Get(ctx context.Context, id int64) (*MessageRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("messagelog: get: %w", err)
	}
	defer s.pool.Put(conn)

	var record *MessageRecord
	err = sqlitex.Execute(conn, "SELECT "+recordColumns+" FROM message_records WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			scanned, scanErr := s.scanRecord(stmt)
			record = scanned
			return scanErr
		},
	})
	if err != nil {
		return nil, fmt.Errorf("messagelog: get %d: %w", id, err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return record, nil
}

// CountRecords returns the number of records with the given archived
// flag.
func (s *Store) CountRecords(ctx context.Context, archived bool) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("messagelog: count: %w", err)
	}
	defer s.pool.Put(conn)

	var count int64
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM message_records WHERE archived = ?", &sqlitex.ExecOptions{
		Args: []any{boolInt(archived)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("messagelog: count: %w", err)
	}
	return count, nil
}

// MaxNonArchivedID returns the highest id not yet archived, or 0 if
// every record is archived. Archiving passes stop at this id so that
// records logged during the pass wait for the next one.
func (s *Store) MaxNonArchivedID(ctx context.Context) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("messagelog: max id: %w", err)
	}
	defer s.pool.Put(conn)

	var maxID int64
	err = sqlitex.Execute(conn, "SELECT COALESCE(MAX(id), 0) FROM message_records WHERE archived = 0", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			maxID = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("messagelog: max id: %w", err)
	}
	return maxID, nil
}

// NonArchived returns up to limit non-archived records with id at most
// maxID, ordered by member, subsystem and id so records of one archive
// group are contiguous. It runs on conn so it can share the caller's
// transaction.
func (s *Store) NonArchived(conn *sqlite.Conn, maxID int64, limit int) ([]*MessageRecord, error) {
	var records []*MessageRecord
	err := sqlitex.Execute(conn, "SELECT "+recordColumns+` FROM message_records
		WHERE archived = 0 AND id <= ?
		ORDER BY member, subsystem, id
		LIMIT ?`, &sqlitex.ExecOptions{
		Args: []any{maxID, limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record, err := s.scanRecord(stmt)
			if err != nil {
				return err
			}
			records = append(records, record)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("messagelog: non-archived records: %w", err)
	}
	return records, nil
}

// PurgeArchived deletes up to limit archived records created before
// olderThan and returns how many were deleted.
func (s *Store) PurgeArchived(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("messagelog: purge: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM message_records WHERE id IN (
		SELECT id FROM message_records
		WHERE archived = 1 AND created_at < ?
		ORDER BY id LIMIT ?)`, &sqlitex.ExecOptions{
		Args: []any{olderThan.UnixMilli(), limit},
	})
	if err != nil {
		return 0, fmt.Errorf("messagelog: purge: %w", err)
	}
	deleted := conn.Changes()
	if deleted > 0 {
		s.logger.Debug("purged archived records", "count", deleted, "older_than", olderThan)
	}
	return deleted, nil
}

func (s *Store) scanRecord(stmt *sqlite.Stmt) (*MessageRecord, error) {
	// Columns: id(0), query_id(1), member(2), subsystem(3), response(4),
	// created_at(5), compression(6), encrypted(7), body(8),
	// body_size(9), signature(10), archived(11)
	record := &MessageRecord{
		RowID:     stmt.ColumnInt64(0),
		QueryID:   stmt.ColumnText(1),
		Member:    stmt.ColumnText(2),
		Subsystem: stmt.ColumnText(3),
		Response:  stmt.ColumnInt64(4) != 0,
		CreatedAt: time.UnixMilli(stmt.ColumnInt64(5)).UTC(),
		Archived:  stmt.ColumnInt64(11) != 0,
		codec:     s.codec,
	}

	stored := columnBlob(stmt, 8)
	if stmt.ColumnInt64(7) != 0 {
		plaintext, err := openBody(s.aead, stored, record.QueryID)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", record.RowID, err)
		}
		stored = plaintext
	}
	body, err := s.compressor.Decompress(stored, compress.Tag(stmt.ColumnInt64(6)), int(stmt.ColumnInt64(9)))
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", record.RowID, err)
	}
	record.Body = body

	if !stmt.ColumnIsNull(10) {
		record.Signature = columnBlob(stmt, 10)
	}
	return record, nil
}

func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	data := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, data)
	return data
}

func boolInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
