// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// Package messagelog is the online message log: a SQLite store of
// request and response records waiting to be archived, plus the chain
// heads of the archives already produced from them.
//
// Two tables hold the state:
//
//   - message_records: one row per logged message. Bodies are
//     compressed with [compress] and optionally sealed with
//     XChaCha20-Poly1305 using the query id as associated data.
//   - archive_digests: one row per archive group holding the digest
//     and file name of the most recently published archive.
//
// [MessageRecord] implements archive.Record and [Store.ArchiveStore]
// returns an archive.Store bound to a connection, so an archive writer
// can run entirely inside the caller's transaction:
//
//	err := store.WithConn(ctx, func(conn *sqlite.Conn) (err error) {
//	    endTransaction, err := sqlitex.ImmediateTransaction(conn)
//	    if err != nil {
//	        return err
//	    }
//	    defer endTransaction(&err)
//	    writer, err := archive.NewWriter(config, store.ArchiveStore(conn, group))
//	    ...
//	})
package messagelog
