// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite connection pool backing the
// online message log.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool and applies the same
// pragmas to every connection:
//
//   - journal_mode=WAL: readers never block the archiver's write
//     transaction.
//   - synchronous=FULL by default: a committed chain head survives
//     power loss. NORMAL can be selected for scratch databases.
//   - busy_timeout: wait for the write lock instead of failing with
//     SQLITE_BUSY.
//   - foreign_keys=OFF, cache_size=-8192 (8 MB), temp_store=MEMORY.
//
// Callers write SQL directly with sqlitex.Execute and manage
// transactions with sqlitex.ImmediateTransaction:
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:      "/var/lib/msglog/messagelog.db",
//	    Logger:    logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
package sqlitepool
