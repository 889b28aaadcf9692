// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package messagelog

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/xchange-foundation/msglog/lib/archive"
	"github.com/xchange-foundation/msglog/lib/chain"
)

// ArchiveStore returns an archive.Store for one archive group that
// executes on conn. The caller owns the connection and any transaction
// on it; nothing is committed by the returned store.
func (s *Store) ArchiveStore(conn *sqlite.Conn, group string) archive.Store {
	return &archiveStore{conn: conn, group: group}
}

type archiveStore struct {
	conn  *sqlite.Conn
	group string
}

func (a *archiveStore) LoadLast() (chain.Pointer, error) {
	var pointer chain.Pointer
	err := sqlitex.Execute(a.conn, "SELECT digest, filename FROM archive_digests WHERE group_name = ?", &sqlitex.ExecOptions{
		Args: []any{a.group},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			pointer = chain.NewPointer(stmt.ColumnText(0), stmt.ColumnText(1))
			return nil
		},
	})
	if err != nil {
		return chain.Pointer{}, fmt.Errorf("messagelog: loading chain head for group %q: %w", a.group, err)
	}
	return pointer, nil
}

func (a *archiveStore) MarkRecordArchived(record archive.Record) error {
	messageRecord, ok := record.(*MessageRecord)
	if !ok {
		return fmt.Errorf("messagelog: cannot mark %T archived", record)
	}
	err := sqlitex.Execute(a.conn, "UPDATE message_records SET archived = 1 WHERE id = ? AND archived = 0", &sqlitex.ExecOptions{
		Args: []any{messageRecord.RowID},
	})
	if err != nil {
		return fmt.Errorf("messagelog: marking record %d archived: %w", messageRecord.RowID, err)
	}
	if a.conn.Changes() != 1 {
		return fmt.Errorf("messagelog: record %d is missing or already archived", messageRecord.RowID)
	}
	messageRecord.Archived = true
	return nil
}

func (a *archiveStore) MarkArchiveCreated(pointer chain.Pointer) error {
	err := sqlitex.Execute(a.conn, `INSERT INTO archive_digests (group_name, digest, filename)
		VALUES (?, ?, ?)
		ON CONFLICT (group_name) DO UPDATE SET digest = excluded.digest, filename = excluded.filename`, &sqlitex.ExecOptions{
		Args: []any{a.group, pointer.Digest(), pointer.FileName()},
	})
	if err != nil {
		return fmt.Errorf("messagelog: storing chain head for group %q: %w", a.group, err)
	}
	return nil
}
