// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive batches signed message records into immutable,
// hash-chained archive files.
//
// A [Writer] owns one output directory and one chain. Records are fed
// one at a time through [Writer.Write]; each is rendered into a
// per-record container, appended to the in-memory candidate archive
// held by a [Cache], and linked into the running hash chain (see
// package chain). When the candidate archive grows past the configured
// maximum size the writer rotates:
//
//  1. the candidate zip (record entries plus a trailing "linkinginfo"
//     entry) is written to a hidden staging file in the output
//     directory and fsynced,
//  2. the chain builder is told the archive is staged,
//  3. the staging file is renamed to a unique final name of the form
//     <prefix>-<start>-<end>-<suffix>.zip without ever replacing an
//     existing file,
//  4. the new chain head is recorded through the [Store],
//  5. the chain builder reloads the head from the store.
//
// [Writer.Close] flushes a final, possibly small, archive and removes
// any staging files left behind on every exit path.
//
// # Single writer
//
// The protocol assumes exactly one Writer publishing into a given
// output directory and chain at a time. There is no internal locking:
// the unique-name check and the read-modify-write of the chain head
// are only correct for a single writer. Deployments serialize archiver
// runs externally (one scheduled process; see package lockfile for an
// opt-in guard).
//
// # Ordering of store calls
//
// Write marks each record archived in the store as soon as the record
// has been accepted into the candidate archive, before that archive is
// published. MarkArchiveCreated is only called after the atomic
// rename. A store that needs "archived" flags to become visible only
// together with the chain head must run the writer's whole lifetime
// inside one transaction; lib/messagelog and lib/archiver do exactly
// that.
package archive
