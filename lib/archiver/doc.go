// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// Package archiver moves records from the online message log into
// hash-chained archive files.
//
// A [Job] runs in passes. [Job.Run] fixes the highest non-archived
// record id at the start of the pass and then archives in batches, each
// batch inside one IMMEDIATE transaction on the message log. Records
// are marked archived and chain heads advanced inside that transaction,
// so a failed batch leaves the database as it was; archive files
// published before the failure stay on disk and are not referenced by
// any chain head.
//
// Records are grouped by member or subsystem when configured. Each
// group has its own chain and its own archive file prefix.
//
// A record the archive writer rejects on its own account, such as one
// rendering above the record size limit, is logged and left
// non-archived; the rest of the batch goes on.
//
// Whenever a write or a committed batch leaves newly published
// archives, the configured transfer command runs through /bin/sh. Its
// failure is logged and never fails the job.
//
// [Job.Clean] deletes archived records older than the retention
// period.
package archiver
