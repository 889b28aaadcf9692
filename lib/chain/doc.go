// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// Package chain computes the hash chain that links successive archive
// files together.
//
// Every record added to the archive being built extends a running
// digest:
//
//	h      = hex(hash(recordBytes))
//	digest = hex(hash(previousDigest ++ h))
//
// where previousDigest is the hex text of the digest before the record
// (the previous archive's final digest for the first record of a
// batch). The per-record (digest, entry name) pairs are serialized into
// a linking info block that is embedded in the archive file:
//
//	<prevDigest|-> <prevFileName|-> <algorithm>
//	<digest> <entryName>
//	<digest> <entryName>
//	...
//
// A verifier holding the archive files can recompute every digest and
// confirm that each archive's header references the final digest of
// the archive before it. Deleting or editing an archive that is
// already part of the chain breaks the link of its successor.
//
// # Authoritative state
//
// The chain head (a [Pointer] naming the most recently published
// archive and its final digest) lives in a persistent store, never in
// memory. [Builder] loads it at construction and reloads it after each
// confirmed commit. Between staging an archive and confirming its
// publication the builder rewinds to the previously loaded pointer, so
// a crash anywhere in that window leaves the store pointing at the
// last archive that actually exists on disk.
package chain
