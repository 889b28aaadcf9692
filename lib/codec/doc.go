// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR codec used for per-record archive
// containers.
//
// A [Codec] is constructed explicitly with [New] and passed to the
// code that needs it; there is no package-level encoder state. Encoding
// follows RFC 8949 Core Deterministic Encoding (sorted map keys,
// shortest integer forms, no indefinite-length items), so the same
// logical value always produces the same bytes. The archive chain
// hashes these bytes.
//
// Structs use cbor struct tags with string keys:
//
//	type document struct {
//	    QueryID string `cbor:"query_id"`
//	    Body    []byte `cbor:"body"`
//	}
//
// Types implementing encoding.TextMarshaler encode as CBOR text
// strings.
package codec
