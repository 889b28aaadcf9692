// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package chain

// Pointer identifies the end of the hash chain up to and including one
// archive file: the final running digest of that archive and its file
// name. The zero Pointer is the sentinel meaning no archive has been
// published yet.
//
// Pointer is a value type with unexported fields; once constructed it
// cannot be modified.
type Pointer struct {
	digest   string
	fileName string
}

// NewPointer returns the pointer for an archive file.
func NewPointer(digest, fileName string) Pointer {
	return Pointer{digest: digest, fileName: fileName}
}

// Digest returns the final running digest of the archive.
func (p Pointer) Digest() string { return p.digest }

// FileName returns the archive file name (base name, no directory).
func (p Pointer) FileName() string { return p.fileName }

// IsEmpty reports whether p is the sentinel "no prior archive" value.
func (p Pointer) IsEmpty() bool { return p.digest == "" && p.fileName == "" }

func (p Pointer) String() string {
	return dashIfEmpty(p.digest) + " " + dashIfEmpty(p.fileName)
}

// Entry is the linking entry for one record inside the batch being
// built: the running digest after the record and the record's entry
// name in the archive container. Structurally identical to [Pointer],
// but an Entry names a record inside the current batch while a Pointer
// names a whole committed archive file.
type Entry struct {
	Digest   string
	FileName string
}

func dashIfEmpty(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func emptyIfDash(value string) string {
	if value == "-" {
		return ""
	}
	return value
}
