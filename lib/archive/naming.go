// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultPrefix is the archive file name prefix for an ungrouped
	// chain.
	DefaultPrefix = "mlog"

	// DefaultEntryExtension is appended to record entry names.
	DefaultEntryExtension = ".cbor"

	// ArchiveExtension is the extension of a plain archive file.
	ArchiveExtension = ".zip"

	// TimestampLayout formats the start and end times in archive file
	// names. Times are UTC.
	TimestampLayout = "20060102150405"

	// SuffixLength is the length of the random part of generated names.
	SuffixLength = 10

	// maxNameAttempts bounds both the entry name and the file name
	// retry loops.
	maxNameAttempts = 1000

	// maxIDLength bounds the record ID part of an entry name.
	maxIDLength = 64
)

// SuffixFunc returns a random name suffix.
type SuffixFunc func() (string, error)

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz234567"

// RandomSuffix returns SuffixLength random characters from [a-z2-7].
func RandomSuffix() (string, error) {
	var raw [SuffixLength]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("archive: reading random suffix: %w", err)
	}
	for index, b := range raw {
		raw[index] = suffixAlphabet[b&31]
	}
	return string(raw[:]), nil
}

// GroupPrefix returns the file name prefix for the chain of group. The
// empty group is the ungrouped chain. Distinct groups always get
// distinct prefixes: bytes outside [A-Za-z0-9.], '_' included, are
// written as '_' followed by two lowercase hex digits.
func GroupPrefix(group string) string {
	if group == "" {
		return DefaultPrefix
	}
	return DefaultPrefix + "@" + escapeGroup(group)
}

const hexDigits = "0123456789abcdef"

func escapeGroup(group string) string {
	var builder strings.Builder
	builder.Grow(len(group))
	for index := 0; index < len(group); index++ {
		c := group[index]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.':
			builder.WriteByte(c)
		default:
			builder.WriteByte('_')
			builder.WriteByte(hexDigits[c>>4])
			builder.WriteByte(hexDigits[c&0x0f])
		}
	}
	return builder.String()
}

// entryName returns the container entry name for a record.
func entryName(id string, response bool, suffix, extension string) string {
	direction := "request"
	if response {
		direction = "response"
	}
	return sanitize(id, maxIDLength) + "-" + direction + "-" + suffix + extension
}

// sanitize replaces every byte outside [A-Za-z0-9._] with '_' and
// truncates the result to limit bytes when limit is positive. The empty
// string becomes "_".
func sanitize(value string, limit int) string {
	if limit > 0 && len(value) > limit {
		value = value[:limit]
	}
	if value == "" {
		return "_"
	}
	var builder strings.Builder
	builder.Grow(len(value))
	for index := 0; index < len(value); index++ {
		c := value[index]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '_':
			builder.WriteByte(c)
		default:
			builder.WriteByte('_')
		}
	}
	return builder.String()
}

// FileName is the parsed form of an archive file name:
// <prefix>-<start>-<end>-<suffix>.zip, with ".age" appended when the
// archive is encrypted.
type FileName struct {
	Prefix     string
	Start, End time.Time
	Suffix     string

	// Extension follows ".zip", e.g. ".age". Empty for plain archives.
	Extension string
}

func (f FileName) String() string {
	return f.Prefix + "-" + f.Start.UTC().Format(TimestampLayout) + "-" +
		f.End.UTC().Format(TimestampLayout) + "-" + f.Suffix + ArchiveExtension + f.Extension
}

// Encrypted reports whether the name carries an encryption extension.
func (f FileName) Encrypted() bool { return f.Extension != "" }

var fileNamePattern = regexp.MustCompile(`^(.+)-(\d{14})-(\d{14})-([a-z0-9]+)\.zip(\.[a-z0-9]+)?$`)

// ParseFileName parses a base name produced by a Writer.
func ParseFileName(name string) (FileName, error) {
	match := fileNamePattern.FindStringSubmatch(name)
	if match == nil {
		return FileName{}, fmt.Errorf("archive: %q is not an archive file name", name)
	}
	start, err := time.Parse(TimestampLayout, match[2])
	if err != nil {
		return FileName{}, fmt.Errorf("archive: %q has an invalid start time: %w", name, err)
	}
	end, err := time.Parse(TimestampLayout, match[3])
	if err != nil {
		return FileName{}, fmt.Errorf("archive: %q has an invalid end time: %w", name, err)
	}
	return FileName{
		Prefix:    match[1],
		Start:     start,
		End:       end,
		Suffix:    match[4],
		Extension: match[5],
	}, nil
}
