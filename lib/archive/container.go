// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// LinkingInfoName is the name of the container entry holding the
// linking info block. It is always the last entry.
const LinkingInfoName = "linkinginfo"

// EntryCompression selects how record entries are stored in the zip
// container. Values are zip method numbers.
type EntryCompression uint16

const (
	// CompressionStore stores entries uncompressed (zip method 0).
	CompressionStore EntryCompression = EntryCompression(zip.Store)

	// CompressionDeflate compresses entries with DEFLATE (zip method 8).
	// This is the default and readable by any zip tool.
	CompressionDeflate EntryCompression = EntryCompression(zip.Deflate)

	// CompressionZstd compresses entries with zstd (zip method 93, the
	// WinZip assignment).
	CompressionZstd EntryCompression = EntryCompression(zstd.ZipMethodWinZip)
)

// ParseEntryCompression parses the configuration name of a compression
// method: "store", "deflate", or "zstd". The empty string selects
// deflate.
func ParseEntryCompression(name string) (EntryCompression, error) {
	switch name {
	case "", "deflate":
		return CompressionDeflate, nil
	case "store", "none":
		return CompressionStore, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("archive: unknown entry compression %q", name)
	}
}

func (c EntryCompression) String() string {
	switch c {
	case CompressionStore:
		return "store"
	case CompressionDeflate:
		return "deflate"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("method(%d)", uint16(c))
	}
}

// Fixed zip structure sizes, without zip64 or extra fields. Every
// entry costs one local file header and one central directory header,
// each followed by the entry name.
const (
	localHeaderSize     = 30
	directoryHeaderSize = 46
	endOfDirectorySize  = 22
	entryOverhead       = localHeaderSize + directoryHeaderSize

	// zipVersion is "2.0", the version needed for deflate.
	zipVersion = 20

	// dosDate is 1980-01-01, the zip epoch. All entries carry it so
	// the container bytes do not depend on wall-clock time.
	dosDate = 1<<5 | 1
)

// Limits that keep every archive inside the classic (non-zip64) format.
const (
	// maxRecords leaves room for the linking info entry below the
	// 16-bit entry count.
	maxRecords = 1<<16 - 3

	// MaxRecordSizeLimit bounds a single record's rendered container.
	MaxRecordSizeLimit = 1 << 30

	// MaxArchiveSizeLimit is the largest accepted maximum archive size.
	MaxArchiveSizeLimit = 1 << 30
)

// containerEntry is one record entry, compressed once when the record
// is added.
type containerEntry struct {
	name             string
	method           uint16
	crc32            uint32
	uncompressedSize uint64
	data             []byte
}

func (e *containerEntry) size() int64 {
	return int64(entryOverhead + 2*len(e.name) + len(e.data))
}

func (e *containerEntry) header() *zip.FileHeader {
	return &zip.FileHeader{
		Name:               e.name,
		Method:             e.method,
		CreatorVersion:     zipVersion,
		ReaderVersion:      zipVersion,
		ModifiedDate:       dosDate,
		CRC32:              e.crc32,
		CompressedSize64:   uint64(len(e.data)),
		UncompressedSize64: e.uncompressedSize,
	}
}

// containerSize returns the exact byte length of a zip holding entries
// plus a stored linking info entry of linkSize bytes.
func containerSize(entriesSize int64, linkSize int) int64 {
	return entriesSize + entryOverhead + 2*int64(len(LinkingInfoName)) + int64(linkSize) + endOfDirectorySize
}

// writeContainer writes the zip container: entries in order, then the
// linking info block stored uncompressed.
func writeContainer(w io.Writer, entries []containerEntry, linkingInfo []byte) error {
	zw := zip.NewWriter(w)
	for index := range entries {
		entry := &entries[index]
		fw, err := zw.CreateRaw(entry.header())
		if err != nil {
			return fmt.Errorf("archive: writing entry %s: %w", entry.name, err)
		}
		if _, err := fw.Write(entry.data); err != nil {
			return fmt.Errorf("archive: writing entry %s: %w", entry.name, err)
		}
	}
	link := containerEntry{
		name:             LinkingInfoName,
		method:           zip.Store,
		crc32:            crc32.ChecksumIEEE(linkingInfo),
		uncompressedSize: uint64(len(linkingInfo)),
		data:             linkingInfo,
	}
	fw, err := zw.CreateRaw(link.header())
	if err != nil {
		return fmt.Errorf("archive: writing %s: %w", LinkingInfoName, err)
	}
	if _, err := fw.Write(linkingInfo); err != nil {
		return fmt.Errorf("archive: writing %s: %w", LinkingInfoName, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("archive: finishing container: %w", err)
	}
	return nil
}

// entryCompressor compresses record containers for one cache. It owns
// reusable encoder state and is not safe for concurrent use.
type entryCompressor struct {
	method EntryCompression
	buffer bytes.Buffer
	flate  *flate.Writer
	zstd   *zstd.Encoder
}

func newEntryCompressor(method EntryCompression) (*entryCompressor, error) {
	compressor := &entryCompressor{method: method}
	switch method {
	case CompressionStore:
	case CompressionDeflate:
		writer, err := flate.NewWriter(&compressor.buffer, flate.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("archive: creating deflate writer: %w", err)
		}
		compressor.flate = writer
	case CompressionZstd:
		encoder, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("archive: creating zstd encoder: %w", err)
		}
		compressor.zstd = encoder
	default:
		return nil, fmt.Errorf("archive: unsupported entry compression %s", method)
	}
	return compressor, nil
}

// compress builds the container entry for data. Data that does not
// shrink is stored.
func (c *entryCompressor) compress(name string, data []byte) (containerEntry, error) {
	entry := containerEntry{
		name:             name,
		method:           zip.Store,
		crc32:            crc32.ChecksumIEEE(data),
		uncompressedSize: uint64(len(data)),
	}

	var compressed []byte
	switch c.method {
	case CompressionDeflate:
		c.buffer.Reset()
		c.flate.Reset(&c.buffer)
		if _, err := c.flate.Write(data); err != nil {
			return containerEntry{}, fmt.Errorf("archive: deflating %s: %w", name, err)
		}
		if err := c.flate.Close(); err != nil {
			return containerEntry{}, fmt.Errorf("archive: deflating %s: %w", name, err)
		}
		compressed = c.buffer.Bytes()
	case CompressionZstd:
		compressed = c.zstd.EncodeAll(data, nil)
	}

	if compressed != nil && len(compressed) < len(data) {
		entry.method = uint16(c.method)
		entry.data = bytes.Clone(compressed)
		return entry, nil
	}
	entry.data = bytes.Clone(data)
	return entry, nil
}

func (c *entryCompressor) close() {
	if c.zstd != nil {
		c.zstd.Close()
		c.zstd = nil
	}
}

// newZipReader opens a container with decompressors for every
// EntryCompression registered.
func newZipReader(r io.ReaderAt, size int64) (*zip.Reader, error) {
	reader, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	reader.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
	reader.RegisterDecompressor(uint16(zstd.ZipMethodWinZip), zstd.ZipDecompressor())
	return reader, nil
}
