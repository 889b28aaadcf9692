// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress compresses message bodies stored in the online log.
//
// The tag of the algorithm actually used is stored next to each body.
// Bodies that do not shrink are stored with [None] regardless of the
// requested algorithm, so readers must always honour the stored tag.
package compress

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies a compression algorithm. Tags are persisted; the
// values must not change.
type Tag uint8

const (
	// None stores data as is.
	None Tag = 0

	// LZ4 is LZ4 block compression: fast, modest ratio.
	LZ4 Tag = 1

	// Zstd is zstd at the default level: better ratio for the XML and
	// JSON payloads that dominate message bodies.
	Zstd Tag = 2
)

func (tag Tag) String() string {
	switch tag {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseTag parses a tag name. The empty string is None.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("compress: unknown algorithm %q", name)
	}
}

var errIncompressible = errors.New("compress: data is incompressible")

// Compressor holds reusable zstd state. It is safe for concurrent use.
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New returns a Compressor. Close releases its resources.
func New() (*Compressor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("compress: creating zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("compress: creating zstd decoder: %w", err)
	}
	return &Compressor{encoder: encoder, decoder: decoder}, nil
}

// Close releases the zstd encoder and decoder.
func (c *Compressor) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

// Compress compresses data with tag and returns the stored bytes with
// the tag that applies to them. Incompressible data comes back
// unchanged, tagged None.
func (c *Compressor) Compress(data []byte, tag Tag) ([]byte, Tag, error) {
	var (
		compressed []byte
		err        error
	)
	switch tag {
	case None:
		return data, None, nil
	case LZ4:
		compressed, err = compressLZ4(data)
	case Zstd:
		compressed = c.encoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			err = errIncompressible
		}
	default:
		return nil, 0, fmt.Errorf("compress: unsupported tag %d", uint8(tag))
	}
	if errors.Is(err, errIncompressible) {
		return data, None, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, tag, nil
}

// Decompress reverses Compress. size is the uncompressed length and is
// checked.
func (c *Compressor) Decompress(stored []byte, tag Tag, size int) ([]byte, error) {
	switch tag {
	case None:
		if len(stored) != size {
			return nil, fmt.Errorf("compress: stored size %d does not match expected %d", len(stored), size)
		}
		return stored, nil
	case LZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(stored, destination)
		if err != nil {
			return nil, fmt.Errorf("compress: lz4: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("compress: lz4 produced %d bytes, expected %d", read, size)
		}
		return destination, nil
	case Zstd:
		destination, err := c.decoder.DecodeAll(stored, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("compress: zstd: %w", err)
		}
		if len(destination) != size {
			return nil, fmt.Errorf("compress: zstd produced %d bytes, expected %d", len(destination), size)
		}
		return destination, nil
	default:
		return nil, fmt.Errorf("compress: unsupported tag %d", uint8(tag))
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("compress: lz4: %w", err)
	}
	// CompressBlock reports 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}
