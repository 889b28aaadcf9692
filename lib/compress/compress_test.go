// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func newCompressor(t *testing.T) *Compressor {
	t.Helper()
	compressor, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(compressor.Close)
	return compressor
}

func TestRoundtrip(t *testing.T) {
	compressor := newCompressor(t)
	body := []byte(strings.Repeat("<SOAP-ENV:Body><getRandom/></SOAP-ENV:Body>", 50))

	for _, tag := range []Tag{None, LZ4, Zstd} {
		t.Run(tag.String(), func(t *testing.T) {
			stored, used, err := compressor.Compress(body, tag)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if used != tag {
				t.Errorf("used tag %v, want %v", used, tag)
			}
			if tag != None && len(stored) >= len(body) {
				t.Errorf("stored %d bytes for %d byte body", len(stored), len(body))
			}
			restored, err := compressor.Decompress(stored, used, len(body))
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(restored, body) {
				t.Error("roundtrip mismatch")
			}
		})
	}
}

func TestIncompressibleFallsBackToNone(t *testing.T) {
	compressor := newCompressor(t)
	random := make([]byte, 512)
	if _, err := rand.Read(random); err != nil {
		t.Fatal(err)
	}
	for _, tag := range []Tag{LZ4, Zstd} {
		stored, used, err := compressor.Compress(random, tag)
		if err != nil {
			t.Fatalf("Compress(%v): %v", tag, err)
		}
		if used != None || !bytes.Equal(stored, random) {
			t.Errorf("Compress(%v) used %v", tag, used)
		}
	}
}

func TestDecompressChecksSize(t *testing.T) {
	compressor := newCompressor(t)
	body := bytes.Repeat([]byte("x"), 1000)
	stored, used, err := compressor.Compress(body, Zstd)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := compressor.Decompress(stored, used, 999); err == nil {
		t.Error("Decompress accepted a wrong size")
	}
	if _, err := compressor.Decompress([]byte("abc"), None, 4); err == nil {
		t.Error("Decompress(None) accepted a wrong size")
	}
}

func TestParseTag(t *testing.T) {
	for _, tag := range []Tag{None, LZ4, Zstd} {
		parsed, err := ParseTag(tag.String())
		if err != nil || parsed != tag {
			t.Errorf("ParseTag(%q) = %v, %v", tag.String(), parsed, err)
		}
	}
	if _, err := ParseTag("brotli"); err == nil {
		t.Error("ParseTag accepted brotli")
	}
}
