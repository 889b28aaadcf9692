// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
)

// Hash algorithm identifiers accepted by [HexDigest]. The identifier
// is written into every linking info header, so these strings are
// part of the archive format.
const (
	SHA256 = "SHA-256"
	SHA384 = "SHA-384"
	SHA512 = "SHA-512"
	BLAKE3 = "BLAKE3-256"
)

// DefaultAlgorithm is used when no algorithm is configured.
const DefaultAlgorithm = SHA512

// ErrUnsupportedAlgorithm is returned for an unknown algorithm
// identifier.
var ErrUnsupportedAlgorithm = errors.New("chain: unsupported hash algorithm")

// Algorithms returns the supported algorithm identifiers.
func Algorithms() []string {
	return []string{SHA256, SHA384, SHA512, BLAKE3}
}

// ValidateAlgorithm reports whether algorithm is supported.
func ValidateAlgorithm(algorithm string) error {
	_, err := newHash(algorithm)
	return err
}

func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
}

// HexDigest hashes data with the named algorithm and returns the
// lowercase hex encoding of the digest.
func HexDigest(algorithm string, data []byte) (string, error) {
	hasher, err := newHash(algorithm)
	if err != nil {
		return "", err
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// NextDigest extends the running digest previous with one record's
// bytes: hash(previous ++ hex(hash(data))). previous is the hex text
// of the prior digest and is empty at the very start of a chain.
func NextDigest(algorithm, previous string, data []byte) (string, error) {
	recordDigest, err := HexDigest(algorithm, data)
	if err != nil {
		return "", err
	}
	return HexDigest(algorithm, []byte(previous+recordDigest))
}
