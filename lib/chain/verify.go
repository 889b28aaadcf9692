// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"errors"
	"fmt"
)

// ErrChainBroken is returned (wrapped with detail) when an archive does
// not continue the chain, or when a record digest does not match its
// linking entry.
var ErrChainBroken = errors.New("chain: broken")

// ContentFunc returns the stored bytes of the record entry name.
type ContentFunc func(name string) ([]byte, error)

// Verifier checks a sequence of archives in chain order. Each archive
// must reference the pointer returned for the archive before it; the
// first archive may reference any pointer unless the verifier was
// created with a known starting point.
type Verifier struct {
	last     Pointer
	anchored bool
	count    int
}

// NewVerifier returns a verifier whose first archive may start from any
// pointer.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// NewVerifierFrom returns a verifier whose first archive must reference
// start. Pass the zero Pointer to require the chain to begin at the
// sentinel.
func NewVerifierFrom(start Pointer) *Verifier {
	return &Verifier{last: start, anchored: true}
}

// Verify checks one archive. fileName is the archive's base name, info
// its parsed linking info block, and content yields the stored bytes of
// each record entry. On success it returns the archive's pointer, which
// the next archive must reference.
func (v *Verifier) Verify(fileName string, info LinkingInfo, content ContentFunc) (Pointer, error) {
	if (v.anchored || v.count > 0) && info.Previous != v.last {
		return Pointer{}, fmt.Errorf("%w: %s references %s, expected %s",
			ErrChainBroken, fileName, info.Previous, v.last)
	}

	digest := info.Previous.Digest()
	for _, entry := range info.Entries {
		data, err := content(entry.FileName)
		if err != nil {
			return Pointer{}, fmt.Errorf("chain: reading %s in %s: %w", entry.FileName, fileName, err)
		}
		next, err := NextDigest(info.Algorithm, digest, data)
		if err != nil {
			return Pointer{}, err
		}
		if next != entry.Digest {
			return Pointer{}, fmt.Errorf("%w: %s in %s has digest %s, linking info says %s",
				ErrChainBroken, entry.FileName, fileName, next, entry.Digest)
		}
		digest = next
	}

	v.last = info.Last(fileName)
	v.count++
	return v.last, nil
}

// Last returns the pointer of the most recently verified archive.
func (v *Verifier) Last() Pointer { return v.last }

// Count returns the number of archives verified so far.
func (v *Verifier) Count() int { return v.count }
