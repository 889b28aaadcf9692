// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/xchange-foundation/msglog/lib/chain"
)

// ErrEncrypted is returned when an encrypted archive is opened for
// reading. Decryption is left to external tooling.
var ErrEncrypted = errors.New("archive: archive is encrypted")

// Archive is an archive file opened for reading.
type Archive struct {
	Name        string
	LinkingInfo chain.LinkingInfo

	file   *os.File
	reader *zip.Reader
	files  map[string]*zip.File
}

// OpenArchive opens the archive at path and parses its linking info.
func OpenArchive(path string) (*Archive, error) {
	name := filepath.Base(path)
	if parsed, err := ParseFileName(name); err == nil && parsed.Encrypted() {
		return nil, fmt.Errorf("%w: %s", ErrEncrypted, name)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("archive: %w", err)
	}
	reader, err := newZipReader(file, info.Size())
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("archive: reading %s: %w", name, err)
	}

	archive := &Archive{
		Name:   name,
		file:   file,
		reader: reader,
		files:  make(map[string]*zip.File, len(reader.File)),
	}
	for _, entry := range reader.File {
		archive.files[entry.Name] = entry
	}
	if len(reader.File) == 0 || reader.File[len(reader.File)-1].Name != LinkingInfoName {
		file.Close()
		return nil, fmt.Errorf("archive: %s: last entry is not %s", name, LinkingInfoName)
	}
	data, err := archive.Entry(LinkingInfoName)
	if err != nil {
		file.Close()
		return nil, err
	}
	archive.LinkingInfo, err = chain.ParseLinkingInfo(data)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("archive: %s: %w", name, err)
	}
	return archive, nil
}

// Entry returns the decompressed content of the named entry.
func (a *Archive) Entry(name string) ([]byte, error) {
	entry, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("archive: %s has no entry %s", a.Name, name)
	}
	reader, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("archive: opening %s in %s: %w", name, a.Name, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("archive: reading %s in %s: %w", name, a.Name, err)
	}
	return data, nil
}

// RecordNames returns the record entry names in container order.
func (a *Archive) RecordNames() []string {
	names := make([]string, 0, len(a.reader.File)-1)
	for _, entry := range a.reader.File[:len(a.reader.File)-1] {
		names = append(names, entry.Name)
	}
	return names
}

// Close closes the underlying file.
func (a *Archive) Close() error {
	return a.file.Close()
}

// Verify checks the archive against verifier and returns its pointer.
// Besides the digests, every record entry must be listed in the linking
// info in container order.
func (a *Archive) Verify(verifier *chain.Verifier) (chain.Pointer, error) {
	names := a.RecordNames()
	if len(names) != len(a.LinkingInfo.Entries) {
		return chain.Pointer{}, fmt.Errorf("%w: %s has %d records but %d linking entries",
			chain.ErrChainBroken, a.Name, len(names), len(a.LinkingInfo.Entries))
	}
	for index, entry := range a.LinkingInfo.Entries {
		if entry.FileName != names[index] {
			return chain.Pointer{}, fmt.Errorf("%w: %s entry %d is %s, linking info lists %s",
				chain.ErrChainBroken, a.Name, index, names[index], entry.FileName)
		}
	}
	return verifier.Verify(a.Name, a.LinkingInfo, a.Entry)
}

// VerifyFiles verifies archives of a single chain. The paths may be
// given in any order; they are ordered by following the linking info
// headers. It returns the final pointer.
func VerifyFiles(paths []string) (chain.Pointer, error) {
	ordered, err := OrderArchives(paths)
	if err != nil {
		return chain.Pointer{}, err
	}
	verifier := chain.NewVerifier()
	for _, path := range ordered {
		archive, err := OpenArchive(path)
		if err != nil {
			return chain.Pointer{}, err
		}
		_, err = archive.Verify(verifier)
		archive.Close()
		if err != nil {
			return chain.Pointer{}, err
		}
	}
	return verifier.Last(), nil
}

// VerifyDir verifies every chain in dir. Archives are grouped into
// chains by file name prefix. The result maps each prefix to the
// chain's final pointer. Encrypted archives are skipped.
func VerifyDir(dir string) (map[string]chain.Pointer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	chains := make(map[string][]string)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		parsed, err := ParseFileName(entry.Name())
		if err != nil || parsed.Encrypted() {
			continue
		}
		chains[parsed.Prefix] = append(chains[parsed.Prefix], filepath.Join(dir, entry.Name()))
	}

	heads := make(map[string]chain.Pointer, len(chains))
	for prefix, paths := range chains {
		head, err := VerifyFiles(paths)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", prefix, err)
		}
		heads[prefix] = head
	}
	return heads, nil
}

// OrderArchives returns paths in chain order by following each
// archive's linking info header to its predecessor. Exactly one archive
// must have a predecessor outside the set; forks and gaps are reported
// as chain.ErrChainBroken.
func OrderArchives(paths []string) ([]string, error) {
	byName := make(map[string]string, len(paths))
	previous := make(map[string]string, len(paths))
	for _, path := range paths {
		archive, err := OpenArchive(path)
		if err != nil {
			return nil, err
		}
		byName[archive.Name] = path
		previous[archive.Name] = archive.LinkingInfo.Previous.FileName()
		archive.Close()
	}

	successor := make(map[string]string, len(paths))
	var roots []string
	for name, before := range previous {
		if _, inSet := byName[before]; !inSet {
			roots = append(roots, name)
			continue
		}
		if other, taken := successor[before]; taken {
			return nil, fmt.Errorf("%w: %s and %s both follow %s", chain.ErrChainBroken, other, name, before)
		}
		successor[before] = name
	}
	if len(paths) > 0 && len(roots) != 1 {
		slices.Sort(roots)
		return nil, fmt.Errorf("%w: expected one first archive, found %d %v", chain.ErrChainBroken, len(roots), roots)
	}

	ordered := make([]string, 0, len(paths))
	for name, ok := firstOf(roots); ok; name, ok = successor[name] {
		ordered = append(ordered, byName[name])
	}
	if len(ordered) != len(byName) {
		return nil, fmt.Errorf("%w: %d of %d archives are not reachable from %s",
			chain.ErrChainBroken, len(byName)-len(ordered), len(byName), roots[0])
	}
	return ordered, nil
}

func firstOf(names []string) (string, bool) {
	if len(names) == 0 {
		return "", false
	}
	return names[0], true
}
