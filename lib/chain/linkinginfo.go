// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"fmt"
	"strings"
)

// LinkingInfo is the parsed form of a linking info block.
type LinkingInfo struct {
	Previous  Pointer
	Algorithm string
	Entries   []Entry
}

// Last returns the pointer for the archive described by this block,
// given the archive's own file name. The digest is the final entry's
// digest, or the previous digest if the block has no entries.
func (info LinkingInfo) Last(fileName string) Pointer {
	if len(info.Entries) == 0 {
		return NewPointer(info.Previous.Digest(), fileName)
	}
	return NewPointer(info.Entries[len(info.Entries)-1].Digest, fileName)
}

// ParseLinkingInfo parses the output of [Builder.Build].
func ParseLinkingInfo(data []byte) (LinkingInfo, error) {
	text := string(data)
	if !strings.HasSuffix(text, "\n") {
		return LinkingInfo{}, fmt.Errorf("chain: linking info must end with a newline")
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	header := strings.Split(lines[0], " ")
	if len(header) != 3 {
		return LinkingInfo{}, fmt.Errorf("chain: linking info header has %d fields, want 3", len(header))
	}
	if err := ValidateAlgorithm(header[2]); err != nil {
		return LinkingInfo{}, err
	}
	info := LinkingInfo{
		Previous:  NewPointer(emptyIfDash(header[0]), emptyIfDash(header[1])),
		Algorithm: header[2],
		Entries:   make([]Entry, 0, len(lines)-1),
	}

	for index, line := range lines[1:] {
		fields := strings.Split(line, " ")
		if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
			return LinkingInfo{}, fmt.Errorf("chain: linking info line %d is malformed: %q", index+2, line)
		}
		info.Entries = append(info.Entries, Entry{Digest: fields[0], FileName: fields[1]})
	}
	return info, nil
}
