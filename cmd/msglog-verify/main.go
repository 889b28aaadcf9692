// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// msglog-verify checks the hash chain of message log archives.
//
// Given archive files, it orders them by their chain links, recomputes
// every record digest and prints the final chain head. Given --dir, it
// verifies every chain found in the directory, one per file prefix.
// Encrypted archives are skipped.
//
// --json prints a canonical JSON report.
//
// Exit status is 0 when every chain verifies, 2 when a chain is broken
// and 1 for other errors.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/gowebpki/jcs"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/xchange-foundation/msglog/lib/archive"
	"github.com/xchange-foundation/msglog/lib/chain"
	"github.com/xchange-foundation/msglog/lib/process"
	"github.com/xchange-foundation/msglog/lib/version"
)

// exitChainBroken is the exit status for a failed verification.
const exitChainBroken = 2

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

// chainResult is one verified chain in --json output.
type chainResult struct {
	Prefix string `json:"prefix"`
	Digest string `json:"digest"`
	File   string `json:"file"`
}

func run(args []string, stdout io.Writer) error {
	var (
		dir         string
		jsonOutput  bool
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("msglog-verify", pflag.ContinueOnError)
	flagSet.StringVar(&dir, "dir", "", "verify every archive chain in this directory")
	flagSet.BoolVar(&jsonOutput, "json", false, "print results as JSON")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.SetOutput(os.Stderr)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("msglog-verify")
		return nil
	}

	files := flagSet.Args()
	var results []chainResult
	switch {
	case dir != "" && len(files) > 0:
		return fmt.Errorf("--dir and archive files are mutually exclusive")
	case dir != "":
		heads, err := archive.VerifyDir(dir)
		if err != nil {
			return verificationError(err)
		}
		for prefix, head := range heads {
			results = append(results, newResult(prefix, head))
		}
		slices.SortFunc(results, func(a, b chainResult) int {
			switch {
			case a.Prefix < b.Prefix:
				return -1
			case a.Prefix > b.Prefix:
				return 1
			}
			return 0
		})
	case len(files) > 0:
		head, err := archive.VerifyFiles(files)
		if err != nil {
			return verificationError(err)
		}
		prefix := ""
		if name, err := archive.ParseFileName(filepath.Base(head.FileName())); err == nil {
			prefix = name.Prefix
		}
		results = append(results, newResult(prefix, head))
	default:
		return fmt.Errorf("no archives given; pass archive files or --dir")
	}

	if jsonOutput {
		return writeJSON(stdout, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(stdout, "no archives found")
	}
	status := "OK"
	if isTerminal(stdout) {
		status = "\x1b[32mOK\x1b[0m"
	}
	for _, result := range results {
		fmt.Fprintf(stdout, "%s\t%s\t%s\t%s\n", result.Prefix, status, result.File, result.Digest)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// writeJSON prints the report in RFC 8785 canonical form so that two
// runs over the same archives produce identical bytes.
func writeJSON(w io.Writer, results []chainResult) error {
	if results == nil {
		results = []chainResult{}
	}
	data, err := json.Marshal(map[string]any{"chains": results})
	if err != nil {
		return err
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return fmt.Errorf("canonicalizing report: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", canonical)
	return err
}

func newResult(prefix string, head chain.Pointer) chainResult {
	return chainResult{Prefix: prefix, Digest: head.Digest(), File: head.FileName()}
}

// verificationError gives chain breaks their own exit status.
func verificationError(err error) error {
	if errors.Is(err, chain.ErrChainBroken) {
		return process.WithCode(exitChainBroken, err)
	}
	return err
}
