// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the msglog
// binaries.
//
// Three package-level variables are injected at build time via
// -ldflags -X:
//
//	go build -ldflags "-X github.com/xchange-foundation/msglog/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// When they are not injected, the commit and dirty flag fall back to
// the VCS stamp recorded by the Go toolchain, if any.
//
//   - [Info] -- "0.1.0-dev (abc1234, 2026-02-10T...)" for --version
//   - [Full] -- Info plus Go version and GOOS/GOARCH
//   - [Short] -- just the version number
package version
