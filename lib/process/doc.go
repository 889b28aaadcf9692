// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint error handling shared by the
// msglog binaries. main() calls [Fatal] with the error returned by
// run(); errors carrying an exit code ([ExitError]) choose the status.
package process
