// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the msglog
// archiver and verifier.
//
// Configuration is loaded from a single file named either by the
// MSGLOG_CONFIG environment variable (via [Load]) or by a --config flag
// (via [LoadFile]). There is no implicit discovery. Files ending in
// .json or .jsonc are parsed as JSON with comments; everything else is
// parsed as YAML.
//
// The file may carry environment-specific sections (development,
// staging, production) whose non-empty fields override the base values
// when [Config].Environment matches. Production turns on the archiver
// lock unless the production section says otherwise.
//
// Path fields support ${VAR} and ${VAR:-default} expansion, with
// ${MSGLOG_HOME} defaulting to /var/lib/msglog. No other environment
// variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Database, Archive, Schedule, Retention
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every invalid field at once
package config
