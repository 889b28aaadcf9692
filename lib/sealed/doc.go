// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts published archive files with age
// (filippo.io/age) to one or more x25519 recipients.
//
// An [Encryptor] plugs into archive.WriterConfig.Encryptor: the archive
// container is streamed through age into the staging file, and the
// published file name gains the ".age" extension. Any recipient's
// private key decrypts it with the stock age tool:
//
//	age -d -i key.txt mlog-20260101000000-20260101010000-abcdefghij.zip.age > archive.zip
//
// Recipients are listed in configuration as age1... public keys.
package sealed
