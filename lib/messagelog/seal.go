// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package messagelog

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrNoKey is returned when reading an encrypted record from a store
// opened without an encryption key.
var ErrNoKey = errors.New("messagelog: record is encrypted and no key is configured")

// KeySize is the length of the body encryption key.
const KeySize = chacha20poly1305.KeySize

// LoadKeyFile reads a hex-encoded body encryption key.
func LoadKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("messagelog: reading key file: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("messagelog: key file %s is not hex: %w", path, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("messagelog: key file %s holds %d bytes, want %d", path, len(key), KeySize)
	}
	return key, nil
}

func newBodyCipher(key []byte) (cipher.AEAD, error) {
	if key == nil {
		return nil, nil
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("messagelog: body cipher: %w", err)
	}
	return aead, nil
}

// sealBody returns nonce || ciphertext. The query id is bound as
// associated data so a body cannot be moved to another record.
func sealBody(aead cipher.AEAD, plaintext []byte, queryID string) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("messagelog: generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(queryID)), nil
}

func openBody(aead cipher.AEAD, sealed []byte, queryID string) ([]byte, error) {
	if aead == nil {
		return nil, ErrNoKey
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("messagelog: sealed body is %d bytes, shorter than the nonce", len(sealed))
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(queryID))
	if err != nil {
		return nil, fmt.Errorf("messagelog: decrypting body: %w", err)
	}
	return plaintext, nil
}
