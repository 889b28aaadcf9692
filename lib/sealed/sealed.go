// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// Extension is appended to the names of encrypted archives.
const Extension = ".age"

// Keypair is an age x25519 keypair.
type Keypair struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format. It
	// must never be logged.
	PrivateKey string

	// PublicKey is the recipient in age1... format.
	PublicKey string
}

// GenerateKeypair generates a new age x25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("sealed: generating age keypair: %w", err)
	}
	return &Keypair{
		PrivateKey: identity.String(),
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Encryptor encrypts streams to a fixed set of recipients.
type Encryptor struct {
	recipients []age.Recipient
}

// NewEncryptor parses recipientKeys (age1... public keys). At least one
// recipient is required.
func NewEncryptor(recipientKeys []string) (*Encryptor, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("sealed: at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("sealed: parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return &Encryptor{recipients: recipients}, nil
}

// Extension returns the file name extension of encrypted output.
func (e *Encryptor) Extension() string { return Extension }

// Encrypt returns a writer that encrypts everything written to it into
// w. The ciphertext is complete only after Close; Close does not close
// w.
func (e *Encryptor) Encrypt(w io.Writer) (io.WriteCloser, error) {
	writer, err := age.Encrypt(w, e.recipients...)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating age encryptor: %w", err)
	}
	return writer, nil
}

// Decrypt returns a reader of the plaintext of r, using privateKey in
// AGE-SECRET-KEY-1... format.
func Decrypt(r io.Reader, privateKey string) (io.Reader, error) {
	identity, err := age.ParseX25519Identity(strings.TrimSpace(privateKey))
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing private key: %w", err)
	}
	reader, err := age.Decrypt(r, identity)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting: %w", err)
	}
	return reader, nil
}

// ParsePublicKey validates an age public key.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("sealed: invalid age public key: %w", err)
	}
	return nil
}
