// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/xchange-foundation/msglog/lib/archive"
	"github.com/xchange-foundation/msglog/lib/archiver"
	"github.com/xchange-foundation/msglog/lib/clock"
	"github.com/xchange-foundation/msglog/lib/codec"
	"github.com/xchange-foundation/msglog/lib/compress"
	"github.com/xchange-foundation/msglog/lib/config"
	"github.com/xchange-foundation/msglog/lib/messagelog"
	"github.com/xchange-foundation/msglog/lib/sealed"
)

// service owns the message log store and the archiving job built from
// a validated configuration.
type service struct {
	store *messagelog.Store
	job   *archiver.Job
}

func newService(cfg *config.Config, c clock.Clock, logger *slog.Logger) (*service, error) {
	recordCompression, err := compress.ParseTag(cfg.Database.RecordCompression)
	if err != nil {
		return nil, err
	}
	entryCompression, err := archive.ParseEntryCompression(cfg.Archive.EntryCompression)
	if err != nil {
		return nil, err
	}
	retention, err := cfg.Retention.Duration()
	if err != nil {
		return nil, err
	}

	var key []byte
	if cfg.Database.EncryptionKeyFile != "" {
		if key, err = messagelog.LoadKeyFile(cfg.Database.EncryptionKeyFile); err != nil {
			return nil, err
		}
	}

	var encryptor archive.Encryptor
	if len(cfg.Archive.EncryptionRecipients) > 0 {
		sealedEncryptor, err := sealed.NewEncryptor(cfg.Archive.EncryptionRecipients)
		if err != nil {
			return nil, err
		}
		encryptor = sealedEncryptor
	}

	recordCodec, err := codec.New()
	if err != nil {
		return nil, err
	}

	store, err := messagelog.Open(messagelog.Config{
		Path:          cfg.Database.Path,
		PoolSize:      cfg.Database.PoolSize,
		Synchronous:   cfg.Database.Synchronous,
		Compression:   recordCompression,
		EncryptionKey: key,
		Codec:         recordCodec,
		Clock:         c,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	job, err := archiver.New(archiver.Config{
		Dir:              cfg.Archive.Path,
		Grouping:         cfg.Archive.Grouping,
		BatchSize:        cfg.Archive.BatchSize,
		MaxArchiveSize:   cfg.Archive.MaxFileSize,
		HashAlgorithm:    cfg.Archive.HashAlgorithm,
		EntryCompression: entryCompression,
		Encryptor:        encryptor,
		TransferCommand:  cfg.Archive.TransferCommand,
		Lock:             cfg.LockEnabled(),
		KeepRecordsFor:   retention,
		Clock:            c,
		Logger:           logger,
	}, store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating archiver: %w", err)
	}
	return &service{store: store, job: job}, nil
}

func (s *service) Close() error {
	return s.store.Close()
}
