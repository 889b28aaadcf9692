// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package messagelog

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xchange-foundation/msglog/lib/codec"
)

// NewRecord is a message to be logged.
type NewRecord struct {
	// QueryID identifies the exchange. Request and response share it.
	QueryID string

	// Member and Subsystem identify the client the message belongs
	// to. They drive archive grouping.
	Member    string
	Subsystem string

	// Response marks the response half of an exchange.
	Response bool

	// CreatedAt defaults to the store clock.
	CreatedAt time.Time

	// Body is the message as exchanged.
	Body []byte

	// Signature is the detached signature over Body, if any.
	Signature []byte
}

// MessageRecord is a logged message as read back from the store.
type MessageRecord struct {
	RowID     int64
	QueryID   string
	Member    string
	Subsystem string
	Response  bool
	CreatedAt time.Time
	Body      []byte
	Signature []byte
	Archived  bool

	codec *codec.Codec
}

// containerDocument is the archived form of a record. Field order in
// the encoding is fixed by the codec, not by this declaration.
type containerDocument struct {
	Version   int    `cbor:"version"`
	RecordID  int64  `cbor:"record_id"`
	QueryID   string `cbor:"query_id"`
	Member    string `cbor:"member"`
	Subsystem string `cbor:"subsystem,omitempty"`
	Direction string `cbor:"direction"`
	Timestamp int64  `cbor:"timestamp"`
	Body      []byte `cbor:"body"`
	Signature []byte `cbor:"signature,omitempty"`
}

const containerVersion = 1

// Timestamp returns the creation time.
func (r *MessageRecord) Timestamp() time.Time { return r.CreatedAt }

// ID returns the query id, or the row id for records without one.
func (r *MessageRecord) ID() string {
	if r.QueryID != "" {
		return r.QueryID
	}
	return strconv.FormatInt(r.RowID, 10)
}

// IsResponse reports whether the record is a response.
func (r *MessageRecord) IsResponse() bool { return r.Response }

// Direction is "response" or "request".
func (r *MessageRecord) Direction() string {
	if r.Response {
		return "response"
	}
	return "request"
}

// ContainerBytes renders the record as a deterministic CBOR document.
// The timestamp is in Unix milliseconds.
func (r *MessageRecord) ContainerBytes() ([]byte, error) {
	if r.codec == nil {
		return nil, fmt.Errorf("messagelog: record %d has no codec", r.RowID)
	}
	return r.codec.Marshal(containerDocument{
		Version:   containerVersion,
		RecordID:  r.RowID,
		QueryID:   r.QueryID,
		Member:    r.Member,
		Subsystem: r.Subsystem,
		Direction: r.Direction(),
		Timestamp: r.CreatedAt.UnixMilli(),
		Body:      r.Body,
		Signature: r.Signature,
	})
}

// GroupKey returns the archive group the record belongs to under
// grouping: "" for none, the member for member, and member/subsystem
// for subsystem.
func (r *MessageRecord) GroupKey(grouping string) string {
	switch grouping {
	case "member":
		return r.Member
	case "subsystem":
		if r.Subsystem == "" {
			return r.Member
		}
		return r.Member + "/" + r.Subsystem
	default:
		return ""
	}
}
