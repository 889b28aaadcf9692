// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Codec encodes and decodes CBOR with a fixed configuration. A Codec
// is immutable and safe for concurrent use.
type Codec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

// New returns a Codec using Core Deterministic Encoding. Decoding
// ignores unknown fields and decodes untyped maps as map[string]any.
func New() (*Codec, error) {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err := encOptions.EncMode()
	if err != nil {
		return nil, fmt.Errorf("codec: creating CBOR encoder: %w", err)
	}

	decMode, err := cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("codec: creating CBOR decoder: %w", err)
	}
	return &Codec{encMode: encMode, decMode: decMode}, nil
}

// MustNew is New for static initialization. It panics on error, which
// only happens if the option set above is invalid.
func MustNew() *Codec {
	codec, err := New()
	if err != nil {
		panic(err)
	}
	return codec
}

// Marshal encodes v.
func (c *Codec) Marshal(v any) ([]byte, error) {
	return c.encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func (c *Codec) Unmarshal(data []byte, v any) error {
	return c.decMode.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value.
type RawMessage = cbor.RawMessage

// NewEncoder returns a stream encoder writing to w.
func (c *Codec) NewEncoder(w io.Writer) *Encoder {
	return c.encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r.
func (c *Codec) NewDecoder(r io.Reader) *Decoder {
	return c.decMode.NewDecoder(r)
}

// Diagnose returns the RFC 8949 diagnostic notation for data.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
