// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/teradata-labs/conductor/pkg/graph"
)

// zstd frame magic, little-endian 0xFD2FB528.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// codec serializes checkpoint state for the SQL backends. Encoding
// compresses with zstd when enabled; decoding sniffs the frame magic so
// rows written with compression off stay readable after it is turned on,
// and vice versa.
type codec struct {
	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

func newCodec(compress bool) (*codec, error) {
	// Encoder and decoder are reusable and thread-safe.
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &codec{compress: compress, encoder: encoder, decoder: decoder}, nil
}

func (c *codec) encodeValues(values graph.State) ([]byte, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint values: %w", err)
	}
	if !c.compress {
		return data, nil
	}
	return c.encoder.EncodeAll(data, nil), nil
}

func (c *codec) decodeValues(raw []byte) (graph.State, error) {
	data := raw
	if isZstdFrame(raw) {
		plain, err := c.decoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress checkpoint values: %w", err)
		}
		data = plain
	}
	if len(data) == 0 {
		return graph.State{}, nil
	}
	var values graph.State
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint values: %w", err)
	}
	return values, nil
}

func isZstdFrame(b []byte) bool {
	return len(b) >= len(zstdMagic) && bytes.Equal(b[:len(zstdMagic)], zstdMagic)
}

func marshalNext(next []string) (string, error) {
	if len(next) == 0 {
		return "", nil
	}
	data, err := json.Marshal(next)
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint next: %w", err)
	}
	return string(data), nil
}

func unmarshalNext(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var next []string
	if err := json.Unmarshal([]byte(raw), &next); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint next: %w", err)
	}
	return next, nil
}
