// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

func TestFileChunk_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		chunk FileChunk
	}{
		{"with data", FileChunk{TransferID: "3f2a6c", Seq: 0, Data: fillPayload(64 * 1024)}},
		{"empty data", FileChunk{TransferID: "3f2a6c", Seq: 7, Data: nil}},
		{"high seq", FileChunk{TransferID: "t", Seq: 2147483647, Data: []byte{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := EncodeFileChunk(tt.chunk)
			if err != nil {
				t.Fatalf("EncodeFileChunk: %v", err)
			}

			got, err := DecodeFileChunk(payload)
			if err != nil {
				t.Fatalf("DecodeFileChunk: %v", err)
			}
			if got.TransferID != tt.chunk.TransferID {
				t.Errorf("expected transferId %q, got %q", tt.chunk.TransferID, got.TransferID)
			}
			if got.Seq != tt.chunk.Seq {
				t.Errorf("expected seq %d, got %d", tt.chunk.Seq, got.Seq)
			}
			if !bytes.Equal(got.Data, tt.chunk.Data) {
				t.Errorf("data mismatch: expected %d bytes, got %d", len(tt.chunk.Data), len(got.Data))
			}
		})
	}
}

func TestFileChunk_WireLayout(t *testing.T) {
	payload, err := EncodeFileChunk(FileChunk{TransferID: "ab", Seq: 3, Data: []byte{0xEE}})
	if err != nil {
		t.Fatalf("EncodeFileChunk: %v", err)
	}

	expected := []byte{
		0x00, 0x02, // idLen
		'a', 'b', // transferId
		0x00, 0x00, 0x00, 0x03, // seq
		0x00, 0x00, 0x00, 0x01, // dataLen
		0xEE,
	}
	if !bytes.Equal(payload, expected) {
		t.Errorf("expected wire bytes %x, got %x", expected, payload)
	}
}

func TestPeekTransferID(t *testing.T) {
	payload, err := EncodeFileChunk(FileChunk{TransferID: "transfer-42", Seq: 9, Data: fillPayload(512)})
	if err != nil {
		t.Fatalf("EncodeFileChunk: %v", err)
	}

	id, err := PeekTransferID(payload)
	if err != nil {
		t.Fatalf("PeekTransferID: %v", err)
	}
	if id != "transfer-42" {
		t.Errorf("expected transferId transfer-42, got %q", id)
	}
}

func TestPeekTransferID_Truncated(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"one byte", []byte{0x00}},
		{"id cut short", []byte{0x00, 0x05, 'a', 'b'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := PeekTransferID(tt.payload); !errors.Is(err, ErrTruncatedChunk) {
				t.Errorf("expected ErrTruncatedChunk, got %v", err)
			}
		})
	}
}

func TestDecodeFileChunk_Truncated(t *testing.T) {
	full, err := EncodeFileChunk(FileChunk{TransferID: "abc", Seq: 1, Data: fillPayload(32)})
	if err != nil {
		t.Fatalf("EncodeFileChunk: %v", err)
	}

	// Corta antes do header completo (idLen + id + seq + dataLen).
	for _, cut := range []int{0, 1, 4, 10} {
		if _, err := DecodeFileChunk(full[:cut]); !errors.Is(err, ErrTruncatedChunk) {
			t.Errorf("cut=%d: expected ErrTruncatedChunk, got %v", cut, err)
		}
	}
}

func TestDecodeFileChunk_DataLengthMismatch(t *testing.T) {
	full, err := EncodeFileChunk(FileChunk{TransferID: "abc", Seq: 1, Data: fillPayload(32)})
	if err != nil {
		t.Fatalf("EncodeFileChunk: %v", err)
	}

	// Remove bytes do fim: dataLen declara 32 mas o payload tem menos.
	if _, err := DecodeFileChunk(full[:len(full)-5]); !errors.Is(err, ErrChunkLengthMismatch) {
		t.Errorf("expected ErrChunkLengthMismatch, got %v", err)
	}
}

func TestDecodeFileChunk_NegativeDataLen(t *testing.T) {
	payload := make([]byte, 2+1+8)
	binary.BigEndian.PutUint16(payload[0:2], 1)
	payload[2] = 'x'
	binary.BigEndian.PutUint32(payload[3:7], 0)
	binary.BigEndian.PutUint32(payload[7:11], 0x80000000)

	if _, err := DecodeFileChunk(payload); !errors.Is(err, ErrNegativeLength) {
		t.Errorf("expected ErrNegativeLength, got %v", err)
	}
}

func TestEncodeFileChunk_IDTooLong(t *testing.T) {
	long := strings.Repeat("x", 65536)
	if _, err := EncodeFileChunk(FileChunk{TransferID: long}); !errors.Is(err, ErrTransferIDTooLong) {
		t.Errorf("expected ErrTransferIDTooLong, got %v", err)
	}
}
