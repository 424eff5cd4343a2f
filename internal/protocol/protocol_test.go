// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

// fillPayload gera um payload determinístico do tamanho pedido.
func fillPayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i % 251)
	}
	return p
}

func TestFrame_RoundTrip(t *testing.T) {
	sizes := []int{0, 1, 65535, 1 << 20}
	types := []byte{FrameJSONPacket, FrameFileChunk}

	for _, frameType := range types {
		for _, size := range sizes {
			var buf bytes.Buffer
			payload := fillPayload(size)

			if err := WriteFrame(&buf, frameType, payload); err != nil {
				t.Fatalf("WriteFrame(type=%d, size=%d): %v", frameType, size, err)
			}

			gotType, gotPayload, err := ReadFrame(&buf)
			if err != nil {
				t.Fatalf("ReadFrame(type=%d, size=%d): %v", frameType, size, err)
			}
			if gotType != frameType {
				t.Errorf("expected type %d, got %d", frameType, gotType)
			}
			if !bytes.Equal(gotPayload, payload) {
				t.Errorf("payload mismatch for type=%d size=%d", frameType, size)
			}
		}
	}
}

func TestFrame_WireLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FrameJSONPacket, []byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	expected := []byte{0x01, 0x00, 0x00, 0x00, 0x02, 0xAA, 0xBB}
	if !bytes.Equal(buf.Bytes(), expected) {
		t.Errorf("expected wire bytes %x, got %x", expected, buf.Bytes())
	}
}

func TestReadFrame_ZeroLength(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FrameFileChunk, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	frameType, payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frameType != FrameFileChunk {
		t.Errorf("expected type %d, got %d", FrameFileChunk, frameType)
	}
	if len(payload) != 0 {
		t.Errorf("expected empty payload, got %d bytes", len(payload))
	}
}

func TestReadFrame_ReservedTypes(t *testing.T) {
	for _, frameType := range []byte{FrameFileControl, FrameHeartbeat} {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, frameType, []byte("x")); err != nil {
			t.Fatalf("WriteFrame(type=%d): %v", frameType, err)
		}
		gotType, _, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame(type=%d): %v", frameType, err)
		}
		if gotType != frameType {
			t.Errorf("expected type %d, got %d", frameType, gotType)
		}
	}
}

func TestReadFrame_UnknownType(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x7F, 0x00, 0x00, 0x00, 0x00})

	_, _, err := ReadFrame(buf)
	if !errors.Is(err, ErrUnknownFrameType) {
		t.Errorf("expected ErrUnknownFrameType, got %v", err)
	}
}

func TestReadFrame_NegativeLength(t *testing.T) {
	// Length com bit de sinal ligado (i32 negativo no wire).
	header := []byte{FrameJSONPacket, 0x80, 0x00, 0x00, 0x01}
	buf := bytes.NewBuffer(header)

	_, _, err := ReadFrame(buf)
	if !errors.Is(err, ErrNegativeLength) {
		t.Errorf("expected ErrNegativeLength, got %v", err)
	}
}

func TestReadFrame_TooLarge(t *testing.T) {
	header := make([]byte, 5)
	header[0] = FrameFileChunk
	binary.BigEndian.PutUint32(header[1:5], MaxFramePayload+1)
	buf := bytes.NewBuffer(header)

	_, _, err := ReadFrame(buf)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrame_CleanEOF(t *testing.T) {
	_, _, err := ReadFrame(bytes.NewBuffer(nil))
	if err != io.EOF {
		t.Errorf("expected bare io.EOF on empty stream, got %v", err)
	}
}

func TestReadFrame_TruncatedHeader(t *testing.T) {
	buf := bytes.NewBuffer([]byte{FrameJSONPacket, 0x00})

	_, _, err := ReadFrame(buf)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadFrame_TruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FrameJSONPacket, fillPayload(100)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	truncated := bytes.NewBuffer(buf.Bytes()[:50])

	_, _, err := ReadFrame(truncated)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestWriteFrame_TooLarge(t *testing.T) {
	err := WriteFrame(io.Discard, FrameFileChunk, make([]byte, MaxFramePayload+1))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrame_SequentialFrames(t *testing.T) {
	var buf bytes.Buffer
	first := fillPayload(64)
	second := fillPayload(17)

	if err := WriteFrame(&buf, FrameJSONPacket, first); err != nil {
		t.Fatalf("WriteFrame first: %v", err)
	}
	if err := WriteFrame(&buf, FrameFileChunk, second); err != nil {
		t.Fatalf("WriteFrame second: %v", err)
	}

	frameType, payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame first: %v", err)
	}
	if frameType != FrameJSONPacket || !bytes.Equal(payload, first) {
		t.Errorf("first frame mismatch")
	}

	frameType, payload, err = ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame second: %v", err)
	}
	if frameType != FrameFileChunk || !bytes.Equal(payload, second) {
		t.Errorf("second frame mismatch")
	}

	if _, _, err := ReadFrame(&buf); err != io.EOF {
		t.Errorf("expected io.EOF after last frame, got %v", err)
	}
}
