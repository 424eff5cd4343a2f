// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/binary"
	"math"
)

// FileChunk é o payload de um frame FILE_CHUNK.
// Formato: [IDLen uint16 BE 2B] [TransferID UTF-8] [Seq int32 BE 4B]
// [DataLen int32 BE 4B] [Data NB]
//
// O prefixo de 2 bytes do TransferID segue a convenção usual de strings
// UTF com tamanho prefixado. Seq é informativo: o relay não reordena.
type FileChunk struct {
	TransferID string
	Seq        int32
	Data       []byte
}

// EncodeFileChunk monta o payload de um frame FILE_CHUNK.
func EncodeFileChunk(c FileChunk) ([]byte, error) {
	idLen := len(c.TransferID)
	if idLen > math.MaxUint16 {
		return nil, ErrTransferIDTooLong
	}

	buf := make([]byte, 2+idLen+8+len(c.Data))
	binary.BigEndian.PutUint16(buf[0:2], uint16(idLen))
	copy(buf[2:], c.TransferID)
	off := 2 + idLen
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(c.Seq))
	binary.BigEndian.PutUint32(buf[off+4:off+8], uint32(len(c.Data)))
	copy(buf[off+8:], c.Data)
	return buf, nil
}

// DecodeFileChunk parseia o payload de um frame FILE_CHUNK.
// Data referencia o slice do payload, sem cópia.
func DecodeFileChunk(payload []byte) (*FileChunk, error) {
	if len(payload) < 2 {
		return nil, ErrTruncatedChunk
	}
	idLen := int(binary.BigEndian.Uint16(payload[0:2]))
	if len(payload) < 2+idLen+8 {
		return nil, ErrTruncatedChunk
	}

	id := string(payload[2 : 2+idLen])
	off := 2 + idLen
	seq := int32(binary.BigEndian.Uint32(payload[off : off+4]))
	dataLen := int32(binary.BigEndian.Uint32(payload[off+4 : off+8]))
	if dataLen < 0 {
		return nil, ErrNegativeLength
	}
	if int(dataLen) != len(payload)-off-8 {
		return nil, ErrChunkLengthMismatch
	}

	return &FileChunk{TransferID: id, Seq: seq, Data: payload[off+8:]}, nil
}

// PeekTransferID extrai apenas o transferId do prefixo do payload, sem
// decodificar o resto. É o caminho rápido do relay: o server roteia o
// payload opaco pelo transferId e repassa os bytes inalterados.
func PeekTransferID(payload []byte) (string, error) {
	if len(payload) < 2 {
		return "", ErrTruncatedChunk
	}
	idLen := int(binary.BigEndian.Uint16(payload[0:2]))
	if len(payload) < 2+idLen {
		return "", ErrTruncatedChunk
	}
	return string(payload[2 : 2+idLen]), nil
}
