package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ReadFrame lê um frame completo do stream e retorna (type, payload).
// A leitura é atômica na granularidade do frame: ou o frame inteiro é
// entregue, ou a função falha sem expor dados parciais.
//
// EOF limpo (stream fechado entre frames) retorna io.EOF sem wrap, para
// que o caller distinga desconexão normal de frame truncado.
func ReadFrame(r io.Reader) (byte, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("reading frame header: %w", err)
	}

	frameType := header[0]
	if !KnownFrameType(frameType) {
		return 0, nil, ErrUnknownFrameType
	}

	length := binary.BigEndian.Uint32(header[1:5])
	if length > math.MaxInt32 {
		// O campo é um i32 no wire; bit de sinal ligado = tamanho negativo.
		return 0, nil, ErrNegativeLength
	}
	if length > MaxFramePayload {
		return 0, nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("reading frame payload: %w", err)
	}

	return frameType, payload, nil
}
