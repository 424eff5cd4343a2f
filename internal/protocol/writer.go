package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteFrame escreve um frame completo no stream.
// Formato: [Type 1B] [Length uint32 BE 4B] [Payload NB]
//
// O frame é montado num buffer único e emitido numa única chamada de
// Write. A atomicidade entre producers concorrentes é garantida pela
// disciplina de single-writer da camada de transporte, não aqui.
func WriteFrame(w io.Writer, frameType byte, payload []byte) error {
	if len(payload) > MaxFramePayload {
		return ErrFrameTooLarge
	}

	buf := make([]byte, 5+len(payload))
	buf[0] = frameType
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}
