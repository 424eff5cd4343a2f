// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package protocol implementa o protocolo binário N-Chat para comunicação
// entre client e server sobre TCP.
//
// Todo o tráfego é transportado em frames com prefixo de tamanho:
//
//	[Type 1B] [Length uint32 BE 4B] [Payload NB]
//
// Um frame JSON_PACKET carrega um Packet de controle (envelope com código
// numérico + body JSON); um frame FILE_CHUNK carrega um pedaço binário de
// uma transferência de arquivo. Os dois tipos podem ser intercalados
// livremente na mesma conexão.
package protocol

import "errors"

// Tipos de frame no wire.
const (
	FrameJSONPacket  byte = 0x01 // Packet de controle JSON
	FrameFileChunk   byte = 0x02 // Chunk binário de arquivo
	FrameFileControl byte = 0x03 // Reservado
	FrameHeartbeat   byte = 0x04 // Reservado
)

// MaxFramePayload é o tamanho máximo aceito para o payload de um frame.
// Protege o reader contra alocações absurdas vindas de um peer corrompido.
const MaxFramePayload = 16 * 1024 * 1024

// Erros do protocolo.
var (
	ErrUnknownFrameType = errors.New("protocol: unknown frame type")
	ErrNegativeLength   = errors.New("protocol: negative length field")
	ErrFrameTooLarge    = errors.New("protocol: frame payload exceeds limit")

	ErrPacketTooShort       = errors.New("protocol: packet payload too short")
	ErrPacketLengthMismatch = errors.New("protocol: packet length mismatch")
	ErrUnknownPacketCode    = errors.New("protocol: unknown packet code")

	ErrTruncatedChunk      = errors.New("protocol: truncated file chunk")
	ErrChunkLengthMismatch = errors.New("protocol: chunk data length mismatch")
	ErrTransferIDTooLong   = errors.New("protocol: transfer id too long")
)

// KnownFrameType reporta se o byte de tipo é um frame definido pelo protocolo.
// Os tipos reservados (FILE_CONTROL, HEARTBEAT) são válidos para o framer;
// o tratamento deles fica a cargo da camada de sessão.
func KnownFrameType(t byte) bool {
	return t >= FrameJSONPacket && t <= FrameHeartbeat
}
