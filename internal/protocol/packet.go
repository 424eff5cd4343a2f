// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// PacketCode identifica o tipo de um packet de controle.
// O conjunto é fechado: códigos fora da tabela falham no decode.
type PacketCode int32

// Códigos de packet (devem casar numericamente com o wire).
const (
	CodeConnectSuccess         PacketCode = 1  // S→C: saudação após o accept
	CodeRegisterName           PacketCode = 10 // C→S: registro de nome
	CodeRegisterNameSuccess    PacketCode = 11 // S→C: registro aceito
	CodeNameCannotBeBlank      PacketCode = 12 // S→C: nome vazio rejeitado
	CodeNameCannotBeDuplicated PacketCode = 13 // S→C: nome duplicado rejeitado
	CodeUserEntered            PacketCode = 19 // S→C broadcast: usuário entrou
	CodeChatMessage            PacketCode = 20 // C→S e S→C: mensagem pública
	CodeServerInfo             PacketCode = 30 // S→C: aviso do servidor
	CodeUpdateName             PacketCode = 33 // C→S: troca de nome
	CodeUpdateNameSuccess      PacketCode = 34 // S→C self+broadcast: troca aceita
	CodeDisconnectInfo         PacketCode = 40 // S→C: contadores finais da sessão
	CodeDisconnectRequest      PacketCode = 41 // C→S: desconexão graceful
	CodeWhisper                PacketCode = 50 // C→S: mensagem direta
	CodeUserNotExists          PacketCode = 51 // S→C: destinatário inexistente
	CodeWhisperToSender        PacketCode = 52 // S→C: eco do whisper para o remetente
	CodeWhisperToTarget        PacketCode = 53 // S→C: whisper entregue ao destino
	CodeFileSendRequest        PacketCode = 60 // C→S→C: início de transferência
	CodeFileSendComplete       PacketCode = 61 // C→S→C: fim de transferência
)

// codeNames mapeia códigos para nomes legíveis. Também serve de tabela de
// validação no decode: código ausente = fora do protocolo.
var codeNames = map[PacketCode]string{
	CodeConnectSuccess:         "CONNECT_SUCCESS",
	CodeRegisterName:           "REGISTER_NAME",
	CodeRegisterNameSuccess:    "REGISTER_NAME_SUCCESS",
	CodeNameCannotBeBlank:      "NAME_CANNOT_BE_BLANK",
	CodeNameCannotBeDuplicated: "NAME_CANNOT_BE_DUPLICATED",
	CodeUserEntered:            "USER_ENTERED",
	CodeChatMessage:            "CHAT_MESSAGE",
	CodeServerInfo:             "SERVER_INFO",
	CodeUpdateName:             "UPDATE_NAME",
	CodeUpdateNameSuccess:      "UPDATE_NAME_SUCCESS",
	CodeDisconnectInfo:         "DISCONNECT_INFO",
	CodeDisconnectRequest:      "DISCONNECT_REQUEST",
	CodeWhisper:                "WHISPER",
	CodeUserNotExists:          "USER_NOT_EXISTS",
	CodeWhisperToSender:        "WHISPER_TO_SENDER",
	CodeWhisperToTarget:        "WHISPER_TO_TARGET",
	CodeFileSendRequest:        "FILE_SEND_REQUEST",
	CodeFileSendComplete:       "FILE_SEND_COMPLETE",
}

// Known reporta se o código pertence à tabela do protocolo.
func (c PacketCode) Known() bool {
	_, ok := codeNames[c]
	return ok
}

// String retorna o nome do código, ou UNKNOWN(n) para códigos fora da tabela.
func (c PacketCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int32(c))
}

// Packet é o envelope de controle transportado num frame JSON_PACKET.
// Formato do payload: [Length int32 BE 4B] [TypeCode int32 BE 4B] [Body JSON]
// onde Length = 8 + len(Body).
type Packet struct {
	Code PacketCode
	Body []byte
}

// EncodePacket monta o payload de um frame JSON_PACKET a partir de um DTO.
func EncodePacket(code PacketCode, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s body: %w", code, err)
	}

	buf := make([]byte, 8+len(data))
	binary.BigEndian.PutUint32(buf[0:4], uint32(8+len(data)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(code))
	copy(buf[8:], data)
	return buf, nil
}

// DecodePacket valida o envelope e retorna o Packet com o body ainda cru.
// Campos JSON desconhecidos no body são tolerados (forward-compatible);
// códigos fora da tabela falham com ErrUnknownPacketCode.
func DecodePacket(payload []byte) (*Packet, error) {
	if len(payload) < 8 {
		return nil, ErrPacketTooShort
	}

	length := int32(binary.BigEndian.Uint32(payload[0:4]))
	if length < 0 {
		return nil, ErrNegativeLength
	}
	if length < 8 {
		return nil, ErrPacketTooShort
	}
	if int(length) != len(payload) {
		return nil, ErrPacketLengthMismatch
	}

	code := PacketCode(int32(binary.BigEndian.Uint32(payload[4:8])))
	if !code.Known() {
		return nil, ErrUnknownPacketCode
	}

	return &Packet{Code: code, Body: payload[8:]}, nil
}

// Decode desserializa o body JSON do packet no DTO fornecido.
func (p *Packet) Decode(v any) error {
	if err := json.Unmarshal(p.Body, v); err != nil {
		return fmt.Errorf("decoding %s body: %w", p.Code, err)
	}
	return nil
}
