// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

// DTOs dos packets de controle. Cada struct corresponde a exatamente um
// PacketCode; os nomes dos campos JSON fazem parte do wire e não mudam.

// ConnectSuccess (code 1) é a saudação enviada pelo server após o accept.
type ConnectSuccess struct {
	Message string `json:"message"`
}

// RegisterName (code 10) registra o nome do usuário.
type RegisterName struct {
	Name string `json:"name"`
}

// RegisterNameSuccess (code 11) confirma o registro de nome.
type RegisterNameSuccess struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NameCannotBeBlank (code 12) rejeita um nome vazio.
type NameCannotBeBlank struct {
	Message string `json:"message"`
}

// NameCannotBeDuplicated (code 13) rejeita um nome já em uso.
type NameCannotBeDuplicated struct {
	Message string `json:"message"`
}

// UserEntered (code 19) anuncia aos demais que um usuário entrou.
type UserEntered struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatMessage (code 20) carrega uma mensagem pública. No sentido C→S o
// campo sender é ignorado; o server reescreve com o nome autoritativo.
type ChatMessage struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// ServerInfo (code 30) é um aviso operacional do servidor.
type ServerInfo struct {
	Message string `json:"message"`
}

// UpdateName (code 33) solicita a troca do nome registrado.
type UpdateName struct {
	NewName string `json:"newName"`
}

// UpdateNameSuccess (code 34) confirma a troca de nome, para o próprio
// usuário e em broadcast para os demais.
type UpdateNameSuccess struct {
	OldName string `json:"oldName"`
	NewName string `json:"newName"`
}

// DisconnectInfo (code 40) carrega os contadores finais de uma sessão.
type DisconnectInfo struct {
	Target   string `json:"target"`
	Sent     int64  `json:"sent"`
	Received int64  `json:"received"`
}

// DisconnectRequest (code 41) pede desconexão graceful. Body vazio.
type DisconnectRequest struct{}

// Whisper (code 50) é a mensagem direta enviada pelo client. Como no chat,
// o sender é reescrito pelo server.
type Whisper struct {
	Sender  string `json:"sender"`
	Target  string `json:"target"`
	Message string `json:"message"`
}

// UserNotExists (code 51) informa que o destinatário não existe.
type UserNotExists struct {
	Message string `json:"message"`
}

// WhisperToSender (code 52) é o eco do whisper para quem enviou.
type WhisperToSender struct {
	Sender  string `json:"sender"`
	Target  string `json:"target"`
	Message string `json:"message"`
}

// WhisperToTarget (code 53) é o whisper entregue ao destinatário.
type WhisperToTarget struct {
	Sender  string `json:"sender"`
	Target  string `json:"target"`
	Message string `json:"message"`
}

// FileSendRequest (code 60) abre uma transferência de arquivo. O server
// grava o roteamento transferId→target e repassa o packet inalterado.
type FileSendRequest struct {
	Target     string `json:"target"`
	TransferID string `json:"transferId"`
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
}

// FileSendComplete (code 61) encerra uma transferência de arquivo.
type FileSendComplete struct {
	TransferID string `json:"transferId"`
}
