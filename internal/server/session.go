// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/n-chat/internal/protocol"
	"github.com/nishisan-dev/n-chat/internal/transport"
)

// errDisconnectRequested sinaliza saída graceful do read loop via
// DISCONNECT_REQUEST. Nunca vaza para fora da sessão.
var errDisconnectRequested = errors.New("server: client requested disconnect")

// Session é a máquina de estados server-side de um client conectado.
// Executa inteira na goroutine de leitura da conexão; o que outras
// sessões fazem com ela se resume a enfileirar frames na sua Conn e
// incrementar o contador received (atômico).
//
// Estados: UNNAMED → NAMED → CLOSING → CLOSED. named é o flag local da
// goroutine de leitura; o nome em si vive sob o lock do Registry.
type Session struct {
	id   string
	name string // guardado por Registry.mu; ver Registry.SetName/NameOf

	srv       *Server
	conn      *transport.Conn
	logger    *slog.Logger
	logCloser io.Closer

	remoteAddr  string
	connectedAt time.Time

	// Contadores de chat. received é incrementado por outras sessões.
	sent     atomic.Int64
	received atomic.Int64

	// named é o estado da máquina, local à goroutine de leitura.
	named bool

	// transfers roteia transferId → id do destinatário. Escrito apenas
	// pela goroutine de leitura, mas sync.Map mantém a leitura do
	// snapshot de sessões (observability) livre de races.
	transfers sync.Map

	cleanupOnce sync.Once
}

// newSession cria a sessão para uma conexão aceita.
func newSession(id string, conn *transport.Conn, srv *Server, logger *slog.Logger, logCloser io.Closer) *Session {
	return &Session{
		id:          id,
		srv:         srv,
		conn:        conn,
		logger:      logger,
		logCloser:   logCloser,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
	}
}

// ID retorna o identificador da sessão (uuid, imutável).
func (s *Session) ID() string { return s.id }

// run é o corpo da goroutine de leitura: saudação, loop de frames,
// cleanup garantido na saída (qualquer que seja o motivo).
func (s *Session) run() {
	defer s.teardown()

	if err := s.conn.WritePacket(protocol.CodeConnectSuccess, protocol.ConnectSuccess{
		Message: "welcome to n-chat, register a name with /n <name>",
	}); err != nil {
		s.logger.Warn("sending greeting", "error", err)
		return
	}

	for {
		frameType, payload, err := s.conn.ReadFrame()
		if err != nil {
			if err == io.EOF {
				s.logger.Info("client disconnected")
			} else {
				// IO ou PROTOCOL: a conexão está corrompida ou morta;
				// os dois casos terminam a sessão do mesmo jeito.
				s.logger.Warn("read loop terminated", "error", err)
				s.srv.pushEvent("warn", "protocol_error", s.id, s.srv.registry.NameOf(s), err.Error())
			}
			return
		}

		if err := s.dispatch(frameType, payload); err != nil {
			if errors.Is(err, errDisconnectRequested) {
				s.logger.Info("client requested disconnect")
				return
			}
			s.logger.Warn("session terminated", "error", err)
			return
		}
	}
}

// dispatch roteia um frame lido para o handler adequado.
func (s *Session) dispatch(frameType byte, payload []byte) error {
	switch frameType {
	case protocol.FrameJSONPacket:
		pkt, err := protocol.DecodePacket(payload)
		if err != nil {
			return err
		}
		s.srv.metrics.PacketsIn.Add(1)
		return s.handlePacket(pkt)

	case protocol.FrameFileChunk:
		s.relayChunk(payload)
		return nil

	default:
		// FILE_CONTROL e HEARTBEAT são reservados: válidos no framer,
		// ignorados aqui.
		s.logger.Debug("ignoring reserved frame", "type", frameType)
		return nil
	}
}

// handlePacket é a tabela typeCode → handler da máquina de estados.
func (s *Session) handlePacket(pkt *protocol.Packet) error {
	switch pkt.Code {
	case protocol.CodeRegisterName:
		return s.handleRegisterName(pkt)
	case protocol.CodeUpdateName:
		return s.handleUpdateName(pkt)
	case protocol.CodeDisconnectRequest:
		return errDisconnectRequested
	case protocol.CodeChatMessage:
		return s.handleChat(pkt)
	case protocol.CodeWhisper:
		return s.handleWhisper(pkt)
	case protocol.CodeFileSendRequest:
		return s.handleFileSendRequest(pkt)
	case protocol.CodeFileSendComplete:
		return s.handleFileSendComplete(pkt)
	default:
		// Código conhecido pelo protocolo mas sem sentido no C→S
		// (ex: um client enviando CONNECT_SUCCESS). Ignora.
		s.logger.Debug("ignoring unexpected packet", "code", pkt.Code.String())
		return nil
	}
}

// requireNamed responde SERVER_INFO quando uma operação que exige nome
// registrado chega numa sessão UNNAMED. Retorna false nesse caso.
func (s *Session) requireNamed(op string) bool {
	if s.named {
		return true
	}
	s.logger.Debug("operation before registration", "op", op)
	s.sendToSelf(protocol.CodeServerInfo, protocol.ServerInfo{
		Message: "register a name first with /n <name>",
	})
	return false
}

func (s *Session) handleRegisterName(pkt *protocol.Packet) error {
	if s.named {
		// Registro repetido numa sessão NAMED; a troca de nome é UPDATE_NAME.
		s.sendToSelf(protocol.CodeServerInfo, protocol.ServerInfo{
			Message: "name already registered, rename with /n <name>",
		})
		return nil
	}

	var req protocol.RegisterName
	if err := pkt.Decode(&req); err != nil {
		return err
	}

	name, err := s.applyName(req.Name)
	if err != nil {
		return nil // falha de validação já respondida; estado inalterado
	}

	s.named = true
	s.logger.Info("name registered", "name", name)
	s.srv.pushEvent("info", "register", s.id, name, "user registered")

	s.sendToSelf(protocol.CodeRegisterNameSuccess, protocol.RegisterNameSuccess{ID: s.id, Name: name})
	s.broadcast(protocol.CodeUserEntered, protocol.UserEntered{ID: s.id, Name: name}, false)
	return nil
}

func (s *Session) handleUpdateName(pkt *protocol.Packet) error {
	if !s.requireNamed("update_name") {
		return nil
	}

	var req protocol.UpdateName
	if err := pkt.Decode(&req); err != nil {
		return err
	}

	oldName := s.srv.registry.NameOf(s)
	newName, err := s.applyName(req.NewName)
	if err != nil {
		return nil
	}

	s.logger.Info("name updated", "old", oldName, "new", newName)
	s.srv.pushEvent("info", "rename", s.id, newName, "user renamed from "+oldName)

	// Self e broadcast recebem o mesmo packet.
	s.sendToSelf(protocol.CodeUpdateNameSuccess, protocol.UpdateNameSuccess{OldName: oldName, NewName: newName})
	s.broadcast(protocol.CodeUpdateNameSuccess, protocol.UpdateNameSuccess{OldName: oldName, NewName: newName}, false)
	return nil
}

// applyName valida e grava um nome (registro ou troca). Em caso de falha
// responde o packet de validação adequado e retorna o erro.
func (s *Session) applyName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		s.sendToSelf(protocol.CodeNameCannotBeBlank, protocol.NameCannotBeBlank{
			Message: "name cannot be blank",
		})
		return "", ErrNameBlank
	}

	if _, err := s.srv.registry.SetName(s, name); err != nil {
		s.sendToSelf(protocol.CodeNameCannotBeDuplicated, protocol.NameCannotBeDuplicated{
			Message: "name " + name + " is already in use",
		})
		return "", err
	}
	return name, nil
}

func (s *Session) handleChat(pkt *protocol.Packet) error {
	if !s.requireNamed("chat") {
		return nil
	}

	var msg protocol.ChatMessage
	if err := pkt.Decode(&msg); err != nil {
		return err
	}

	// O sender do wire é ignorado: o server é a autoridade sobre nomes.
	msg.Sender = s.srv.registry.NameOf(s)

	// +1 por broadcast aceito, independente do fan-out.
	s.sent.Add(1)
	s.broadcast(protocol.CodeChatMessage, msg, true)
	return nil
}

func (s *Session) handleWhisper(pkt *protocol.Packet) error {
	if !s.requireNamed("whisper") {
		return nil
	}

	var w protocol.Whisper
	if err := pkt.Decode(&w); err != nil {
		return err
	}

	target := s.srv.registry.FindByName(w.Target)
	if target == nil {
		s.sendToSelf(protocol.CodeUserNotExists, protocol.UserNotExists{
			Message: "user " + w.Target + " does not exist",
		})
		return nil
	}

	sender := s.srv.registry.NameOf(s)

	if s.sendTo(target, protocol.CodeWhisperToTarget, protocol.WhisperToTarget{
		Sender: sender, Target: w.Target, Message: w.Message,
	}) {
		target.received.Add(1)
	}

	s.sent.Add(1)
	s.sendToSelf(protocol.CodeWhisperToSender, protocol.WhisperToSender{
		Sender: sender, Target: w.Target, Message: w.Message,
	})
	return nil
}

func (s *Session) handleFileSendRequest(pkt *protocol.Packet) error {
	if !s.requireNamed("file_send_request") {
		return nil
	}

	var req protocol.FileSendRequest
	if err := pkt.Decode(&req); err != nil {
		return err
	}

	target := s.srv.registry.FindByName(req.Target)
	if target == nil {
		s.sendToSelf(protocol.CodeUserNotExists, protocol.UserNotExists{
			Message: "user " + req.Target + " does not exist",
		})
		return nil
	}

	s.transfers.Store(req.TransferID, target.id)
	s.logger.Info("transfer started",
		"transfer", req.TransferID,
		"target", req.Target,
		"file", req.FileName,
		"size", req.FileSize,
	)
	s.srv.pushEvent("info", "transfer_start", s.id, s.srv.registry.NameOf(s),
		"sending "+req.FileName+" to "+req.Target)

	// O packet segue inalterado para o destinatário.
	s.sendTo(target, protocol.CodeFileSendRequest, req)
	return nil
}

func (s *Session) handleFileSendComplete(pkt *protocol.Packet) error {
	if !s.requireNamed("file_send_complete") {
		return nil
	}

	var req protocol.FileSendComplete
	if err := pkt.Decode(&req); err != nil {
		return err
	}

	targetID, ok := s.transfers.LoadAndDelete(req.TransferID)
	if !ok {
		s.logger.Warn("complete for unknown transfer", "transfer", req.TransferID)
		return nil
	}

	s.logger.Info("transfer completed", "transfer", req.TransferID)
	s.srv.pushEvent("info", "transfer_end", s.id, s.srv.registry.NameOf(s),
		"transfer "+req.TransferID+" completed")

	target := s.srv.registry.Lookup(targetID.(string))
	if target == nil {
		// Destinatário caiu no meio da transferência.
		return nil
	}
	s.sendTo(target, protocol.CodeFileSendComplete, req)
	return nil
}

// relayChunk repassa um payload FILE_CHUNK para o destinatário registrado
// no transferTable, sem decodificar além do transferId do prefixo.
// Chunks sem roteamento são descartados em silêncio: não existe canal de
// resposta para frames binários.
func (s *Session) relayChunk(payload []byte) {
	transferID, err := protocol.PeekTransferID(payload)
	if err != nil {
		s.logger.Warn("malformed file chunk", "error", err)
		return
	}

	targetID, ok := s.transfers.Load(transferID)
	if !ok {
		s.logger.Warn("chunk for unknown transfer, dropping", "transfer", transferID)
		return
	}

	target := s.srv.registry.Lookup(targetID.(string))
	if target == nil {
		s.logger.Warn("chunk target no longer connected, dropping", "transfer", transferID)
		return
	}

	if err := target.conn.WriteRawChunk(payload); err != nil {
		s.peerEnqueueFailed(target, err)
		return
	}

	s.srv.metrics.ChunksRelayed.Add(1)
	s.srv.metrics.BytesRelayed.Add(int64(len(payload)))
}

// sendToSelf enfileira um packet para o próprio client. Backpressure na
// própria fila derruba a própria conexão.
func (s *Session) sendToSelf(code protocol.PacketCode, body any) {
	if err := s.conn.WritePacket(code, body); err != nil {
		s.logger.Warn("enqueue to self failed", "code", code.String(), "error", err)
		if errors.Is(err, transport.ErrBackpressure) {
			s.conn.Close()
		}
	}
}

// sendTo enfileira um packet para outra sessão. Retorna true se o
// enqueue foi aceito.
func (s *Session) sendTo(target *Session, code protocol.PacketCode, body any) bool {
	if err := target.conn.WritePacket(code, body); err != nil {
		s.peerEnqueueFailed(target, err)
		return false
	}
	return true
}

// broadcast codifica o packet uma única vez e o enfileira em todas as
// outras sessões. countDeliveries liga a contabilidade de CHAT_MESSAGE:
// cada destinatário com enqueue aceito ganha +1 em received.
func (s *Session) broadcast(code protocol.PacketCode, body any, countDeliveries bool) {
	payload, err := protocol.EncodePacket(code, body)
	if err != nil {
		s.logger.Error("encoding broadcast", "code", code.String(), "error", err)
		return
	}

	for _, peer := range s.srv.registry.SnapshotExcept(s.id) {
		if err := peer.conn.WriteRawPacket(payload); err != nil {
			s.peerEnqueueFailed(peer, err)
			continue
		}
		if countDeliveries {
			peer.received.Add(1)
		}
	}
}

// peerEnqueueFailed trata falha de enqueue na fila de um peer.
// BACKPRESSURE marca a conexão do peer como doente e a fecha; o read
// loop do próprio peer dispara o cleanup dele. Nenhum erro de peer
// termina ESTA sessão.
func (s *Session) peerEnqueueFailed(peer *Session, err error) {
	if errors.Is(err, transport.ErrBackpressure) {
		s.logger.Warn("peer queue full, closing peer connection", "peer", peer.id)
		s.srv.pushEvent("warn", "backpressure", peer.id, s.srv.registry.NameOf(peer),
			"outbound queue full, connection closed")
		peer.conn.Close()
		return
	}
	s.logger.Debug("enqueue to peer failed", "peer", peer.id, "error", err)
}

// teardown é o contrato de finally da sessão: remove do registry, avisa
// os demais, fecha a conexão. Roda exatamente uma vez, qualquer que seja
// a saída do read loop.
func (s *Session) teardown() {
	s.cleanupOnce.Do(func() {
		name := s.srv.registry.NameOf(s)
		sent := s.sent.Load()
		received := s.received.Load()

		s.srv.registry.Remove(s.id)
		s.srv.metrics.ActiveConns.Add(-1)

		info := protocol.DisconnectInfo{Target: name, Sent: sent, Received: received}

		// Best-effort para o próprio client: o socket pode já estar morto.
		s.sendToSelf(protocol.CodeDisconnectInfo, info)

		if name != "" {
			s.broadcast(protocol.CodeDisconnectInfo, info, false)
		}

		s.conn.Close()

		s.logger.Info("session closed", "name", name, "sent", sent, "received", received)
		s.srv.pushEvent("info", "disconnect", s.id, name, "session closed")

		if s.logCloser != nil {
			s.logCloser.Close()
		}
	})
}
