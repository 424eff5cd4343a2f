// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"io"

	"github.com/nishisan-dev/n-chat/internal/protocol"
	"github.com/nishisan-dev/n-chat/internal/transport"
)

// incomingTransfer é o contexto de recepção de um arquivo, indexado pelo
// transferId. Fecha em FILE_SEND_COMPLETE ou quando received >= total.
type incomingTransfer struct {
	fileName string
	total    int64
	received int64
	sink     Sink
}

// readLoop consome frames até a conexão cair. Queda com reconnect
// habilitado redisca e continua; caso contrário o loop termina.
func (c *Client) readLoop(ctx context.Context, conn *transport.Conn) {
	defer c.readerDone.Done()

	for {
		frameType, payload, err := conn.ReadFrame()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}

			if err != io.EOF {
				c.logger.Warn("connection lost", "error", err)
			}
			if c.handlers.OnDropped != nil {
				c.handlers.OnDropped(err)
			}
			conn.Close()
			c.abortIncoming()

			if !c.cfg.Reconnect.Enabled {
				return
			}
			conn, err = c.reconnect(ctx)
			if err != nil {
				c.logger.Error("reconnect exhausted", "error", err)
				return
			}
			continue
		}

		switch frameType {
		case protocol.FrameJSONPacket:
			pkt, err := protocol.DecodePacket(payload)
			if err != nil {
				c.logger.Warn("malformed packet from server", "error", err)
				continue
			}
			c.handlePacket(pkt)

		case protocol.FrameFileChunk:
			c.handleChunk(payload)

		default:
			c.logger.Debug("ignoring reserved frame", "type", frameType)
		}
	}
}

// handlePacket é o espelho client-side da tabela de dispatch do server.
func (c *Client) handlePacket(pkt *protocol.Packet) {
	switch pkt.Code {
	case protocol.CodeConnectSuccess:
		var p protocol.ConnectSuccess
		if pkt.Decode(&p) == nil && c.handlers.OnConnected != nil {
			c.handlers.OnConnected(p.Message)
		}

	case protocol.CodeRegisterNameSuccess:
		var p protocol.RegisterNameSuccess
		if pkt.Decode(&p) != nil {
			return
		}
		c.mu.Lock()
		c.registered = true
		c.name = p.Name
		c.mu.Unlock()
		if c.handlers.OnRegistered != nil {
			c.handlers.OnRegistered(p.ID, p.Name)
		}

	case protocol.CodeNameCannotBeBlank, protocol.CodeNameCannotBeDuplicated:
		var p protocol.NameCannotBeBlank
		if pkt.Decode(&p) == nil && c.handlers.OnNameRejected != nil {
			c.handlers.OnNameRejected(p.Message)
		}

	case protocol.CodeUpdateNameSuccess:
		var p protocol.UpdateNameSuccess
		if pkt.Decode(&p) != nil {
			return
		}
		// O mesmo packet chega para quem trocou e para os demais; nomes
		// são únicos, então oldName == meu nome identifica o self.
		c.mu.Lock()
		if c.name == p.OldName {
			c.name = p.NewName
		}
		c.mu.Unlock()
		if c.handlers.OnNameUpdated != nil {
			c.handlers.OnNameUpdated(p.OldName, p.NewName)
		}

	case protocol.CodeUserEntered:
		var p protocol.UserEntered
		if pkt.Decode(&p) == nil && c.handlers.OnUserEntered != nil {
			c.handlers.OnUserEntered(p.ID, p.Name)
		}

	case protocol.CodeChatMessage:
		var p protocol.ChatMessage
		if pkt.Decode(&p) == nil && c.handlers.OnChat != nil {
			c.handlers.OnChat(p.Sender, p.Message)
		}

	case protocol.CodeServerInfo:
		var p protocol.ServerInfo
		if pkt.Decode(&p) == nil && c.handlers.OnServerInfo != nil {
			c.handlers.OnServerInfo(p.Message)
		}

	case protocol.CodeWhisperToTarget:
		var p protocol.WhisperToTarget
		if pkt.Decode(&p) == nil && c.handlers.OnWhisper != nil {
			c.handlers.OnWhisper(p.Sender, p.Message)
		}

	case protocol.CodeWhisperToSender:
		var p protocol.WhisperToSender
		if pkt.Decode(&p) == nil && c.handlers.OnWhisperSent != nil {
			c.handlers.OnWhisperSent(p.Target, p.Message)
		}

	case protocol.CodeUserNotExists:
		var p protocol.UserNotExists
		if pkt.Decode(&p) == nil && c.handlers.OnUserNotExists != nil {
			c.handlers.OnUserNotExists(p.Message)
		}

	case protocol.CodeDisconnectInfo:
		var p protocol.DisconnectInfo
		if pkt.Decode(&p) == nil && c.handlers.OnDisconnectInfo != nil {
			c.handlers.OnDisconnectInfo(p.Target, p.Sent, p.Received)
		}

	case protocol.CodeFileSendRequest:
		var p protocol.FileSendRequest
		if pkt.Decode(&p) == nil {
			c.openIncoming(p)
		}

	case protocol.CodeFileSendComplete:
		var p protocol.FileSendComplete
		if pkt.Decode(&p) == nil {
			c.finishIncoming(p.TransferID)
		}

	default:
		c.logger.Debug("ignoring unexpected packet", "code", pkt.Code.String())
	}
}

// openIncoming cria o contexto de recepção para um FILE_SEND_REQUEST.
func (c *Client) openIncoming(req protocol.FileSendRequest) {
	sink, err := c.sinks.Create(req.FileName, req.FileSize)
	if err != nil {
		c.logger.Error("creating download sink", "file", req.FileName, "error", err)
		return
	}

	c.mu.Lock()
	c.incoming[req.TransferID] = &incomingTransfer{
		fileName: req.FileName,
		total:    req.FileSize,
		sink:     sink,
	}
	c.mu.Unlock()

	c.logger.Info("incoming transfer", "transfer", req.TransferID, "file", req.FileName, "size", req.FileSize)
	if c.handlers.OnFileOffer != nil {
		c.handlers.OnFileOffer(req.FileName, req.FileSize)
	}
}

// handleChunk grava o payload de um FILE_CHUNK no sink da transferência.
func (c *Client) handleChunk(payload []byte) {
	chunk, err := protocol.DecodeFileChunk(payload)
	if err != nil {
		c.logger.Warn("malformed file chunk", "error", err)
		return
	}

	c.mu.Lock()
	t := c.incoming[chunk.TransferID]
	c.mu.Unlock()
	if t == nil {
		c.logger.Warn("chunk for unknown transfer, dropping", "transfer", chunk.TransferID)
		return
	}

	if _, err := t.sink.Write(chunk.Data); err != nil {
		c.logger.Error("writing download", "transfer", chunk.TransferID, "error", err)
		t.sink.Abort()
		c.mu.Lock()
		delete(c.incoming, chunk.TransferID)
		c.mu.Unlock()
		return
	}

	t.received += int64(len(chunk.Data))
	if t.total > 0 && t.received >= t.total {
		c.finishIncoming(chunk.TransferID)
	}
}

// finishIncoming fecha o contexto de recepção e comita o arquivo.
// Idempotente: o fluxo normal passa por aqui duas vezes (received>=total
// e depois FILE_SEND_COMPLETE).
func (c *Client) finishIncoming(transferID string) {
	c.mu.Lock()
	t := c.incoming[transferID]
	delete(c.incoming, transferID)
	c.mu.Unlock()
	if t == nil {
		return
	}

	path, err := t.sink.Commit()
	if err != nil {
		c.logger.Error("committing download", "transfer", transferID, "error", err)
		return
	}

	c.logger.Info("transfer received", "transfer", transferID, "file", t.fileName, "bytes", t.received)
	if c.handlers.OnFileReceived != nil {
		c.handlers.OnFileReceived(t.fileName, path, t.received)
	}
}

// abortIncoming descarta todas as transferências em andamento (conexão
// caiu no meio; transferências não são retomáveis).
func (c *Client) abortIncoming() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.incoming {
		t.sink.Abort()
		delete(c.incoming, id)
	}
}

// Register envia REGISTER_NAME. A confirmação chega via OnRegistered.
func (c *Client) Register(name string) error {
	conn, err := c.currentConn()
	if err != nil {
		return err
	}
	return conn.WritePacket(protocol.CodeRegisterName, protocol.RegisterName{Name: name})
}

// UpdateName envia UPDATE_NAME. A confirmação chega via OnNameUpdated.
func (c *Client) UpdateName(newName string) error {
	conn, err := c.currentConn()
	if err != nil {
		return err
	}
	return conn.WritePacket(protocol.CodeUpdateName, protocol.UpdateName{NewName: newName})
}

// Chat envia uma mensagem pública. O sender vai vazio: o server reescreve
// com o nome autoritativo.
func (c *Client) Chat(message string) error {
	conn, err := c.currentConn()
	if err != nil {
		return err
	}
	return conn.WritePacket(protocol.CodeChatMessage, protocol.ChatMessage{Message: message})
}

// Whisper envia uma mensagem direta para target.
func (c *Client) Whisper(target, message string) error {
	conn, err := c.currentConn()
	if err != nil {
		return err
	}
	return conn.WritePacket(protocol.CodeWhisper, protocol.Whisper{Target: target, Message: message})
}

// errNotRegistered padroniza a validação local de comandos que exigem
// registro prévio. O server é a autoridade; isso apenas poupa uma ida.
var errNotRegistered = errors.New("client: register a name first with /n <name>")
