// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package transport implementa a disciplina de single-writer sobre um
// net.Conn: producers concorrentes enfileiram frames prontos numa fila
// limitada e uma única goroutine de escrita drena a fila. Nenhum outro
// código toca o lado de escrita do socket, o que garante que frames
// nunca se intercalam no wire.
package transport

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/nishisan-dev/n-chat/internal/protocol"
)

// Defaults do transporte.
const (
	// DefaultQueueSize é a capacidade da fila de saída por conexão.
	DefaultQueueSize = 256

	// DefaultOfferTimeout é o tempo máximo que um producer espera por
	// espaço na fila antes de falhar com ErrBackpressure.
	DefaultOfferTimeout = 3 * time.Second

	// drainTimeout limita o flush final da fila após o Close.
	drainTimeout = 2 * time.Second

	// readBufferSize é o tamanho do bufio.Reader do lado de leitura.
	readBufferSize = 64 * 1024
)

// Erros do transporte.
var (
	ErrBackpressure = errors.New("transport: outbound queue full")
	ErrClosed       = errors.New("transport: connection closed")
)

// frame é o item da fila de saída: um payload já codificado, pronto para
// ser emitido como um frame completo.
type frame struct {
	frameType byte
	payload   []byte
}

// Conn envolve um net.Conn com uma fila de saída limitada e a goroutine
// de escrita dedicada. O lado de leitura é síncrono e pertence a uma
// única goroutine (a sessão dona da conexão).
type Conn struct {
	nc     net.Conn
	reader *bufio.Reader
	logger *slog.Logger

	queue        chan frame
	offerTimeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// New cria a Conn e inicia a goroutine de escrita.
// queueSize e offerTimeout <= 0 assumem os defaults.
func New(nc net.Conn, queueSize int, offerTimeout time.Duration, logger *slog.Logger) *Conn {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if offerTimeout <= 0 {
		offerTimeout = DefaultOfferTimeout
	}

	c := &Conn{
		nc:           nc,
		reader:       bufio.NewReaderSize(nc, readBufferSize),
		logger:       logger,
		queue:        make(chan frame, queueSize),
		offerTimeout: offerTimeout,
		done:         make(chan struct{}),
	}

	go c.writeLoop()
	return c
}

// writeLoop é a única goroutine que escreve no socket.
// Sai quando a conexão é fechada ou quando uma escrita falha.
func (c *Conn) writeLoop() {
	defer c.nc.Close()

	for {
		select {
		case <-c.done:
			c.drain()
			return
		case f := <-c.queue:
			if err := protocol.WriteFrame(c.nc, f.frameType, f.payload); err != nil {
				c.logger.Debug("connection write failed", "remote", c.RemoteAddr(), "error", err)
				c.Close()
				return
			}
		}
	}
}

// drain dá melhor esforço aos frames que já estavam na fila no momento do
// Close (o DISCONNECT_INFO final chega por aqui). O write deadline setado
// pelo Close limita o tempo total.
func (c *Conn) drain() {
	for {
		select {
		case f := <-c.queue:
			if err := protocol.WriteFrame(c.nc, f.frameType, f.payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

// offer enfileira um frame respeitando o timeout de backpressure.
func (c *Conn) offer(f frame) error {
	// Caminho rápido: fila com espaço, sem alocar timer.
	select {
	case <-c.done:
		return ErrClosed
	case c.queue <- f:
		return nil
	default:
	}

	timer := time.NewTimer(c.offerTimeout)
	defer timer.Stop()

	select {
	case <-c.done:
		return ErrClosed
	case c.queue <- f:
		return nil
	case <-timer.C:
		return ErrBackpressure
	}
}

// WritePacket codifica um DTO de controle e enfileira o frame JSON_PACKET.
// Seguro para chamadas concorrentes.
func (c *Conn) WritePacket(code protocol.PacketCode, body any) error {
	payload, err := protocol.EncodePacket(code, body)
	if err != nil {
		return err
	}
	return c.offer(frame{protocol.FrameJSONPacket, payload})
}

// WriteFileChunk codifica um chunk e enfileira o frame FILE_CHUNK.
func (c *Conn) WriteFileChunk(chunk protocol.FileChunk) error {
	payload, err := protocol.EncodeFileChunk(chunk)
	if err != nil {
		return err
	}
	return c.offer(frame{protocol.FrameFileChunk, payload})
}

// WriteRawChunk enfileira um payload FILE_CHUNK já codificado.
// É o caminho do relay do server: os bytes do sender são repassados ao
// destinatário sem decodificar.
func (c *Conn) WriteRawChunk(payload []byte) error {
	return c.offer(frame{protocol.FrameFileChunk, payload})
}

// WriteRawPacket enfileira um payload JSON_PACKET já codificado.
// Broadcasts codificam o packet uma vez e enfileiram o mesmo payload em
// cada peer.
func (c *Conn) WriteRawPacket(payload []byte) error {
	return c.offer(frame{protocol.FrameJSONPacket, payload})
}

// ReadFrame lê o próximo frame do socket. Exclusivo da goroutine dona da
// conexão; bloqueia até dados, EOF ou erro. Um Close concorrente solta a
// leitura bloqueada.
func (c *Conn) ReadFrame() (byte, []byte, error) {
	return protocol.ReadFrame(c.reader)
}

// Close encerra a conexão: producers passam a falhar com ErrClosed, uma
// leitura bloqueada é solta imediatamente e o writer faz o flush final do
// que já estava na fila antes de fechar o socket. Idempotente.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		now := time.Now()
		c.nc.SetReadDeadline(now)
		c.nc.SetWriteDeadline(now.Add(drainTimeout))
	})
	return nil
}

// Closed reporta se a conexão já foi fechada.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// RemoteAddr retorna o endereço do peer.
func (c *Conn) RemoteAddr() string {
	if addr := c.nc.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
