// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package client implementa o lado client do N-Chat (nchat-client): a
// máquina de estados espelho da sessão, o parser de comandos e o envio e
// recepção de arquivos. A apresentação (render no terminal) fica fora:
// o package entrega eventos por callbacks.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nishisan-dev/n-chat/internal/config"
	"github.com/nishisan-dev/n-chat/internal/protocol"
	"github.com/nishisan-dev/n-chat/internal/transport"
)

// ErrExit sinaliza que o usuário pediu para sair (comando "exit").
var ErrExit = errors.New("client: exit requested")

// Handlers agrupa os callbacks de apresentação. Callbacks nil são
// ignorados. Todos são invocados pela goroutine de leitura: devem ser
// rápidos ou despachar para outra goroutine.
type Handlers struct {
	OnConnected      func(message string)
	OnRegistered     func(id, name string)
	OnNameRejected   func(reason string)
	OnNameUpdated    func(oldName, newName string)
	OnUserEntered    func(id, name string)
	OnChat           func(sender, message string)
	OnWhisper        func(sender, message string)
	OnWhisperSent    func(target, message string)
	OnServerInfo     func(message string)
	OnUserNotExists  func(message string)
	OnDisconnectInfo func(name string, sent, received int64)
	OnFileOffer      func(fileName string, size int64)
	OnFileReceived   func(fileName, path string, size int64)
	OnDropped        func(err error) // conexão caiu; reconexão pode seguir
	OnReconnected    func(attempt int)
	OnCommandError   func(err error) // comando local inválido ou falha de envio
}

// Client mantém uma conexão com o servidor de chat e o estado espelho da
// sessão: flag de registro, nome aceito e transferências em andamento.
type Client struct {
	cfg      *config.ClientConfig
	logger   *slog.Logger
	handlers Handlers
	sinks    SinkFactory

	// uploadLimiter aplica o upload_rate da config aos chunks enviados.
	// nil = sem limite.
	uploadLimiter *rate.Limiter

	mu         sync.Mutex
	conn       *transport.Conn
	registered bool
	name       string // último nome aceito pelo server; re-registrado no reconnect
	incoming   map[string]*incomingTransfer

	closed chan struct{}
	once   sync.Once

	readerDone sync.WaitGroup
}

// New cria um Client. sinks decide onde arquivos recebidos são gravados;
// nil usa o DirSink default apontando para transfer.downloads_dir.
func New(cfg *config.ClientConfig, handlers Handlers, sinks SinkFactory, logger *slog.Logger) *Client {
	if sinks == nil {
		sinks = NewDirSink(cfg.Transfer.DownloadsDir)
	}

	c := &Client{
		cfg:      cfg,
		logger:   logger,
		handlers: handlers,
		sinks:    sinks,
		incoming: make(map[string]*incomingTransfer),
		closed:   make(chan struct{}),
	}
	if cfg.Transfer.UploadRateRaw > 0 {
		c.uploadLimiter = newUploadLimiter(cfg.Transfer.UploadRateRaw)
	}
	return c
}

// Connect disca para o servidor e inicia a goroutine de leitura.
// Se client.name estiver na config, o registro é enviado em seguida.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.readerDone.Add(1)
	go c.readLoop(ctx, conn)

	if name := strings.TrimSpace(c.cfg.Client.Name); name != "" {
		if err := c.Register(name); err != nil {
			return err
		}
	}
	return nil
}

// dial abre a conexão TCP, aplica o DSCP configurado e embrulha no
// transporte single-writer.
func (c *Client) dial(ctx context.Context) (*transport.Conn, error) {
	dialer := &net.Dialer{}
	nc, err := dialer.DialContext(ctx, "tcp", c.cfg.Server.Address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.cfg.Server.Address, err)
	}

	if c.cfg.Network.DSCP != "" {
		dscp, err := ParseDSCP(c.cfg.Network.DSCP)
		if err != nil {
			nc.Close()
			return nil, err
		}
		if err := ApplyDSCP(nc, dscp); err != nil {
			// QoS é best-effort: segue sem a marcação.
			c.logger.Warn("applying DSCP", "error", err)
		}
	}

	c.logger.Info("connected", "server", c.cfg.Server.Address)
	return transport.New(nc, transport.DefaultQueueSize, transport.DefaultOfferTimeout, c.logger), nil
}

// reconnect redisca com exponential backoff e re-registra o último nome
// aceito. Retorna a nova conexão, ou erro quando as tentativas esgotam.
func (c *Client) reconnect(ctx context.Context) (*transport.Conn, error) {
	delay := c.cfg.Reconnect.InitialDelay

	for attempt := 1; attempt <= c.cfg.Reconnect.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.closed:
			return nil, ErrExit
		case <-time.After(delay):
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			delay *= 2
			if delay > c.cfg.Reconnect.MaxDelay {
				delay = c.cfg.Reconnect.MaxDelay
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.registered = false
		name := c.name
		c.mu.Unlock()

		if c.handlers.OnReconnected != nil {
			c.handlers.OnReconnected(attempt)
		}

		if name != "" {
			if err := conn.WritePacket(protocol.CodeRegisterName, protocol.RegisterName{Name: name}); err != nil {
				c.logger.Warn("re-registering name", "error", err)
			}
		}
		return conn, nil
	}

	return nil, fmt.Errorf("client: giving up after %d reconnect attempts", c.cfg.Reconnect.MaxAttempts)
}

// Close encerra o client: envia DISCONNECT_REQUEST best-effort, fecha a
// conexão e espera a goroutine de leitura. Idempotente.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)

		c.mu.Lock()
		conn := c.conn
		for id, t := range c.incoming {
			t.sink.Abort()
			delete(c.incoming, id)
		}
		c.mu.Unlock()

		if conn != nil {
			conn.WritePacket(protocol.CodeDisconnectRequest, protocol.DisconnectRequest{})
			// Dá uma folga para o writer drenar o DISCONNECT_REQUEST.
			time.Sleep(50 * time.Millisecond)
			conn.Close()
		}
	})
	c.readerDone.Wait()
}

// currentConn retorna a conexão ativa, ou erro se o client já fechou.
func (c *Client) currentConn() (*transport.Conn, error) {
	select {
	case <-c.closed:
		return nil, ErrExit
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, errors.New("client: not connected")
	}
	return c.conn, nil
}

// Registered reporta se o server já aceitou um nome nesta conexão.
func (c *Client) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

// Name retorna o último nome aceito pelo server.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}
