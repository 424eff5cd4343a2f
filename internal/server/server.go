// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package server implementa o servidor de chat (nchat-server): accept
// loop, registry de sessões, máquina de estados por client e o relay de
// transferências de arquivo.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nishisan-dev/n-chat/internal/config"
	"github.com/nishisan-dev/n-chat/internal/logging"
	"github.com/nishisan-dev/n-chat/internal/server/observability"
	"github.com/nishisan-dev/n-chat/internal/transport"
)

// Metrics acumula os contadores observáveis do server. Os campos de
// tráfego são lidos com swap-and-reset pelo stats reporter e lidos sem
// zerar pelos snapshots da API HTTP.
type Metrics struct {
	ActiveConns   atomic.Int32
	PacketsIn     atomic.Int64 // packets de controle recebidos
	ChunksRelayed atomic.Int64 // frames FILE_CHUNK repassados
	BytesRelayed  atomic.Int64 // bytes de payload FILE_CHUNK repassados
}

// Server é o processo de chat: registry compartilhado, métricas e os
// serviços auxiliares (announcer, stats, API de observabilidade).
type Server struct {
	cfg      *config.ServerConfig
	logger   *slog.Logger
	registry *Registry
	events   *observability.EventStore // nil quando web_ui está desabilitado
	metrics  Metrics

	startTime time.Time
}

// New cria um Server a partir da configuração validada.
func New(cfg *config.ServerConfig, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		registry:  NewRegistry(),
		startTime: time.Now(),
	}
}

// Registry expõe o registry de sessões (usado pela API de observabilidade
// e por testes).
func (srv *Server) Registry() *Registry { return srv.registry }

// Run abre o listener TCP e bloqueia até o context ser cancelado.
func (srv *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", srv.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", srv.cfg.Server.Listen, err)
	}
	srv.logger.Info("server listening", "address", srv.cfg.Server.Listen)
	return srv.RunWithListener(ctx, ln)
}

// RunWithListener roda o server sobre um listener já aberto (testes usam
// listeners em porta efêmera). Inicia os serviços auxiliares conforme a
// config e entra no accept loop até o context ser cancelado.
func (srv *Server) RunWithListener(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	if srv.cfg.WebUI.Enabled {
		stop, err := srv.startObservability()
		if err != nil {
			return err
		}
		defer stop()
	}

	if len(srv.cfg.Announcements) > 0 {
		announcer, err := StartAnnouncer(srv.cfg.Announcements, srv.registry, srv.logger)
		if err != nil {
			return fmt.Errorf("starting announcer: %w", err)
		}
		defer announcer.Stop()
	}

	if srv.cfg.Stats.Enabled {
		go srv.StartStatsReporter(ctx, srv.cfg.Stats.Interval)
	}

	// Fecha o listener quando o context for cancelado, soltando o Accept.
	go func() {
		<-ctx.Done()
		srv.logger.Info("shutting down server")
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				srv.logger.Info("server shutdown complete")
				return nil
			default:
				srv.logger.Error("accepting connection", "error", err)
				continue
			}
		}

		srv.acceptSession(conn)
	}
}

// acceptSession cria a sessão de uma conexão aceita e dispara a goroutine
// de leitura. A sessão entra no registry antes de qualquer I/O.
func (srv *Server) acceptSession(nc net.Conn) {
	id := uuid.NewString()

	logger, logCloser, _, err := logging.NewSessionLogger(srv.logger, srv.cfg.Server.SessionLogDir, id)
	if err != nil {
		// Log por sessão é acessório: segue com o logger global.
		srv.logger.Warn("creating session logger", "error", err)
		logger, logCloser = srv.logger, nil
	}
	logger = logger.With("client", id, "remote", nc.RemoteAddr().String())

	conn := transport.New(nc, srv.cfg.Server.QueueSize, srv.cfg.Server.OfferTimeout, logger)
	sess := newSession(id, conn, srv, logger, logCloser)

	srv.registry.Add(sess)
	srv.metrics.ActiveConns.Add(1)

	logger.Info("client connected")
	srv.pushEvent("info", "connect", id, "", "client connected from "+sess.remoteAddr)

	go sess.run()
}

// startObservability abre o event store e o listener HTTP da API.
// Retorna a função de shutdown.
func (srv *Server) startObservability() (func(), error) {
	store, err := observability.NewEventStore(observability.StoreConfig{
		Path:        srv.cfg.WebUI.EventsFile,
		RingCap:     256,
		MaxLines:    srv.cfg.WebUI.EventsMaxLines,
		ArchiveExt:  srv.cfg.WebUI.ArchiveExtension(),
		MaxArchives: srv.cfg.WebUI.MaxArchives,
	})
	if err != nil {
		return nil, fmt.Errorf("opening event store: %w", err)
	}
	srv.events = store

	acl := observability.NewACL(srv.cfg.WebUI.ParsedCIDRs)
	router := observability.NewRouter(srv, srv, store, acl)

	httpSrv := &http.Server{
		Addr:         srv.cfg.WebUI.Listen,
		Handler:      router,
		ReadTimeout:  srv.cfg.WebUI.ReadTimeout,
		WriteTimeout: srv.cfg.WebUI.WriteTimeout,
		IdleTimeout:  srv.cfg.WebUI.IdleTimeout,
	}

	go func() {
		srv.logger.Info("observability API listening", "address", srv.cfg.WebUI.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srv.logger.Error("observability API failed", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
		store.Close()
	}, nil
}

// pushEvent registra um evento operacional no event store, se houver um.
func (srv *Server) pushEvent(level, eventType, clientID, name, message string) {
	if srv.events == nil {
		return
	}
	srv.events.PushEvent(level, eventType, clientID, name, message)
}

// MetricsSnapshot implementa observability.MetricsSource.
func (srv *Server) MetricsSnapshot() observability.MetricsData {
	return observability.MetricsData{
		ActiveConns:   srv.metrics.ActiveConns.Load(),
		NamedSessions: srv.registry.NamedCount(),
		PacketsIn:     srv.metrics.PacketsIn.Load(),
		ChunksRelayed: srv.metrics.ChunksRelayed.Load(),
		BytesRelayed:  srv.metrics.BytesRelayed.Load(),
		UptimeSeconds: int64(time.Since(srv.startTime).Seconds()),
	}
}

// SessionSummaries implementa observability.SessionSource.
func (srv *Server) SessionSummaries() []observability.SessionSummary {
	sessions := srv.registry.SnapshotExcept("")
	out := make([]observability.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		transfers := 0
		s.transfers.Range(func(_, _ any) bool {
			transfers++
			return true
		})
		out = append(out, observability.SessionSummary{
			SessionID:       s.id,
			Name:            srv.registry.NameOf(s),
			RemoteAddr:      s.remoteAddr,
			ConnectedAt:     s.connectedAt.Format(time.RFC3339),
			Sent:            s.sent.Load(),
			Received:        s.received.Load(),
			ActiveTransfers: transfers,
		})
	}
	return out
}
