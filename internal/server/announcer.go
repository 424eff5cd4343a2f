// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nishisan-dev/n-chat/internal/config"
	"github.com/nishisan-dev/n-chat/internal/protocol"
	"github.com/nishisan-dev/n-chat/internal/transport"
)

// Announcer envia anúncios periódicos (SERVER_INFO) a todas as sessões
// conectadas, segundo as expressões cron da config.
type Announcer struct {
	cron     *cron.Cron
	registry *Registry
	logger   *slog.Logger
}

// StartAnnouncer registra cada entrada de anúncio no cron e o inicia.
func StartAnnouncer(entries []config.AnnouncementEntry, registry *Registry, logger *slog.Logger) (*Announcer, error) {
	a := &Announcer{
		registry: registry,
		logger:   logger.With("component", "announcer"),
	}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(a.logger.Handler(), slog.LevelDebug))))
	for _, entry := range entries {
		message := entry.Message
		if _, err := c.AddFunc(entry.Schedule, func() {
			a.announce(message)
		}); err != nil {
			return nil, err
		}
	}

	a.cron = c
	c.Start()
	a.logger.Info("announcer started", "entries", len(entries))
	return a, nil
}

// announce codifica o SERVER_INFO uma vez e enfileira em todas as sessões.
func (a *Announcer) announce(message string) {
	payload, err := protocol.EncodePacket(protocol.CodeServerInfo, protocol.ServerInfo{Message: message})
	if err != nil {
		a.logger.Error("encoding announcement", "error", err)
		return
	}

	sessions := a.registry.SnapshotExcept("")
	for _, s := range sessions {
		if err := s.conn.WriteRawPacket(payload); err != nil {
			// Fila cheia = conexão doente: fecha, como no fan-out de chat.
			// O read loop da própria sessão cuida do cleanup.
			if errors.Is(err, transport.ErrBackpressure) {
				a.logger.Warn("announcement backpressure, closing connection", "client", s.id)
				s.conn.Close()
				continue
			}
			a.logger.Debug("announcement enqueue failed", "client", s.id, "error", err)
		}
	}

	a.logger.Info("announcement sent", "recipients", len(sessions))
}

// Stop para o cron e aguarda anúncios em andamento.
func (a *Announcer) Stop() {
	stopCtx := a.cron.Stop()
	select {
	case <-stopCtx.Done():
		a.logger.Info("announcer stopped")
	case <-time.After(5 * time.Second):
		a.logger.Warn("announcer stop timed out")
	}
}
