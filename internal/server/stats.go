// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// StartStatsReporter loga métricas do server a cada intervalo: sessões,
// packets e chunks desde o último tick (swap-and-reset) e um snapshot do
// sistema (CPU, memória, load). Bloqueia até o context ser cancelado.
func (srv *Server) StartStatsReporter(ctx context.Context, interval time.Duration) {
	logger := srv.logger.With("component", "stats")
	logger.Info("stats reporter started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Os contadores globais são cumulativos (a API de métricas os serve);
	// o reporter deriva o delta do intervalo a partir da última leitura.
	var lastPackets, lastChunks, lastBytes int64

	for {
		select {
		case <-ctx.Done():
			logger.Info("stats reporter stopped")
			return
		case <-ticker.C:
			totalPackets := srv.metrics.PacketsIn.Load()
			totalChunks := srv.metrics.ChunksRelayed.Load()
			totalBytes := srv.metrics.BytesRelayed.Load()

			packets := totalPackets - lastPackets
			chunks := totalChunks - lastChunks
			bytes := totalBytes - lastBytes
			lastPackets, lastChunks, lastBytes = totalPackets, totalChunks, totalBytes

			secs := interval.Seconds()
			relayMBps := float64(bytes) / secs / (1024 * 1024)

			attrs := []any{
				"uptime_seconds", int64(time.Since(srv.startTime).Seconds()),
				"conns", srv.metrics.ActiveConns.Load(),
				"named", srv.registry.NamedCount(),
				"packets", packets,
				"chunks", chunks,
				"relay_MBps", fmt.Sprintf("%.2f", relayMBps),
			}
			attrs = append(attrs, systemAttrs()...)

			logger.Info("server stats", attrs...)
		}
	}
}

// systemAttrs coleta um snapshot pontual do sistema. Falhas de coleta
// apenas omitem o atributo correspondente.
func systemAttrs() []any {
	var attrs []any

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		attrs = append(attrs, "cpu_pct", fmt.Sprintf("%.1f", pct[0]))
	}
	if v, err := mem.VirtualMemory(); err == nil {
		attrs = append(attrs, "mem_pct", fmt.Sprintf("%.1f", v.UsedPercent))
	}
	if l, err := load.Avg(); err == nil {
		attrs = append(attrs, "load1", fmt.Sprintf("%.2f", l.Load1))
	}

	return attrs
}
