// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package observability

// HealthResponse é retornado por GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
	Go      string `json:"go"`
}

// MetricsData é o snapshot de métricas coletado do server.
// Desacopla este pacote do server: o router só conhece a interface
// MetricsSource.
type MetricsData struct {
	ActiveConns   int32
	NamedSessions int
	PacketsIn     int64
	ChunksRelayed int64
	BytesRelayed  int64
	UptimeSeconds int64
}

// MetricsResponse é retornado por GET /api/v1/metrics.
type MetricsResponse struct {
	ActiveConns   int32 `json:"active_conns"`
	NamedSessions int   `json:"named_sessions"`
	PacketsIn     int64 `json:"packets_in"`
	ChunksRelayed int64 `json:"chunks_relayed"`
	BytesRelayed  int64 `json:"bytes_relayed"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// SessionSummary é um item da lista de GET /api/v1/sessions.
type SessionSummary struct {
	SessionID       string `json:"session_id"`
	Name            string `json:"name,omitempty"` // vazio até o REGISTER_NAME
	RemoteAddr      string `json:"remote_addr"`
	ConnectedAt     string `json:"connected_at"`
	Sent            int64  `json:"sent"`
	Received        int64  `json:"received"`
	ActiveTransfers int    `json:"active_transfers"`
}

// EventEntry representa um evento operacional no ring buffer e no JSONL.
type EventEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"` // info | warn | error
	Type      string `json:"type"`  // connect | register | rename | disconnect | transfer_start | transfer_end | backpressure | protocol_error
	Client    string `json:"client,omitempty"` // id da sessão
	Name      string `json:"name,omitempty"`   // nome registrado no momento do evento
	Message   string `json:"message"`
}
