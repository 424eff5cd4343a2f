// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package observability

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"time"
)

// startTime registra quando o processo iniciou (para cálculo de uptime).
var startTime = time.Now()

// Version é preenchida via ldflags no build (-X ...Version=x.y.z).
var Version = "dev"

// MetricsSource é a visão read-only que o router precisa do server.
type MetricsSource interface {
	MetricsSnapshot() MetricsData
}

// SessionSource lista as sessões ativas do registry.
type SessionSource interface {
	SessionSummaries() []SessionSummary
}

// NewRouter cria o http.Handler da API de observabilidade.
// Aplica o middleware de ACL em todas as rotas.
func NewRouter(metrics MetricsSource, sessions SessionSource, events *EventStore, acl *ACL) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", handleHealth)
	mux.HandleFunc("GET /api/v1/metrics", makeMetricsHandler(metrics))
	mux.HandleFunc("GET /api/v1/sessions", makeSessionsHandler(sessions))
	mux.HandleFunc("GET /api/v1/events", makeEventsHandler(events))

	return acl.Middleware(mux)
}

// handleHealth retorna status do processo, uptime e versão.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(startTime).String(),
		Version: Version,
		Go:      runtime.Version(),
	})
}

func makeMetricsHandler(metrics MetricsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := metrics.MetricsSnapshot()
		writeJSON(w, http.StatusOK, MetricsResponse{
			ActiveConns:   data.ActiveConns,
			NamedSessions: data.NamedSessions,
			PacketsIn:     data.PacketsIn,
			ChunksRelayed: data.ChunksRelayed,
			BytesRelayed:  data.BytesRelayed,
			UptimeSeconds: data.UptimeSeconds,
		})
	}
}

func makeSessionsHandler(sessions SessionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := sessions.SessionSummaries()
		// Ordem estável para consumo humano: mais antigo primeiro.
		sort.Slice(list, func(i, j int) bool {
			return list[i].ConnectedAt < list[j].ConnectedAt
		})
		writeJSON(w, http.StatusOK, list)
	}
}

// makeEventsHandler retorna os últimos eventos; ?limit=N limita a resposta.
func makeEventsHandler(events *EventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		writeJSON(w, http.StatusOK, events.Recent(limit))
	}
}

// writeJSON serializa v como JSON e envia com status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
