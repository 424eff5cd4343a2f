// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// StoreConfig parametriza o EventStore.
type StoreConfig struct {
	Path        string // arquivo JSONL de eventos
	RingCap     int    // capacidade do ring in-memory
	MaxLines    int    // linhas no arquivo antes da rotação
	ArchiveExt  string // ".jsonl.gz" ou ".jsonl.zst"
	MaxArchives int    // archives retidos após a rotação
}

// EventStore combina um EventRing (in-memory) com persistência em arquivo JSONL.
// Cada Push() faz append de uma linha JSON ao arquivo. No startup, as últimas
// entradas são carregadas para popular o ring buffer.
//
// Rotação: quando o arquivo atinge MaxLines, ele vira um archive comprimido
// com timestamp no nome (ver archive.go) e um arquivo novo começa do zero.
// Archives além de MaxArchives são removidos, do mais antigo para o mais novo.
type EventStore struct {
	ring *EventRing
	cfg  StoreConfig

	mu        sync.Mutex // protege writes e rotação no arquivo
	file      *os.File
	lineCount int
}

// NewEventStore abre (ou cria) o arquivo JSONL e carrega as últimas entradas
// para popular o ring buffer.
func NewEventStore(cfg StoreConfig) (*EventStore, error) {
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = 10000
	}
	if cfg.MaxArchives <= 0 {
		cfg.MaxArchives = 5
	}
	if cfg.ArchiveExt == "" {
		cfg.ArchiveExt = ".jsonl.gz"
	}

	ring := NewEventRing(cfg.RingCap)

	// Carrega eventos existentes do arquivo
	entries, lineCount, err := loadJSONL(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("loading events file: %w", err)
	}

	// Popula o ring com as últimas entradas (limitado pela capacidade)
	start := 0
	if len(entries) > cfg.RingCap && cfg.RingCap > 0 {
		start = len(entries) - cfg.RingCap
	}
	for _, e := range entries[start:] {
		ring.Push(e)
	}

	// Abre o arquivo para append
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening events file for append: %w", err)
	}

	return &EventStore{
		ring:      ring,
		cfg:       cfg,
		file:      f,
		lineCount: lineCount,
	}, nil
}

// loadJSONL lê o arquivo JSONL e retorna todos os EventEntry válidos.
// Linhas malformadas são ignoradas silenciosamente.
func loadJSONL(path string) ([]EventEntry, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()

	var entries []EventEntry
	lineCount := 0
	scanner := bufio.NewScanner(f)
	// Aumenta o buffer do scanner para linhas longas (1MB)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		lineCount++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e EventEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // ignora linhas corrompidas
		}
		entries = append(entries, e)
	}

	return entries, lineCount, scanner.Err()
}

// Push adiciona um evento ao ring buffer e persiste no arquivo JSONL.
// O timestamp é preenchido aqui, antes do ring: cada writer persiste o
// próprio evento, sem releitura do ring entre pushes concorrentes.
func (s *EventStore) Push(e EventEntry) {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().Format(time.RFC3339)
	}
	s.ring.Push(e)

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return
	}

	s.lineCount++
	if s.lineCount >= s.cfg.MaxLines {
		s.rotate()
	}
}

// PushEvent é um helper para criar e inserir um evento com campos comuns.
func (s *EventStore) PushEvent(level, eventType, client, name, message string) {
	s.Push(EventEntry{
		Level:   level,
		Type:    eventType,
		Client:  client,
		Name:    name,
		Message: message,
	})
}

// Recent retorna os últimos N eventos em ordem cronológica (mais antigo primeiro).
func (s *EventStore) Recent(limit int) []EventEntry {
	return s.ring.Recent(limit)
}

// Len retorna o número de eventos no ring buffer in-memory.
func (s *EventStore) Len() int {
	return s.ring.Len()
}

// Close fecha o file handle do arquivo JSONL.
func (s *EventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// rotate comprime o arquivo inteiro num archive com timestamp, recomeça o
// JSONL do zero e aplica a retenção de archives.
// Deve ser chamada com s.mu já travado.
func (s *EventStore) rotate() {
	s.file.Close()

	if _, err := compressFile(s.cfg.Path, s.cfg.ArchiveExt); err == nil {
		os.Remove(s.cfg.Path)
		pruneArchives(s.cfg.Path, s.cfg.ArchiveExt, s.cfg.MaxArchives)
	}
	// Se a compressão falhou, o arquivo original permanece e o append
	// continua nele; a próxima rotação tenta de novo.

	f, err := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	s.file = f

	_, s.lineCount, _ = loadJSONL(s.cfg.Path)
}
