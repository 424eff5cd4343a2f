// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink recebe os bytes de uma transferência e decide o destino final.
// Write acumula dados; Commit efetiva (e retorna o caminho final);
// Abort descarta tudo.
type Sink interface {
	Write(p []byte) (int, error)
	Commit() (string, error)
	Abort()
}

// SinkFactory cria um Sink por transferência recebida.
type SinkFactory interface {
	Create(fileName string, size int64) (Sink, error)
}

// DirSink é a SinkFactory default: grava em um diretório de downloads,
// com escrita em arquivo temporário (.part) + rename no Commit e desvio
// de colisão de nomes ("x.bin", "x (1).bin", ...).
type DirSink struct {
	dir string
}

// NewDirSink cria a factory apontando para dir. O diretório é criado
// sob demanda, no primeiro download.
func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

// Create abre o sink de um novo download.
func (d *DirSink) Create(fileName string, size int64) (Sink, error) {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return nil, fmt.Errorf("creating downloads directory %s: %w", d.dir, err)
	}

	// Só o nome base entra: um peer malicioso não escolhe o diretório.
	final := avoidCollision(d.dir, sanitizeFileName(fileName))
	tmp := final + ".part"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", tmp, err)
	}

	return &fileSink{file: f, tmpPath: tmp, finalPath: final}, nil
}

// fileSink implementa Sink sobre um arquivo temporário.
type fileSink struct {
	file      *os.File
	tmpPath   string
	finalPath string
}

func (s *fileSink) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

// Commit fecha o temporário e o move para o nome final.
func (s *fileSink) Commit() (string, error) {
	if err := s.file.Close(); err != nil {
		os.Remove(s.tmpPath)
		return "", fmt.Errorf("closing %s: %w", s.tmpPath, err)
	}
	if err := os.Rename(s.tmpPath, s.finalPath); err != nil {
		os.Remove(s.tmpPath)
		return "", fmt.Errorf("renaming %s: %w", s.tmpPath, err)
	}
	return s.finalPath, nil
}

// Abort fecha e remove o temporário.
func (s *fileSink) Abort() {
	s.file.Close()
	os.Remove(s.tmpPath)
}

// sanitizeFileName reduz um nome vindo do wire a um nome base inofensivo.
func sanitizeFileName(name string) string {
	name = filepath.Base(filepath.Clean(name))
	if name == "." || name == ".." || name == string(filepath.Separator) || name == "" {
		return "download"
	}
	return name
}

// avoidCollision devolve um caminho livre no diretório: "x.bin",
// "x (1).bin", "x (2).bin", ...
func avoidCollision(dir, name string) string {
	path := filepath.Join(dir, name)
	if free(path) {
		return path
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if free(candidate) {
			return candidate
		}
	}
}

// free considera ocupado tanto o nome final quanto o .part de um
// download ainda em andamento para o mesmo destino.
func free(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return false
	}
	if _, err := os.Stat(path + ".part"); err == nil {
		return false
	}
	return true
}
