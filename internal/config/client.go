// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultChunkSize é o tamanho padrão de cada chunk de transferência (64kb).
const DefaultChunkSize = 64 * 1024

// ClientConfig representa a configuração completa do nchat-client.
type ClientConfig struct {
	Client    ClientInfo     `yaml:"client"`
	Server    ServerAddr     `yaml:"server"`
	Transfer  TransferConfig `yaml:"transfer"`
	Reconnect ReconnectInfo  `yaml:"reconnect"`
	Network   NetworkConfig  `yaml:"network"`
	Logging   LoggingInfo    `yaml:"logging"`
}

// ClientInfo identifica o usuário do chat.
type ClientInfo struct {
	// Name, quando definido, é registrado automaticamente ao conectar.
	Name string `yaml:"name"`
}

// ServerAddr contém o endereço do servidor de chat.
type ServerAddr struct {
	Address string `yaml:"address"`
}

// TransferConfig contém os parâmetros de envio e recepção de arquivos.
type TransferConfig struct {
	ChunkSize    string `yaml:"chunk_size"` // ex: "64kb" (default)
	ChunkSizeRaw int64  `yaml:"-"`          // valor parseado em bytes

	DownloadsDir string `yaml:"downloads_dir"` // default: "./downloads"

	// UploadRate limita a banda de upload de arquivos (bytes/s).
	// Vazio = sem limite.
	UploadRate    string `yaml:"upload_rate"` // ex: "1mb"
	UploadRateRaw int64  `yaml:"-"`
}

// ReconnectInfo contém configurações de reconexão com exponential backoff.
type ReconnectInfo struct {
	Enabled      bool          `yaml:"enabled"`
	MaxAttempts  int           `yaml:"max_attempts"`  // default: 5
	InitialDelay time.Duration `yaml:"initial_delay"` // default: 1s
	MaxDelay     time.Duration `yaml:"max_delay"`     // default: 5m
}

// NetworkConfig contém ajustes de socket do client.
type NetworkConfig struct {
	// DSCP marca os pacotes de saída (ex: "AF21", "EF"). Vazio = desabilitado.
	DSCP string `yaml:"dscp"`
}

// LoggingInfo contém configurações de logging.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// LoadClientConfig lê e valida o arquivo YAML de configuração do client.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading client config: %w", err)
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating client config: %w", err)
	}

	return &cfg, nil
}

// DefaultClientConfig retorna a configuração default apontando para address,
// para rodar o client sem arquivo de configuração.
func DefaultClientConfig(address string) *ClientConfig {
	cfg := &ClientConfig{}
	cfg.Server.Address = address
	_ = cfg.validate()
	return cfg
}

func (c *ClientConfig) validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}

	// Chunk size: default 64kb, limitado para caber com folga no frame.
	if c.Transfer.ChunkSize == "" {
		c.Transfer.ChunkSize = "64kb"
	}
	parsed, err := ParseByteSize(c.Transfer.ChunkSize)
	if err != nil {
		return fmt.Errorf("transfer.chunk_size: %w", err)
	}
	if parsed < 1024 {
		return fmt.Errorf("transfer.chunk_size must be at least 1kb, got %s", c.Transfer.ChunkSize)
	}
	if parsed > 8*1024*1024 {
		return fmt.Errorf("transfer.chunk_size must be at most 8mb, got %s", c.Transfer.ChunkSize)
	}
	c.Transfer.ChunkSizeRaw = parsed

	if c.Transfer.DownloadsDir == "" {
		c.Transfer.DownloadsDir = "./downloads"
	}

	if c.Transfer.UploadRate != "" {
		rate, err := ParseByteSize(c.Transfer.UploadRate)
		if err != nil {
			return fmt.Errorf("transfer.upload_rate: %w", err)
		}
		if rate <= 0 {
			return fmt.Errorf("transfer.upload_rate must be > 0, got %s", c.Transfer.UploadRate)
		}
		c.Transfer.UploadRateRaw = rate
	}

	if c.Reconnect.MaxAttempts <= 0 {
		c.Reconnect.MaxAttempts = 5
	}
	if c.Reconnect.InitialDelay <= 0 {
		c.Reconnect.InitialDelay = 1 * time.Second
	}
	if c.Reconnect.MaxDelay <= 0 {
		c.Reconnect.MaxDelay = 5 * time.Minute
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		// O client loga no terminal do usuário; text é mais legível.
		c.Logging.Format = "text"
	}

	return nil
}

// ParseByteSize converte strings human-readable como "256mb", "1gb" para bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Ordenado do sufixo mais longo para o mais curto
	// para evitar que "mb" matche como "b"
	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	// Tenta interpretar como número puro (bytes)
	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}
