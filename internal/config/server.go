// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig representa a configuração completa do nchat-server.
type ServerConfig struct {
	Server        ServerListen        `yaml:"server"`
	Announcements []AnnouncementEntry `yaml:"announcements"`
	Stats         StatsConfig         `yaml:"stats"`
	Logging       LoggingInfo         `yaml:"logging"`
	WebUI         WebUIConfig         `yaml:"web_ui"`
}

// ServerListen contém o endereço de escuta e os parâmetros por conexão.
type ServerListen struct {
	Listen        string        `yaml:"listen"`          // default: ":8080"
	QueueSize     int           `yaml:"queue_size"`      // fila de saída por conexão (default: 256)
	OfferTimeout  time.Duration `yaml:"offer_timeout"`   // timeout de backpressure (default: 3s)
	SessionLogDir string        `yaml:"session_log_dir"` // "" = sem log por sessão
}

// AnnouncementEntry é um anúncio periódico enviado a todos os clients
// registrados como SERVER_INFO.
type AnnouncementEntry struct {
	Schedule string `yaml:"schedule"` // cron expression (5 campos)
	Message  string `yaml:"message"`
}

// StatsConfig configura o reporter periódico de métricas no log.
type StatsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"` // default: 5m
}

// WebUIConfig configura o listener HTTP da API de observabilidade.
type WebUIConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Listen       string        `yaml:"listen"`        // default: "127.0.0.1:9848"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 15s
	IdleTimeout  time.Duration `yaml:"idle_timeout"`  // default: 60s
	AllowOrigins []string      `yaml:"allow_origins"` // IP ou CIDR (deny-by-default)

	// Persistência de eventos
	EventsFile     string `yaml:"events_file"`      // default: "events.jsonl"
	EventsMaxLines int    `yaml:"events_max_lines"` // default: 10000

	// Rotação do arquivo de eventos: quando events_max_lines é atingido, o
	// arquivo inteiro vira um archive comprimido com timestamp no nome.
	CompressionMode string `yaml:"compression_mode"` // gzip|zst (default: gzip)
	MaxArchives     int    `yaml:"max_archives"`     // archives retidos (default: 5)

	// Parsed é preenchido em validate(); não vem do YAML.
	ParsedCIDRs []*net.IPNet `yaml:"-"`
}

// ArchiveExtension retorna a extensão dos archives de eventos rotacionados.
func (w WebUIConfig) ArchiveExtension() string {
	switch w.CompressionMode {
	case "zst":
		return ".jsonl.zst"
	default:
		return ".jsonl.gz"
	}
}

// LoadServerConfig lê e valida o arquivo YAML de configuração do server.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server config: %w", err)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating server config: %w", err)
	}

	return &cfg, nil
}

// DefaultServerConfig retorna a configuração com todos os defaults aplicados,
// para rodar o server sem arquivo de configuração.
func DefaultServerConfig() *ServerConfig {
	cfg := &ServerConfig{}
	// validate() nunca falha com o zero value: tudo tem default.
	_ = cfg.validate()
	return cfg
}

func (c *ServerConfig) validate() error {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.QueueSize <= 0 {
		c.Server.QueueSize = 256
	}
	if c.Server.OfferTimeout <= 0 {
		c.Server.OfferTimeout = 3 * time.Second
	}

	for i, a := range c.Announcements {
		if strings.TrimSpace(a.Schedule) == "" {
			return fmt.Errorf("announcements[%d].schedule is required", i)
		}
		if strings.TrimSpace(a.Message) == "" {
			return fmt.Errorf("announcements[%d].message is required", i)
		}
	}

	if c.Stats.Interval <= 0 {
		c.Stats.Interval = 5 * time.Minute
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	// Web UI defaults e validação
	if c.WebUI.Enabled {
		if c.WebUI.Listen == "" {
			c.WebUI.Listen = "127.0.0.1:9848"
		}
		if c.WebUI.ReadTimeout <= 0 {
			c.WebUI.ReadTimeout = 5 * time.Second
		}
		if c.WebUI.WriteTimeout <= 0 {
			c.WebUI.WriteTimeout = 15 * time.Second
		}
		if c.WebUI.IdleTimeout <= 0 {
			c.WebUI.IdleTimeout = 60 * time.Second
		}
		if c.WebUI.EventsFile == "" {
			c.WebUI.EventsFile = "events.jsonl"
		}
		if c.WebUI.EventsMaxLines <= 0 {
			c.WebUI.EventsMaxLines = 10000
		}
		if c.WebUI.CompressionMode == "" {
			c.WebUI.CompressionMode = "gzip"
		}
		c.WebUI.CompressionMode = strings.ToLower(strings.TrimSpace(c.WebUI.CompressionMode))
		if c.WebUI.CompressionMode != "gzip" && c.WebUI.CompressionMode != "zst" {
			return fmt.Errorf("web_ui.compression_mode must be gzip or zst, got %q", c.WebUI.CompressionMode)
		}
		if c.WebUI.MaxArchives <= 0 {
			c.WebUI.MaxArchives = 5
		}
		if len(c.WebUI.AllowOrigins) == 0 {
			return fmt.Errorf("web_ui.allow_origins is required when web_ui is enabled (deny-by-default)")
		}
		for _, origin := range c.WebUI.AllowOrigins {
			_, cidr, err := net.ParseCIDR(origin)
			if err != nil {
				// Tenta como IP único → converte para /32 ou /128
				ip := net.ParseIP(strings.TrimSpace(origin))
				if ip == nil {
					return fmt.Errorf("web_ui.allow_origins: %q is not a valid IP or CIDR", origin)
				}
				if ip.To4() != nil {
					_, cidr, _ = net.ParseCIDR(ip.String() + "/32")
				} else {
					_, cidr, _ = net.ParseCIDR(ip.String() + "/128")
				}
			}
			c.WebUI.ParsedCIDRs = append(c.WebUI.ParsedCIDRs, cidr)
		}
	}

	return nil
}
