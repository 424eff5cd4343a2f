// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nishisan-dev/n-chat/internal/client"
	"github.com/nishisan-dev/n-chat/internal/config"
	"github.com/nishisan-dev/n-chat/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to client config file (optional)")
	server := flag.String("server", "", "server address (host:port), overrides config")
	name := flag.String("name", "", "name to register on connect, overrides config")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *server, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// O stdout pertence à UI do chat: logs vão para stderr, ou só para o
	// arquivo quando logging.file está configurado.
	logger, logCloser := logging.NewConsoleLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		cancel()
	}()

	c := client.New(cfg, consoleHandlers(), nil, logger)

	if err := c.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting: %v\n", err)
		os.Exit(1)
	}

	scanner := bufio.NewScanner(os.Stdin)
	input := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		return scanner.Text(), true
	}

	if err := c.Run(ctx, input); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path, server, name string) (*config.ClientConfig, error) {
	var cfg *config.ClientConfig
	if path != "" {
		loaded, err := config.LoadClientConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		addr := server
		if addr == "" {
			addr = "127.0.0.1:8080"
		}
		cfg = config.DefaultClientConfig(addr)
	}
	if server != "" {
		cfg.Server.Address = server
	}
	if name != "" {
		cfg.Client.Name = name
	}
	return cfg, nil
}

// consoleHandlers imprime os eventos da sessão no stdout, uma linha por
// mensagem, no formato clássico de chat de terminal.
func consoleHandlers() client.Handlers {
	return client.Handlers{
		OnConnected: func(message string) {
			fmt.Printf("* %s\n", message)
		},
		OnRegistered: func(id, name string) {
			fmt.Printf("* registered as %s\n", name)
		},
		OnNameRejected: func(reason string) {
			fmt.Printf("* %s\n", reason)
		},
		OnNameUpdated: func(oldName, newName string) {
			fmt.Printf("* %s is now %s\n", oldName, newName)
		},
		OnUserEntered: func(id, name string) {
			fmt.Printf("* %s entered\n", name)
		},
		OnChat: func(sender, message string) {
			fmt.Printf("<%s> %s\n", sender, message)
		},
		OnWhisper: func(sender, message string) {
			fmt.Printf("[%s → you] %s\n", sender, message)
		},
		OnWhisperSent: func(target, message string) {
			fmt.Printf("[you → %s] %s\n", target, message)
		},
		OnServerInfo: func(message string) {
			fmt.Printf("* server: %s\n", message)
		},
		OnUserNotExists: func(message string) {
			fmt.Printf("* %s\n", message)
		},
		OnDisconnectInfo: func(name string, sent, received int64) {
			if name != "" {
				fmt.Printf("* %s left (sent %d, received %d)\n", name, sent, received)
			}
		},
		OnFileOffer: func(fileName string, size int64) {
			fmt.Printf("* receiving %s (%d bytes)\n", fileName, size)
		},
		OnFileReceived: func(fileName, path string, size int64) {
			fmt.Printf("* saved %s to %s (%d bytes)\n", fileName, path, size)
		},
		OnDropped: func(err error) {
			fmt.Println("* connection lost")
		},
		OnReconnected: func(attempt int) {
			fmt.Printf("* reconnected (attempt %d)\n", attempt)
		},
		OnCommandError: func(err error) {
			fmt.Printf("* %v\n", err)
		},
	}
}
