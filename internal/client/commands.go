// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package client

import (
	"context"
	"fmt"
	"strings"
)

// InputSource entrega a próxima linha de comando do usuário; ok=false
// sinaliza fim da entrada (EOF) e encerra o loop como um "exit".
type InputSource func() (line string, ok bool)

// Run consome comandos do input até "exit", EOF ou cancelamento do
// context. É o loop principal do nchat-client.
func (c *Client) Run(ctx context.Context, next InputSource) error {
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return ctx.Err()
		case <-c.closed:
			return nil
		default:
		}

		line, ok := next()
		if !ok {
			c.Close()
			return nil
		}

		if err := c.ProcessLine(ctx, line); err != nil {
			if err == ErrExit {
				c.Close()
				return nil
			}
			// Erro de comando não derruba o loop: reporta e segue.
			if c.handlers.OnCommandError != nil {
				c.handlers.OnCommandError(err)
			} else {
				c.logger.Warn("command failed", "error", err)
			}
		}
	}
}

// ProcessLine interpreta uma linha do usuário. Gramática, pelo primeiro
// token: "exit", "/n <name>", "/w <name> <message>", "/f <name> <path>";
// qualquer outra coisa é chat. Validações aqui são locais e mínimas — o
// server é a autoridade.
func (c *Client) ProcessLine(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "exit":
		return ErrExit

	case "/n":
		name := strings.TrimSpace(rest)
		if name == "" {
			return fmt.Errorf("client: usage: /n <name>")
		}
		if strings.ContainsAny(name, " \t") {
			return fmt.Errorf("client: name cannot contain whitespace")
		}
		// Antes do registro /n registra; depois, troca o nome.
		if c.Registered() {
			return c.UpdateName(name)
		}
		return c.Register(name)

	case "/w":
		target, message, found := strings.Cut(strings.TrimSpace(rest), " ")
		if !found || target == "" || strings.TrimSpace(message) == "" {
			return fmt.Errorf("client: usage: /w <name> <message>")
		}
		if !c.Registered() {
			return errNotRegistered
		}
		return c.Whisper(target, message)

	case "/f":
		target, path, found := strings.Cut(strings.TrimSpace(rest), " ")
		path = strings.TrimSpace(path)
		if !found || target == "" || path == "" {
			return fmt.Errorf("client: usage: /f <name> <path>")
		}
		if !c.Registered() {
			return errNotRegistered
		}
		// O envio roda em goroutine própria: chat continua fluindo
		// durante a transferência, intercalado por frames inteiros.
		go func() {
			if err := c.SendFile(ctx, target, path); err != nil && c.handlers.OnCommandError != nil {
				c.handlers.OnCommandError(err)
			}
		}()
		return nil

	default:
		if !c.Registered() {
			return errNotRegistered
		}
		return c.Chat(line)
	}
}
