// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/nishisan-dev/n-chat/internal/protocol"
)

// SendFile transmite um arquivo para o usuário target: FILE_SEND_REQUEST,
// chunks de transfer.chunk_size com seq crescente, FILE_SEND_COMPLETE.
// Roda inteira na goroutine chamadora; o single-writer do transporte
// garante que chat concorrente intercala frames inteiros, nunca pedaços.
func (c *Client) SendFile(ctx context.Context, target, path string) error {
	f, err := os.Open(path)
	if err != nil {
		c.logger.Error("opening file", "path", path, "error", err)
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stating %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("client: %s is a directory", path)
	}

	conn, err := c.currentConn()
	if err != nil {
		return err
	}

	transferID := uuid.NewString()
	fileName := filepath.Base(path)

	logger := c.logger.With("transfer", transferID, "file", fileName, "target", target)
	logger.Info("starting transfer", "size", info.Size())

	if err := conn.WritePacket(protocol.CodeFileSendRequest, protocol.FileSendRequest{
		Target:     target,
		TransferID: transferID,
		FileName:   fileName,
		FileSize:   info.Size(),
	}); err != nil {
		return fmt.Errorf("sending transfer request: %w", err)
	}

	progress := NewProgressReporter(fileName, info.Size())
	defer progress.Stop()

	buf := make([]byte, c.cfg.Transfer.ChunkSizeRaw)
	var seq int32

	for {
		n, err := f.Read(buf)
		if n > 0 {
			if err := c.waitUploadTokens(ctx, n); err != nil {
				return err
			}

			if err := conn.WriteFileChunk(protocol.FileChunk{
				TransferID: transferID,
				Seq:        seq,
				Data:       buf[:n],
			}); err != nil {
				logger.Error("sending chunk", "seq", seq, "error", err)
				return fmt.Errorf("sending chunk %d: %w", seq, err)
			}
			seq++
			progress.AddBytes(int64(n))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}

	if err := conn.WritePacket(protocol.CodeFileSendComplete, protocol.FileSendComplete{
		TransferID: transferID,
	}); err != nil {
		return fmt.Errorf("sending transfer complete: %w", err)
	}

	logger.Info("transfer sent", "chunks", seq, "bytes", info.Size())
	return nil
}
