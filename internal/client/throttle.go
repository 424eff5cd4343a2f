// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package client

import (
	"context"

	"golang.org/x/time/rate"
)

// maxBurstSize limita o burst do token bucket ao tamanho máximo de chunk
// aceito pela config (8mb), para que um único chunk nunca exceda o burst.
const maxBurstSize = 8 * 1024 * 1024

// newUploadLimiter cria o token bucket do upload_rate (bytes/segundo).
func newUploadLimiter(bytesPerSec int64) *rate.Limiter {
	burst := int(bytesPerSec)
	if burst > maxBurstSize {
		burst = maxBurstSize
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// waitUploadTokens bloqueia até o limiter liberar n bytes de upload.
// Sem upload_rate configurado é um no-op.
func (c *Client) waitUploadTokens(ctx context.Context, n int) error {
	if c.uploadLimiter == nil {
		return nil
	}

	// Pedaços maiores que o burst consomem tokens em parcelas.
	for n > 0 {
		step := n
		if step > c.uploadLimiter.Burst() {
			step = c.uploadLimiter.Burst()
		}
		if err := c.uploadLimiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
