// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// newCompressor embrulha w no codec indicado pela extensão do archive.
func newCompressor(w io.Writer, ext string) (io.WriteCloser, error) {
	if strings.HasSuffix(ext, ".zst") {
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		return zw, nil
	}
	return pgzip.NewWriter(w), nil
}
