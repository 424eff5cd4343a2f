// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package observability

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// archiveTimeLayout entra no nome do archive: events-20060102-150405.jsonl.gz
const archiveTimeLayout = "20060102-150405"

// compressFile comprime path num archive timestampado ao lado do original
// e retorna o caminho criado. ext decide o codec: ".jsonl.zst" usa zstd,
// qualquer outro usa gzip (pgzip, paralelo).
func compressFile(path, ext string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening events file for archive: %w", err)
	}
	defer src.Close()

	archive := archivePrefix(path) + "-" + time.Now().Format(archiveTimeLayout) + ext
	dst, err := os.Create(archive)
	if err != nil {
		return "", fmt.Errorf("creating archive %s: %w", archive, err)
	}

	cw, err := newCompressor(dst, ext)
	if err != nil {
		dst.Close()
		os.Remove(archive)
		return "", err
	}

	if _, err := io.Copy(cw, src); err != nil {
		cw.Close()
		dst.Close()
		os.Remove(archive)
		return "", fmt.Errorf("compressing events to %s: %w", archive, err)
	}

	if err := cw.Close(); err != nil {
		dst.Close()
		os.Remove(archive)
		return "", fmt.Errorf("flushing archive %s: %w", archive, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(archive)
		return "", fmt.Errorf("closing archive %s: %w", archive, err)
	}

	return archive, nil
}

// pruneArchives remove os archives mais antigos além de max. O timestamp
// no nome garante que ordem lexicográfica == ordem cronológica.
func pruneArchives(path, ext string, max int) {
	matches, err := filepath.Glob(archivePrefix(path) + "-*" + ext)
	if err != nil || len(matches) <= max {
		return
	}

	sort.Strings(matches)
	for _, old := range matches[:len(matches)-max] {
		os.Remove(old)
	}
}

// archivePrefix deriva o prefixo dos archives a partir do arquivo de
// eventos: "events.jsonl" → "events".
func archivePrefix(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}
