// Package source turns files and streams into the in-memory byte slices
// the decoders work on. Archived replays compressed with gzip or zstd are
// recognised by their magic bytes and inflated transparently.
package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const DefaultMaxBytes int64 = 64 << 20

var ErrTooLarge = errors.New("source: replay exceeds size limit")

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// ReadFile reads a replay from disk, inflating it if needed. maxBytes <= 0
// selects DefaultMaxBytes.
func ReadFile(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	defer f.Close() //nolint:errcheck
	return Read(f, maxBytes)
}

// Read drains r, inflating gzip or zstd content, and fails with ErrTooLarge
// once more than maxBytes of decoded content are produced.
func Read(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	br := bufio.NewReader(r)
	var body io.Reader = br
	switch Detect(br) {
	case CompressionGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close() //nolint:errcheck
		body = zr
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		defer zr.Close()
		body = zr
	}
	data, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read replay: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Detect peeks at the head of br without consuming it.
func Detect(br *bufio.Reader) Compression {
	head, _ := br.Peek(len(zstdMagic))
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(head, gzipMagic):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

// TrimCompressionExt strips a trailing .gz or .zst so the replay extension
// underneath can be inspected.
func TrimCompressionExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".zst":
		return strings.TrimSuffix(path, filepath.Ext(path))
	}
	return path
}
