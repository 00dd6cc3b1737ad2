package codecache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

const maxDecompressedSize = 64 * 1024 * 1024 // 64 MB

// Compressed wraps a Store so artifacts are brotli-compressed at rest.
type Compressed struct {
	Store
	quality int
}

// NewCompressed returns a brotli-compressing view of inner.
func NewCompressed(inner Store) *Compressed {
	return &Compressed{Store: inner, quality: brotli.DefaultCompression}
}

func (c *Compressed) Put(key string, data []byte) error {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, c.quality)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("codecache: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("codecache: compress: %w", err)
	}
	return c.Store.Put(key, buf.Bytes())
}

func (c *Compressed) Get(key string) ([]byte, error) {
	data, err := c.Store.Get(key)
	if err != nil {
		return nil, err
	}
	r := brotli.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(io.LimitReader(r, maxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("codecache: decompress: %w", err)
	}
	if len(out) > maxDecompressedSize {
		return nil, fmt.Errorf("codecache: decompress: output exceeds maximum allowed size")
	}
	return out, nil
}
