// Package codecache persists serialized script artifacts between runs.
package codecache

import (
	"encoding/hex"
	"errors"

	"github.com/zeebo/xxh3"
)

// ErrNotFound is returned by Get for a key with no stored artifact.
var ErrNotFound = errors.New("codecache: not found")

// Store is a key/value store for bytecode artifacts. Implementations are
// safe for concurrent use.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
	Delete(key string) error
	Close() error
}

// Key derives the store key for a script from its URL and source text.
// Editing the source yields a new key, so stale entries are simply never
// read again.
func Key(url string, source []byte) string {
	h := xxh3.New()
	_, _ = h.WriteString(url)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(source)
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:])
}
