package codecache

import (
	"fmt"
	"time"
)

// Options selects and configures a store.
type Options struct {
	Driver   string // "memory" or "sqlite"
	Path     string // sqlite database file
	Entries  int    // memory store capacity
	Compress bool
	MaxAge   time.Duration // sqlite only; 0 keeps everything
}

// Open builds the store described by opts. A sqlite store is pruned of
// entries older than MaxAge before it is returned.
func Open(opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch opts.Driver {
	case "", "memory":
		s, err = NewMemoryStore(opts.Entries)
	case "sqlite":
		s, err = openPruned(opts.Path, opts.MaxAge)
	default:
		return nil, fmt.Errorf("codecache: unknown driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	if opts.Compress {
		return NewCompressed(s), nil
	}
	return s, nil
}

func openPruned(path string, maxAge time.Duration) (*SQLiteStore, error) {
	s, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if maxAge > 0 {
		if _, err := s.Prune(time.Now().Add(-maxAge)); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}
