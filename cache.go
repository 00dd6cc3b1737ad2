package jshost

import (
	"errors"
	"fmt"

	"github.com/cryguy/jshost/internal/codecache"
	"github.com/cryguy/jshost/internal/core"
	"github.com/rs/zerolog"
)

// CachedRunner runs scripts from stored bytecode when it can and refreshes
// the store when it cannot.
type CachedRunner struct {
	rt     *Runtime
	store  codecache.Store
	logger zerolog.Logger
}

// RunResult reports how a CachedRunner run went.
type RunResult struct {
	Value core.Value
	// FromCache is true when the script ran from stored bytecode.
	FromCache bool
	// Stored is true when fresh bytecode was written to the store.
	Stored bool
}

// NewCachedRunner returns a runner over rt and store. The caller keeps
// ownership of both.
func NewCachedRunner(rt *Runtime, store codecache.Store) *CachedRunner {
	return &CachedRunner{
		rt:     rt,
		store:  store,
		logger: rt.logger.With().Str("component", "cache").Logger(),
	}
}

// Run executes src. Stored bytecode is tried first; on a cache miss (no
// entry, or an entry the engine rejects) the source is evaluated and then
// recompiled into the store. Store failures are logged, never returned.
func (c *CachedRunner) Run(src SourceBuffer) (RunResult, error) {
	key := codecache.Key(src.URL, src.Text)

	data, err := c.store.Get(key)
	switch {
	case err == nil:
		out, err := c.rt.ExecuteSerialized(src, BytecodeFromBytes(data))
		if err != nil {
			return RunResult{}, err
		}
		if out.Kind == OutcomeSuccess {
			return RunResult{Value: out.Value, FromCache: true}, nil
		}
		c.logger.Debug().Str("url", src.URL).Msg("stale bytecode, recompiling")
		if err := c.store.Delete(key); err != nil {
			c.logger.Warn().Err(err).Str("url", src.URL).Msg("deleting stale bytecode")
		}
	case errors.Is(err, codecache.ErrNotFound):
		c.logger.Debug().Str("url", src.URL).Msg("bytecode cache miss")
	default:
		c.logger.Warn().Err(err).Str("url", src.URL).Msg("reading bytecode cache")
	}

	v, err := c.rt.Evaluate(src)
	if err != nil {
		return RunResult{}, err
	}
	res := RunResult{Value: v}

	bc := c.rt.CompileToBytecode(src)
	if bc == nil {
		return res, nil
	}
	if err := c.store.Put(key, bc.data); err != nil {
		c.logger.Warn().Err(err).Str("url", src.URL).Msg("writing bytecode cache")
		return res, nil
	}
	res.Stored = true
	return res, nil
}

// Compile compiles src and stores the artifact without running it.
func (c *CachedRunner) Compile(src SourceBuffer) (*BytecodeBuffer, error) {
	bc := c.rt.CompileToBytecode(src)
	if bc == nil {
		return nil, fmt.Errorf("compiling %s: no bytecode produced", src.URL)
	}
	if err := c.store.Put(codecache.Key(src.URL, src.Text), bc.data); err != nil {
		return nil, fmt.Errorf("storing bytecode for %s: %w", src.URL, err)
	}
	return bc, nil
}
