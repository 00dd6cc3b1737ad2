//go:build v8

package jshost

import (
	"github.com/cryguy/jshost/internal/core"
	"github.com/cryguy/jshost/internal/v8engine"
)

func newBackend(cfg core.EngineConfig) (core.Engine, error) {
	e, err := v8engine.New(cfg)
	if err != nil {
		return nil, err
	}
	return e, nil
}
