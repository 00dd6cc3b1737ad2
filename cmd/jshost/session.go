package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cryguy/jshost"
	"github.com/cryguy/jshost/internal/bundle"
	"github.com/cryguy/jshost/internal/eventloop"
	"github.com/cryguy/jshost/internal/inspector"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// session owns everything one command needs: the runtime, its task loop
// and, when debugging, the inspector server.
type session struct {
	cfg    jshost.FileConfig
	logger zerolog.Logger
	loop   *eventloop.Loop
	rt     *jshost.Runtime
	hub    *inspector.Hub
	srv    *http.Server
}

type sessionOptions struct {
	debug   bool
	inspect string
	timeout time.Duration
}

func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.TimeOnly}).
		Level(lvl).
		With().Timestamp().Logger(), nil
}

func openSession(cmd *cobra.Command, g *globalOptions, o sessionOptions) (*session, error) {
	cfg, err := jshost.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if o.debug {
		cfg.Debug.Enabled = true
	}
	if o.inspect != "" {
		cfg.Debug.Enabled = true
		cfg.Debug.InspectorAddr = o.inspect
	}
	if o.timeout > 0 {
		cfg.Engine.ExecutionTimeoutMS = int(o.timeout / time.Millisecond)
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:    cfg,
		logger: logger,
		loop:   eventloop.New(eventloop.WithLogger(logger), eventloop.WithLockedThread()),
	}

	rc := cfg.RuntimeConfig()
	rc.TaskQueue = s.loop
	rc.Logger = &logger
	if cfg.Debug.Enabled {
		s.hub = inspector.NewHub(inspector.WithLogger(logger))
		rc.DebugSink = s.hub
		if cfg.Debug.InspectorAddr != "" {
			s.serveInspector(s.hub, cfg.Debug.InspectorAddr)
		}
	}

	err = s.do(cmd.Context(), func() error {
		rt, err := jshost.New(rc)
		if err != nil {
			return err
		}
		s.rt = rt
		return nil
	})
	if err != nil {
		return nil, multierror.Append(err, s.Close()).ErrorOrNil()
	}
	logger.Debug().Str("engine", s.rt.Engine()).Msg("runtime ready")
	return s, nil
}

func (s *session) serveInspector(hub *inspector.Hub, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/debug", hub)
	s.srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Str("addr", addr).Msg("inspector server stopped")
		}
	}()
	s.logger.Info().Str("addr", addr).Str("session", hub.Session()).Msg("inspector listening on /debug")
}

// do runs fn on the loop, followed by every Promise continuation it
// queues. All engine calls go through here so they stay on the loop's
// locked thread.
func (s *session) do(ctx context.Context, fn func() error) error {
	var fnErr error
	s.loop.RunOnQueue(func() error {
		fnErr = fn()
		return nil
	})
	if err := s.loop.RunUntilIdle(ctx); err != nil {
		return multierror.Append(fnErr, err).ErrorOrNil()
	}
	return fnErr
}

func (s *session) Close() error {
	var result *multierror.Error
	// Continuations left behind by a cancelled drain must not run against
	// a runtime that is about to close.
	s.loop.Reset()
	if s.rt != nil {
		err := s.do(context.Background(), func() error {
			s.rt.StopIfConfigured()
			return s.rt.Close()
		})
		if err != nil {
			result = multierror.Append(result, err)
		}
	} else if s.hub != nil {
		// Runtime construction failed, so nothing took ownership of the hub.
		if err := s.hub.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing inspector: %w", err))
		}
	}
	s.logger.Debug().Uint64("tasks", s.loop.Ran()).Msg("session closed")
	s.loop.Close()
	if s.srv != nil {
		if err := s.srv.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing inspector server: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// readSource loads a script, bundling its imports when asked to.
func readSource(path string, doBundle bool) (jshost.SourceBuffer, error) {
	if doBundle {
		text, err := bundle.File(path)
		if err != nil {
			return jshost.SourceBuffer{}, err
		}
		return jshost.Source(path, text), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return jshost.SourceBuffer{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return jshost.SourceBuffer{Text: data, URL: path}, nil
}
