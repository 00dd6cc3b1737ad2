package main

import (
	"fmt"

	"github.com/cryguy/jshost"
	"github.com/cryguy/jshost/internal/codecache"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

type runOptions struct {
	sessionOptions
	cache  bool
	bundle bool
}

func newRunCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Evaluate a script and print its completion value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, g, o, args[0])
		},
	}
	f := cmd.Flags()
	f.BoolVar(&o.cache, "cache", false, "run from cached bytecode when possible")
	f.BoolVar(&o.debug, "debug", false, "start a debug session")
	f.StringVar(&o.inspect, "inspect", "", "serve debug events over WebSocket on this address")
	f.BoolVar(&o.bundle, "bundle", false, "bundle imports with esbuild before running")
	f.DurationVar(&o.timeout, "timeout", 0, "interrupt scripts running longer than this")
	return cmd
}

func runScript(cmd *cobra.Command, g *globalOptions, o *runOptions, path string) (err error) {
	src, err := readSource(path, o.bundle)
	if err != nil {
		return err
	}
	s, err := openSession(cmd, g, o.sessionOptions)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	var result jshost.RunResult
	if o.cache {
		store, oerr := openStore(s.cfg.Cache)
		if oerr != nil {
			return oerr
		}
		defer func() {
			if cerr := store.Close(); cerr != nil {
				err = multierror.Append(err, fmt.Errorf("closing bytecode cache: %w", cerr)).ErrorOrNil()
			}
		}()
		runner := jshost.NewCachedRunner(s.rt, store)
		err = s.do(cmd.Context(), func() (err error) {
			result, err = runner.Run(src)
			return err
		})
		if err != nil {
			return err
		}
		s.logger.Info().Bool("from_cache", result.FromCache).Bool("stored", result.Stored).Str("url", path).Msg("script finished")
	} else {
		err = s.do(cmd.Context(), func() (err error) {
			result.Value, err = s.rt.Evaluate(src)
			return err
		})
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Value.String())
	return nil
}

func openStore(c jshost.CacheConfig) (codecache.Store, error) {
	return codecache.Open(codecache.Options{
		Driver:   c.Driver,
		Path:     c.Path,
		Entries:  c.Entries,
		Compress: c.Compress,
		MaxAge:   c.MaxAge,
	})
}
