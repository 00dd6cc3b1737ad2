package main

import (
	"fmt"
	"os"

	"github.com/cryguy/jshost"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

func newCompileCmd(g *globalOptions) *cobra.Command {
	var (
		out      string
		doBundle bool
		cache    bool
	)
	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "Serialize a script into a bytecode file or the bytecode cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			path := args[0]
			if out == "" && !cache {
				out = path + ".jsbc"
			}
			src, err := readSource(path, doBundle)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, g, sessionOptions{})
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.Close(); cerr != nil {
					err = multierror.Append(err, cerr).ErrorOrNil()
				}
			}()

			var bc *jshost.BytecodeBuffer
			if cache {
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
					bc, err = runner.Compile(src)
					return err
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cached %d bytes for %s\n", bc.Len(), path)
			} else {
				err = s.do(cmd.Context(), func() error {
					bc = s.rt.CompileToBytecode(src)
					if bc == nil {
						return fmt.Errorf("compiling %s: no bytecode produced", path)
					}
					return nil
				})
				if err != nil {
					return err
				}
			}

			if out == "" {
				return nil
			}
			if err := os.WriteFile(out, bc.Bytes(), 0644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", bc.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "bytecode output path (default <file>.jsbc, none with --cache)")
	cmd.Flags().BoolVar(&doBundle, "bundle", false, "bundle imports with esbuild before compiling")
	cmd.Flags().BoolVar(&cache, "cache", false, "store the bytecode in the configured bytecode cache")
	return cmd
}
