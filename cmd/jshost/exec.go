package main

import (
	"fmt"
	"os"

	"github.com/cryguy/jshost"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

func newExecCmd(g *globalOptions) *cobra.Command {
	o := &sessionOptions{}
	cmd := &cobra.Command{
		Use:   "exec <file> <bytecode>",
		Short: "Run a script from a bytecode file produced by compile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			src, err := readSource(args[0], false)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}
			s, err := openSession(cmd, g, *o)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.Close(); cerr != nil {
					err = multierror.Append(err, cerr).ErrorOrNil()
				}
			}()

			var out jshost.Outcome
			err = s.do(cmd.Context(), func() (err error) {
				out, err = s.rt.ExecuteSerialized(src, jshost.BytecodeFromBytes(data))
				return err
			})
			if err != nil {
				return err
			}
			switch out.Kind {
			case jshost.OutcomeSuccess:
				fmt.Fprintf(cmd.OutOrStdout(), "success: %s\n", out.Value)
			case jshost.OutcomeCacheMiss:
				fmt.Fprintln(cmd.OutOrStdout(), "cache miss: recompile the script")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&o.debug, "debug", false, "start a debug session")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 0, "interrupt scripts running longer than this")
	return cmd
}
