package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nvandessel/bfftrace/internal/program"
	"github.com/nvandessel/bfftrace/internal/tape"
	"github.com/nvandessel/bfftrace/internal/verify"
)

// verifyResult is the --json output of verify.
type verifyResult struct {
	Program    string `json:"program"`
	Verified   bool   `json:"verified"`
	Reason     string `json:"reason"`
	State      string `json:"state,omitempty"`
	Iterations int    `json:"iterations"`
	Skipped    int    `json:"skipped"`
	Tape       string `json:"tape"`
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify PROGRAM",
		Short: "Check whether a program copies itself",
		Long: `Run PROGRAM on a tape of its own bytes followed by as many '0' bytes and
report whether the two halves end up identical.

Bytes outside the instruction alphabet ,.[]{}<>+- are treated as blanks.`,
		Example: `  bfftrace verify '[.>}]               '
  bfftrace verify --trace --max-iter 64 '[.>}]   '`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			traceOut, _ := cmd.Flags().GetBool("trace")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-iter") {
				cfg.Tracker.MaxIterations, _ = cmd.Flags().GetInt("max-iter")
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid flags: %w", err)
				}
			}

			var oracle tape.Oracle = tape.BFF{}
			if traceOut {
				oracle = tracingOracle(cmd.ErrOrStderr())
			}
			v := verify.New(oracle, verify.WithMaxIterations(cfg.Tracker.MaxIterations), verify.WithoutCache())

			p := program.Normalize(args[0])
			out := v.Verify(p)

			result := verifyResult{
				Program:    p.String(),
				Verified:   out.Replicator,
				Reason:     string(out.Reason),
				State:      string(out.Result.State),
				Iterations: out.Result.Iterations,
				Skipped:    out.Result.Skipped,
				Tape:       string(out.Result.Tape),
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			w := cmd.OutOrStdout()
			if result.Verified {
				fmt.Fprintf(w, "replicator: %q copies itself in %d steps\n", result.Program, result.Iterations)
			} else {
				fmt.Fprintf(w, "not a replicator: %q (%s", result.Program, result.Reason)
				if result.State != "" {
					fmt.Fprintf(w, ", %s after %d steps", result.State, result.Iterations)
				}
				fmt.Fprintln(w, ")")
			}
			if result.Tape != "" {
				fmt.Fprintf(w, "final tape: %q\n", result.Tape)
			}
			return nil
		},
	}

	cmd.Flags().Int("max-iter", 0, "Emulation step cap (default from config: 1024)")
	cmd.Flags().Bool("trace", false, "Print every emulation step to stderr")

	return cmd
}

// tracingOracle runs the reference machine with per-step output to w.
func tracingOracle(w io.Writer) tape.Oracle {
	m := tape.BFF{Trace: w}
	return tape.OracleFunc(func(t []byte, start, n int, _ bool, maxIterations int) tape.Result {
		return m.Emulate(t, start, n, true, maxIterations)
	})
}
