package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/patchsync/internal/harness"
	"github.com/roach88/patchsync/internal/value"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string // journal file; in-memory when empty
}

// RunResult is the outcome of running one scenario.
type RunResult struct {
	Scenario string                 `json:"scenario"`
	Pass     bool                   `json:"pass"`
	Errors   []string               `json:"errors,omitempty"`
	Trace    []harness.TraceEvent   `json:"trace"`
	State    map[string]value.Value `json:"state"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario against its topology",
		Long: `Build the scenario's topology, run its steps and report the trace, the
final document of every source, and any failed expectation or assertion.

With --db every transform is journaled into the given SQLite file, which
the log and replay commands can read afterwards.

Example:
  patchsync run ./scenarios/mirror.yaml
  patchsync run ./scenarios/mirror.yaml --db ./patchsync.db --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal transforms into this SQLite database")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeParse, "failed to load scenario", err)
	}

	runOpts := []harness.Option{harness.WithLogger(slog.Default())}
	if opts.Database != "" {
		runOpts = append(runOpts, harness.WithStorePath(opts.Database))
	}

	slog.Debug("running scenario", "scenario", scenario.Name, "topology", scenario.Topology)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := harness.Run(ctx, scenario, runOpts...)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, "failed to run scenario", err)
	}

	out := RunResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Errors:   nonEmpty(result.Errors),
		Trace:    result.Trace,
		State:    result.State,
	}

	if formatter.Structured() {
		if err := formatter.Success(out); err != nil {
			return err
		}
	} else if err := outputRunText(cmd, out); err != nil {
		return err
	}

	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func outputRunText(cmd *cobra.Command, r RunResult) error {
	w := cmd.OutOrStdout()

	for _, ev := range r.Trace {
		switch ev.Type {
		case harness.EventStep:
			line := fmt.Sprintf("[%d] %s %s", ev.Seq, ev.Source, ev.Action)
			if ev.Error != "" {
				line += " ✗ " + ev.Error
			}
			if ev.Result != nil {
				data, err := value.Marshal(ev.Result)
				if err != nil {
					return err
				}
				line += " → " + string(data)
			}
			fmt.Fprintln(w, line)
		case harness.EventTransform:
			ops, err := value.Marshal(ev.Operations)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "[%d]   %s logged %s %s\n", ev.Seq, ev.Source, ev.TransformID, ops)
		}
	}

	fmt.Fprintln(w)
	if r.Pass {
		fmt.Fprintf(w, "✓ %s passed\n", r.Scenario)
		return nil
	}
	fmt.Fprintf(w, "✗ %s failed\n", r.Scenario)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	return nil
}
