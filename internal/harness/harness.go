package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/source"
	"github.com/roach88/patchsync/internal/store"
	"github.com/roach88/patchsync/internal/syncerr"
	"github.com/roach88/patchsync/internal/testutil"
	"github.com/roach88/patchsync/internal/topology"
	"github.com/roach88/patchsync/internal/value"
)

// Harness runs one scenario against a freshly built topology.
//
// Transform ids come from a sequential generator and trace events are
// numbered by a deterministic clock, so a scenario produces the same trace
// on every run. Every source journals into the harness store, which
// assertions and trace events read back.
type Harness struct {
	store  *store.Store
	topo   *topology.Topology
	clock  *testutil.DeterministicClock
	ids    *testutil.SequentialIDs
	logger *slog.Logger

	// seen counts how many log entries of each source are already traced.
	seen map[string]int
}

type runConfig struct {
	dbPath string
	logger *slog.Logger
}

// Option configures Run.
type Option func(*runConfig)

// WithStorePath journals into the SQLite database at path instead of an
// in-memory one, so the run can be inspected or replayed afterwards.
func WithStorePath(path string) Option {
	return func(c *runConfig) {
		c.dbPath = path
	}
}

// WithLogger sets the logger handed to the topology. Runs are silent by
// default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load and build the topology with a journaling store
//  2. Run each step, flush the topology, check the step's expectation
//  3. Trace the step and every transform it caused, source by source
//  4. Evaluate assertions and capture final documents
//
// Run returns an error only when the scenario cannot be executed; failed
// expectations and assertions are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := &runConfig{
		dbPath: ":memory:",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	topoCfg, err := topology.Load(scenario.Topology)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	st, err := store.Open(cfg.dbPath, store.WithLogger(cfg.logger))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  testutil.NewDeterministicClock(),
		ids:    testutil.NewSequentialIDs(scenario.IDPrefix),
		logger: cfg.logger,
		seen:   make(map[string]int),
	}

	h.topo, err = topology.Build(ctx, topoCfg,
		topology.WithJournal(st),
		topology.WithIDGenerator(h.ids),
		topology.WithLogger(cfg.logger))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	defer h.topo.Close()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("scenario %s: steps[%d]: %w", scenario.Name, i, err)
		}
	}

	if err := EvaluateAssertions(ctx, h, scenario.Assertions, result); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	for _, src := range h.topo.Sources() {
		if root, ok := src.Retrieve(patch.Path{}); ok {
			result.State[src.Name()] = root
		}
	}

	h.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"events", len(result.Trace))
	return result, nil
}

// runStep executes one step. Returned errors abort the run; a failed
// expectation is only recorded on result.
func (h *Harness) runStep(ctx context.Context, index int, step Step, result *Result) error {
	src, ok := h.topo.Source(step.Source)
	if !ok {
		return fmt.Errorf("unknown source %q", step.Source)
	}

	got, stepErr := h.call(ctx, src, step)
	if err := h.topo.Flush(ctx); err != nil {
		return err
	}
	if step.Action == ActionReset && stepErr == nil {
		h.seen[src.Name()] = 0
	}

	code := ""
	if stepErr != nil {
		code = string(syncerr.CodeOf(stepErr))
		if code == "" {
			code = stepErr.Error()
		}
	}
	result.AddStepTrace(h.clock.Tick(), step.Source, step.Action, got, code)

	checkExpectation(index, step, got, stepErr, result)
	return h.traceTransforms(ctx, result)
}

// call dispatches a step to its source and returns the query result, if
// any.
func (h *Harness) call(ctx context.Context, src *source.Source, step Step) (value.Value, error) {
	switch step.Action {
	case ActionTransform, ActionUpdate, ActionPush:
		ops, err := step.operations()
		if err != nil {
			return nil, err
		}
		switch step.Action {
		case ActionTransform:
			_, err = src.Transform(ctx, ops)
		case ActionUpdate:
			_, err = src.Update(ctx, ops)
		default:
			_, err = src.Push(ctx, ops)
		}
		return nil, err
	case ActionQuery, ActionPull:
		paths, err := step.pointers()
		if err != nil {
			return nil, err
		}
		if step.Action == ActionPull {
			_, err = src.Pull(ctx, source.NewQuery(paths...))
			return nil, err
		}
		return src.Query(ctx, source.NewQuery(paths...))
	case ActionReset:
		return nil, src.Reset(ctx)
	default:
		return nil, fmt.Errorf("unknown action %q", step.Action)
	}
}

func checkExpectation(index int, step Step, got value.Value, err error, result *Result) {
	var want *ExpectClause
	if step.Expect != nil {
		want = step.Expect
	} else {
		want = &ExpectClause{}
	}

	switch {
	case want.Error == "" && err != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s on %s: unexpected error: %v",
			index, step.Action, step.Source, err))
		return
	case want.Error != "" && err == nil:
		result.AddError(fmt.Sprintf("steps[%d] %s on %s: expected error %s, got success",
			index, step.Action, step.Source, want.Error))
		return
	case want.Error != "" && string(syncerr.CodeOf(err)) != want.Error:
		result.AddError(fmt.Sprintf("steps[%d] %s on %s: expected error %s, got %v",
			index, step.Action, step.Source, want.Error, err))
		return
	}

	if want.Value == nil {
		return
	}
	expected, convErr := value.FromNative(want.Value)
	if convErr != nil {
		result.AddError(fmt.Sprintf("steps[%d].expect.value: %v", index, convErr))
		return
	}
	if !value.Equal(expected, got) {
		result.AddError(fmt.Sprintf("steps[%d] query on %s: expected %s, got %s",
			index, step.Source, render(expected), render(got)))
	}
}

// traceTransforms appends every log entry not traced yet, source by source
// in declaration order. Operations and ancestry are read back from the
// journal.
func (h *Harness) traceTransforms(ctx context.Context, result *Result) error {
	for _, src := range h.topo.Sources() {
		name := src.Name()
		entries := src.Log().Entries()
		for _, id := range entries[min(h.seen[name], len(entries)):] {
			rec, err := h.store.ReadTransform(ctx, name, id)
			if err != nil {
				return fmt.Errorf("trace %s/%s: %w", name, id, err)
			}
			result.AddTransformTrace(h.clock.Tick(), name, id, rec.Ancestry,
				patch.OperationsValue(rec.Operations))
		}
		h.seen[name] = len(entries)
	}
	return nil
}

// render formats v as canonical JSON for error messages.
func render(v value.Value) string {
	if v == nil {
		return "<absent>"
	}
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
