package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/source"
	"github.com/roach88/patchsync/internal/store"
	"github.com/roach88/patchsync/internal/value"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			switch event.Type {
			case EventStep:
				fmt.Fprintf(&buf, "  [%d] %s %s", i+1, event.Source, event.Action)
				if event.Error != "" {
					fmt.Fprintf(&buf, " (%s)", event.Error)
				}
				buf.WriteString("\n")
			case EventTransform:
				fmt.Fprintf(&buf, "  [%d]   %s logged %s\n", i+1, event.Source, event.TransformID)
			}
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the harness state and
// records failures on result. It returns an error only when an assertion
// cannot be evaluated at all.
func EvaluateAssertions(ctx context.Context, h *Harness, assertions []Assertion, result *Result) error {
	for i, a := range assertions {
		src, ok := h.topo.Source(a.Source)
		if !ok {
			return fmt.Errorf("assertions[%d]: unknown source %q", i, a.Source)
		}

		var err error
		switch a.Type {
		case AssertDocument:
			err = assertDocument(src, a)
		case AssertAbsent:
			err = assertAbsent(src, a)
		case AssertLogContains:
			err = assertLogContains(src, a, result.Trace)
		case AssertLogCount:
			err = assertLogCount(src, a, result.Trace)
		case AssertJournalCount:
			err = assertJournalCount(ctx, h.store, a, result.Trace)
		default:
			return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}

		if err == nil {
			continue
		}
		if ae, ok := err.(*AssertionError); ok {
			result.AddError(ae.Error())
			continue
		}
		return fmt.Errorf("assertions[%d]: %w", i, err)
	}
	return nil
}

// assertDocument checks that the value at a.Path equals a.Expect.
func assertDocument(src *source.Source, a Assertion) error {
	path, err := patch.ParsePointer(a.Path)
	if err != nil {
		return err
	}
	expected, err := value.FromNative(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}

	actual, ok := src.Retrieve(path)
	if !ok {
		return &AssertionError{
			Type:     AssertDocument,
			Expected: fmt.Sprintf("%s%s = %s", src.Name(), a.Path, render(expected)),
			Actual:   "path not found",
		}
	}
	if !value.Equal(expected, actual) {
		return &AssertionError{
			Type:     AssertDocument,
			Expected: fmt.Sprintf("%s%s = %s", src.Name(), a.Path, render(expected)),
			Actual:   render(actual),
		}
	}
	return nil
}

// assertAbsent checks that a.Path does not resolve.
func assertAbsent(src *source.Source, a Assertion) error {
	path, err := patch.ParsePointer(a.Path)
	if err != nil {
		return err
	}
	if actual, ok := src.Retrieve(path); ok {
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("%s%s to be absent", src.Name(), a.Path),
			Actual:   render(actual),
		}
	}
	return nil
}

// assertLogContains checks that the source logged a.ID.
func assertLogContains(src *source.Source, a Assertion, trace []TraceEvent) error {
	if src.Log().Contains(a.ID) {
		return nil
	}
	return &AssertionError{
		Type:     AssertLogContains,
		Expected: fmt.Sprintf("%s log contains %s", src.Name(), a.ID),
		Actual:   fmt.Sprintf("log is %v", src.Log().Entries()),
		Trace:    trace,
	}
}

// assertLogCount checks the number of ids in the source's log.
func assertLogCount(src *source.Source, a Assertion, trace []TraceEvent) error {
	if n := src.Log().Len(); n != a.Count {
		return &AssertionError{
			Type:     AssertLogCount,
			Expected: fmt.Sprintf("%d transforms in %s log", a.Count, src.Name()),
			Actual:   fmt.Sprintf("%d transforms", n),
			Trace:    trace,
		}
	}
	return nil
}

// assertJournalCount checks the number of records journaled for a source.
// Unlike the log, the journal survives a reset.
func assertJournalCount(ctx context.Context, st *store.Store, a Assertion, trace []TraceEvent) error {
	records, err := st.ReadTransforms(ctx, a.Source)
	if err != nil {
		return err
	}
	if len(records) != a.Count {
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("%d journaled transforms for %s", a.Count, a.Source),
			Actual:   fmt.Sprintf("%d records", len(records)),
			Trace:    trace,
		}
	}
	return nil
}
