package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/patchsync/internal/value"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toValue renders the snapshot as a Value so it serializes canonically.
func (s *TraceSnapshot) toValue() value.Object {
	trace := make(value.Array, len(s.Trace))
	for i, event := range s.Trace {
		obj := value.Object{
			"type":   value.String(event.Type),
			"seq":    value.Int(event.Seq),
			"source": value.String(event.Source),
		}
		if event.Action != "" {
			obj["action"] = value.String(event.Action)
		}
		if event.TransformID != "" {
			obj["transform_id"] = value.String(event.TransformID)
		}
		if len(event.Ancestry) > 0 {
			ancestry := make(value.Array, len(event.Ancestry))
			for j, id := range event.Ancestry {
				ancestry[j] = value.String(id)
			}
			obj["ancestry"] = ancestry
		}
		if event.Operations != nil {
			obj["operations"] = event.Operations
		}
		if event.Result != nil {
			obj["result"] = event.Result
		}
		if event.Error != "" {
			obj["error"] = value.String(event.Error)
		}
		trace[i] = obj
	}

	return value.Object{
		"scenario_name": value.String(s.ScenarioName),
		"trace":         trace,
	}
}

// MarshalTrace renders a trace as canonical JSON.
func MarshalTrace(name string, trace []TraceEvent) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: name, Trace: trace}
	return value.MarshalCanonical(snapshot.toValue())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
