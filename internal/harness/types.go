package harness

import "github.com/roach88/patchsync/internal/value"

// Trace event types.
const (
	EventStep      = "step"
	EventTransform = "transform"
)

// TraceEvent is one entry of a scenario trace: either a step the scenario
// ran, or a transform a source logged as a consequence.
type TraceEvent struct {
	Type        string      `json:"type"` // "step" or "transform"
	Seq         int64       `json:"seq"`
	Source      string      `json:"source"`
	Action      string      `json:"action,omitempty"`
	TransformID string      `json:"transform_id,omitempty"`
	Ancestry    []string    `json:"ancestry,omitempty"`
	Operations  value.Value `json:"operations,omitempty"`
	Result      value.Value `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every step met its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace lists steps and the transforms they caused, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// State holds each source's final document.
	State map[string]value.Value `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]value.Value),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStepTrace records a scenario step.
func (r *Result) AddStepTrace(seq int64, src, action string, result value.Value, code string) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventStep,
		Seq:    seq,
		Source: src,
		Action: action,
		Result: result,
		Error:  code,
	})
}

// AddTransformTrace records a transform logged by src.
func (r *Result) AddTransformTrace(seq int64, src, id string, ancestry []string, ops value.Value) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:        EventTransform,
		Seq:         seq,
		Source:      src,
		TransformID: id,
		Ancestry:    ancestry,
		Operations:  ops,
	})
}

// Transforms returns the transform events logged by src, or by every
// source when src is empty.
func (r *Result) Transforms(src string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventTransform && (src == "" || ev.Source == src) {
			out = append(out, ev)
		}
	}
	return out
}
