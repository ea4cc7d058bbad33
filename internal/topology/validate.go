package topology

import (
	"fmt"

	"cuelang.org/go/cue/token"

	"github.com/roach88/patchsync/internal/connector"
	"github.com/roach88/patchsync/internal/evented"
)

// Validation error codes (E200-E299)
const (
	ErrNoSources         = "E200" // topology declares no sources
	ErrUnknownKind       = "E201" // unsupported source kind
	ErrUnknownSource     = "E202" // connector references an undeclared source
	ErrSelfConnection    = "E203" // connector links a source to itself
	ErrMissingRequestArg = "E204" // request connector without verb or mode
	ErrMisplacedOption   = "E205" // option that does not apply to the connector type
	ErrInvalidVerb       = "E206" // verb or mode not recognized
	ErrRequestCycle      = "E210" // request connectors loop back to their primary
)

// ValidationError is one semantic problem in a topology.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks references and per-type options. It returns every
// problem found, including request connector cycles; blocking transform
// cycles are only reported by AnalyzeCycles.
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if len(cfg.Sources) == 0 {
		errs = append(errs, ValidationError{
			Field:   "source",
			Message: "at least one source is required",
			Code:    ErrNoSources,
		})
	}

	declared := make(map[string]bool, len(cfg.Sources))
	for _, s := range cfg.Sources {
		declared[s.Name] = true
		if s.Kind != KindMemory {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("source.%s.kind", s.Name),
				Message: fmt.Sprintf("unsupported source kind %q", s.Kind),
				Code:    ErrUnknownKind,
				Line:    lineOf(s.Pos),
			})
		}
	}

	for _, c := range cfg.Connectors {
		errs = append(errs, validateConnector(c, declared)...)
	}

	for _, w := range AnalyzeCycles(cfg) {
		if w.Level == LevelError {
			errs = append(errs, ValidationError{
				Field:   "connector",
				Message: w.Message,
				Code:    ErrRequestCycle,
			})
		}
	}

	return errs
}

func lineOf(pos token.Pos) int {
	if !pos.IsValid() {
		return 0
	}
	return pos.Line()
}

func validateConnector(c ConnectorSpec, declared map[string]bool) []ValidationError {
	var errs []ValidationError
	field := func(name string) string {
		return fmt.Sprintf("connector.%s.%s", c.Name, name)
	}
	line := lineOf(c.Pos)

	for _, ref := range []struct{ field, name string }{{"from", c.From}, {"to", c.To}} {
		if !declared[ref.name] {
			errs = append(errs, ValidationError{
				Field:   field(ref.field),
				Message: fmt.Sprintf("undeclared source %q", ref.name),
				Code:    ErrUnknownSource,
				Line:    line,
			})
		}
	}
	if c.From == c.To {
		errs = append(errs, ValidationError{
			Field:   field("to"),
			Message: "a connector cannot link a source to itself",
			Code:    ErrSelfConnection,
			Line:    line,
		})
	}

	switch c.Type {
	case TypeTransform:
		if c.Verb != "" || c.Mode != "" {
			errs = append(errs, ValidationError{
				Field:   field("verb"),
				Message: "verb and mode apply to request connectors only",
				Code:    ErrMisplacedOption,
				Line:    line,
			})
		}
	case TypeRequest:
		if c.Blocking {
			errs = append(errs, ValidationError{
				Field:   field("blocking"),
				Message: "blocking applies to transform connectors only",
				Code:    ErrMisplacedOption,
				Line:    line,
			})
		}
		if c.Verb == "" || c.Mode == "" {
			errs = append(errs, ValidationError{
				Field:   field("verb"),
				Message: "request connectors require verb and mode",
				Code:    ErrMissingRequestArg,
				Line:    line,
			})
			break
		}
		if _, err := evented.ParseVerb(c.Verb); err != nil {
			errs = append(errs, ValidationError{
				Field:   field("verb"),
				Message: err.Error(),
				Code:    ErrInvalidVerb,
				Line:    line,
			})
		}
		if _, err := connector.ParseMode(c.Mode); err != nil {
			errs = append(errs, ValidationError{
				Field:   field("mode"),
				Message: err.Error(),
				Code:    ErrInvalidVerb,
				Line:    line,
			})
		}
	}

	return errs
}
