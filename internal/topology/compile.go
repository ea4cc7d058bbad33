package topology

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/patchsync/internal/value"
)

//go:embed schema.cue
var schemaCUE string

// Config is a compiled topology.
type Config struct {
	Sources    []SourceSpec    `json:"sources"`
	Connectors []ConnectorSpec `json:"connectors"`
}

// SourceSpec declares one source.
type SourceSpec struct {
	Name          string      `json:"name"`
	Kind          string      `json:"kind"`
	Seed          value.Value `json:"seed,omitempty"`
	MaxOperations int         `json:"max_operations,omitempty"`
	MaxQueryPaths int         `json:"max_query_paths,omitempty"`
	Pos           token.Pos   `json:"-"`
}

// ConnectorSpec declares one connector. Verb and Mode apply to request
// connectors, Blocking to transform connectors.
type ConnectorSpec struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Blocking bool      `json:"blocking,omitempty"`
	Verb     string    `json:"verb,omitempty"`
	Mode     string    `json:"mode,omitempty"`
	Pos      token.Pos `json:"-"`
}

// Connector types.
const (
	TypeTransform = "transform"
	TypeRequest   = "request"
)

// KindMemory is the only built-in source kind.
const KindMemory = "memory"

// Source returns the named source spec.
func (c *Config) Source(name string) (SourceSpec, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceSpec{}, false
}

// CompileError is a compile failure with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile checks v against the topology schema and extracts its sources
// and connectors in declaration order.
func Compile(v cue.Value) (*Config, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("topology schema: %w", err)
	}
	unified := schema.Unify(v)
	if err := unified.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	cfg := &Config{}

	sourcesVal := unified.LookupPath(cue.ParsePath("source"))
	if sourcesVal.Exists() {
		iter, err := sourcesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			spec, err := CompileSource(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			cfg.Sources = append(cfg.Sources, *spec)
		}
	}

	connectorsVal := unified.LookupPath(cue.ParsePath("connector"))
	if connectorsVal.Exists() {
		iter, err := connectorsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			spec, err := CompileConnector(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			cfg.Connectors = append(cfg.Connectors, *spec)
		}
	}

	return cfg, nil
}

// CompileSource parses one source struct.
func CompileSource(name string, v cue.Value) (*SourceSpec, error) {
	spec := &SourceSpec{Name: name, Kind: KindMemory, Pos: v.Pos()}

	var err error
	if spec.Kind, err = stringField(v, "kind", KindMemory); err != nil {
		return nil, err
	}

	seedVal := v.LookupPath(cue.ParsePath("seed"))
	if seedVal.Exists() {
		data, err := seedVal.MarshalJSON()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("source.%s.seed", name),
				Message: fmt.Sprintf("seed must be concrete data: %v", err),
				Pos:     seedVal.Pos(),
			}
		}
		if spec.Seed, err = value.Parse(data); err != nil {
			return nil, fmt.Errorf("source.%s.seed: %w", name, err)
		}
	}

	if spec.MaxOperations, err = intField(v, "max_operations"); err != nil {
		return nil, err
	}
	if spec.MaxQueryPaths, err = intField(v, "max_query_paths"); err != nil {
		return nil, err
	}
	return spec, nil
}

// CompileConnector parses one connector struct.
func CompileConnector(name string, v cue.Value) (*ConnectorSpec, error) {
	spec := &ConnectorSpec{Name: name, Pos: v.Pos()}

	var err error
	if spec.Type, err = stringField(v, "type", ""); err != nil {
		return nil, err
	}
	if spec.From, err = stringField(v, "from", ""); err != nil {
		return nil, err
	}
	if spec.To, err = stringField(v, "to", ""); err != nil {
		return nil, err
	}
	if spec.Verb, err = stringField(v, "verb", ""); err != nil {
		return nil, err
	}
	if spec.Mode, err = stringField(v, "mode", ""); err != nil {
		return nil, err
	}

	blockingVal := v.LookupPath(cue.ParsePath("blocking"))
	if blockingVal.Exists() {
		if spec.Blocking, err = blockingVal.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	return spec, nil
}

func stringField(v cue.Value, field, fallback string) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return fallback, nil
	}
	if d, ok := f.Default(); ok {
		f = d
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func intField(v cue.Value, field string) (int, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return 0, nil
	}
	n, err := f.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(n), nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
