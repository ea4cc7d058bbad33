package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/value"
)

// Scenario is a scripted run against a topology: steps applied to its
// sources, then assertions over the resulting documents, logs and
// journal.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Topology is a CUE file or package directory declaring sources and
	// connectors. Relative paths resolve against the scenario file.
	Topology string `yaml:"topology"`

	// IDPrefix prefixes generated transform ids. Defaults to "t".
	IDPrefix string `yaml:"id_prefix,omitempty"`

	// Steps run in order. The topology is flushed after each one.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final documents, logs and journal.
	Assertions []Assertion `yaml:"assertions"`
}

// Step actions.
const (
	ActionTransform = "transform"
	ActionUpdate    = "update"
	ActionPush      = "push"
	ActionPull      = "pull"
	ActionQuery     = "query"
	ActionReset     = "reset"
)

// Step is a single call on one source.
type Step struct {
	// Source names the source the step runs against.
	Source string `yaml:"source"`

	// Action is one of transform, update, push, pull, query or reset.
	Action string `yaml:"action"`

	// Ops are wire-shaped operations ({op, path, value?, from?}) for
	// transform, update and push.
	Ops []map[string]any `yaml:"ops,omitempty"`

	// Paths are JSON pointers for query and pull.
	Paths []string `yaml:"paths,omitempty"`

	// Expect checks the step's outcome. Without it the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected error code, e.g. PATH_NOT_FOUND.
	Error string `yaml:"error,omitempty"`

	// Value is the expected query result.
	Value any `yaml:"value,omitempty"`
}

// Assertion validates the state after all steps ran.
type Assertion struct {
	// Type specifies the assertion type:
	// - "document": the value at Path in Source equals Expect
	// - "absent": Path does not resolve in Source
	// - "log_contains": Source's log contains ID
	// - "log_count": Source's log holds Count ids
	// - "journal_count": the journal holds Count records for Source
	Type string `yaml:"type"`

	Source string `yaml:"source"`
	Path   string `yaml:"path,omitempty"`
	Expect any    `yaml:"expect,omitempty"`
	ID     string `yaml:"id,omitempty"`
	Count  int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertDocument     = "document"
	AssertAbsent       = "absent"
	AssertLogContains  = "log_contains"
	AssertLogCount     = "log_count"
	AssertJournalCount = "journal_count"
)

// LoadScenario reads and parses a scenario YAML file. A relative topology
// path resolves against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving a relative topology path against basePath.
// It rejects unknown fields (typos) and missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Topology != "" && !filepath.IsAbs(scenario.Topology) && basePath != "" {
		scenario.Topology = filepath.Join(basePath, scenario.Topology)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if _, err := os.Stat(scenario.Topology); err != nil {
		return nil, fmt.Errorf("invalid scenario: topology not found: %s", scenario.Topology)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Topology == "" {
		return fmt.Errorf("topology is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	if s.Source == "" {
		return fmt.Errorf("steps[%d]: source is required", index)
	}

	switch s.Action {
	case ActionTransform, ActionUpdate, ActionPush:
		if len(s.Ops) == 0 {
			return fmt.Errorf("steps[%d]: ops are required for %s", index, s.Action)
		}
		if _, err := s.operations(); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case ActionQuery, ActionPull:
		if len(s.Paths) == 0 {
			return fmt.Errorf("steps[%d]: paths are required for %s", index, s.Action)
		}
		if _, err := s.pointers(); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case ActionReset:
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, s.Action)
	}

	if s.Expect != nil && s.Expect.Value != nil && s.Action != ActionQuery {
		return fmt.Errorf("steps[%d].expect: value applies to query steps only", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Source == "" {
		return fmt.Errorf("assertions[%d]: source is required", index)
	}

	switch a.Type {
	case AssertDocument:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for document", index)
		}
		fallthrough
	case AssertAbsent:
		if _, err := patch.ParsePointer(a.Path); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertLogContains:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for log_contains", index)
		}
	case AssertLogCount, AssertJournalCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// operations decodes the step's ops.
func (s *Step) operations() ([]patch.Operation, error) {
	items := make([]any, len(s.Ops))
	for i, op := range s.Ops {
		items[i] = op
	}
	v, err := value.FromNative(items)
	if err != nil {
		return nil, fmt.Errorf("ops: %w", err)
	}
	return patch.OperationsFromValue(v)
}

// pointers parses the step's paths.
func (s *Step) pointers() ([]patch.Path, error) {
	paths := make([]patch.Path, len(s.Paths))
	for i, p := range s.Paths {
		path, err := patch.ParsePointer(p)
		if err != nil {
			return nil, err
		}
		paths[i] = path
	}
	return paths, nil
}
