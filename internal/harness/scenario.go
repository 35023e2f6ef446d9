package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one engine conformance test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definitions lists definition files (CUE, JSON, JSONC or YAML) to
	// load before the steps run. Paths are relative to the scenario file.
	Definitions []string `yaml:"definitions"`

	// Actors declares the roles of the actor names used by steps. Names
	// not listed are actors without roles.
	Actors map[string]ActorSpec `yaml:"actors,omitempty"`

	// Directory maps actor ids to email addresses for workflow emails.
	Directory map[string]string `yaml:"directory,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and documents.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ActorSpec describes a named actor.
type ActorSpec struct {
	Email     string   `yaml:"email,omitempty"`
	Roles     []string `yaml:"roles,omitempty"`
	Superuser bool     `yaml:"superuser,omitempty"`
}

// Step is one engine operation.
type Step struct {
	// Op is the operation: create, update, submit, cancel, amend, delete,
	// transition or restore.
	Op string `yaml:"op"`

	// Actor names who performs the step.
	Actor string `yaml:"actor,omitempty"`

	// Doc is the alias of the target document.
	Doc string `yaml:"doc,omitempty"`

	// As names the document created by create or amend.
	As string `yaml:"as,omitempty"`

	Doctype string         `yaml:"doctype,omitempty"`
	Name    string         `yaml:"name,omitempty"`
	Parent  string         `yaml:"parent,omitempty"`
	Data    map[string]any `yaml:"data,omitempty"`
	Label   string         `yaml:"label,omitempty"`
	Comment string         `yaml:"comment,omitempty"`
	Version int64          `yaml:"version,omitempty"`

	// ExpectError is the error kind the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Op is the step operation (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Doc is a document alias (trace_contains, final_state).
	Doc string `yaml:"doc,omitempty"`

	// Ops is the expected order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number of occurrences (trace_count, emails,
	// notifications).
	Count int `yaml:"count,omitempty"`

	// Expect contains expected document values (final_state). Subset
	// match: only listed keys are checked, recursively for data.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertEmails        = "emails"
	AssertNotifications = "notifications"
)

// Step operations.
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpSubmit     = "submit"
	OpCancel     = "cancel"
	OpAmend      = "amend"
	OpDelete     = "delete"
	OpTransition = "transition"
	OpRestore    = "restore"
)

var knownOps = map[string]bool{
	OpCreate: true, OpUpdate: true, OpSubmit: true, OpCancel: true,
	OpAmend: true, OpDelete: true, OpTransition: true, OpRestore: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// Definition paths are resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict fields catch typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, def := range scenario.Definitions {
		if !filepath.IsAbs(def) {
			scenario.Definitions[i] = filepath.Join(base, def)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
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
	if len(s.Definitions) == 0 {
		return fmt.Errorf("definitions list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, def := range s.Definitions {
		if _, err := os.Stat(def); os.IsNotExist(err) {
			return fmt.Errorf("definition file not found: %s", def)
		}
	}

	aliases := map[string]bool{}
	for i, step := range s.Steps {
		if err := validateStep(i, step, aliases); err != nil {
			return err
		}
		if step.As != "" {
			aliases[step.As] = true
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, aliases map[string]bool) error {
	if !knownOps[step.Op] {
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}
	switch step.Op {
	case OpCreate:
		if step.Doctype == "" {
			return fmt.Errorf("steps[%d]: doctype is required for create", i)
		}
		if step.Parent != "" && !aliases[step.Parent] {
			return fmt.Errorf("steps[%d]: unknown parent alias %q", i, step.Parent)
		}
	default:
		if step.Doc == "" {
			return fmt.Errorf("steps[%d]: doc is required for %s", i, step.Op)
		}
		if !aliases[step.Doc] {
			return fmt.Errorf("steps[%d]: unknown doc alias %q", i, step.Doc)
		}
	}
	switch step.Op {
	case OpTransition:
		if step.Label == "" {
			return fmt.Errorf("steps[%d]: label is required for transition", i)
		}
	case OpRestore:
		if step.Version < 1 {
			return fmt.Errorf("steps[%d]: version is required for restore", i)
		}
	}
	if step.As != "" && step.Op != OpCreate && step.Op != OpAmend {
		return fmt.Errorf("steps[%d]: as is only allowed on create and amend", i)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Doc == "" {
			return fmt.Errorf("assertions[%d]: doc is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertEmails, AssertNotifications:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
