package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/doctype/internal/value"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
	Emails       int          `json:"emails"`
	Notices      int          `json:"notifications"`
}

// value converts the snapshot for canonical serialization.
func (s *TraceSnapshot) value() value.Object {
	trace := make(value.Array, len(s.Trace))
	for i, event := range s.Trace {
		trace[i] = event.value()
	}
	return value.Object{
		"scenario_name": value.String(s.ScenarioName),
		"trace":         trace,
		"emails":        value.Int(int64(s.Emails)),
		"notifications": value.Int(int64(s.Notices)),
	}
}

// Render returns the snapshot as indented canonical JSON, the golden
// file format.
func (s *TraceSnapshot) Render() ([]byte, error) {
	text, err := value.MarshalIndent(s.value())
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// Snapshot builds the golden snapshot of a result.
func Snapshot(name string, result *Result) *TraceSnapshot {
	return &TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Emails:       len(result.Emails),
		Notices:      len(result.Notifications),
	}
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result).Render()
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
