package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalDefs = `
doctypes:
  - name: Note
    naming: {strategy: prompt}
    fields:
      - {name: title, type: string, required: true}
`

// writeScenario writes a definitions file and a scenario next to it and
// returns the scenario path.
func writeScenario(t *testing.T, scenario string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "defs.yaml"), []byte(minimalDefs), 0644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0644))
	return path
}

func TestLoadScenario_ResolvesDefinitions(t *testing.T) {
	path := writeScenario(t, `
name: note
description: creates a note
definitions: [defs.yaml]
steps:
  - {op: create, as: n, doctype: Note, name: first, data: {title: hi}}
  - {op: update, doc: n, data: {title: there}}
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "note", s.Name)
	assert.Equal(t, []string{filepath.Join(filepath.Dir(path), "defs.yaml")}, s.Definitions)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, map[string]any{"title": "hi"}, s.Steps[0].Data)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		scenario string
		wantErr  string
	}{
		{
			name:     "unknown field",
			scenario: "name: x\ndescription: d\ndefinitions: [defs.yaml]\nstep: []\n",
			wantErr:  "failed to parse YAML",
		},
		{
			name:     "missing name",
			scenario: "description: d\ndefinitions: [defs.yaml]\nsteps: [{op: create, doctype: Note}]\n",
			wantErr:  "name is required",
		},
		{
			name:     "missing definitions file",
			scenario: "name: x\ndescription: d\ndefinitions: [nope.yaml]\nsteps: [{op: create, doctype: Note}]\n",
			wantErr:  "definition file not found",
		},
		{
			name:     "unknown op",
			scenario: "name: x\ndescription: d\ndefinitions: [defs.yaml]\nsteps: [{op: rename, doc: a}]\n",
			wantErr:  `unknown op "rename"`,
		},
		{
			name:     "alias used before it is defined",
			scenario: "name: x\ndescription: d\ndefinitions: [defs.yaml]\nsteps: [{op: submit, doc: a}]\n",
			wantErr:  `unknown doc alias "a"`,
		},
		{
			name:     "transition without label",
			scenario: "name: x\ndescription: d\ndefinitions: [defs.yaml]\nsteps: [{op: create, as: a, doctype: Note}, {op: transition, doc: a}]\n",
			wantErr:  "label is required",
		},
		{
			name:     "as on update",
			scenario: "name: x\ndescription: d\ndefinitions: [defs.yaml]\nsteps: [{op: create, as: a, doctype: Note}, {op: update, doc: a, as: b}]\n",
			wantErr:  "as is only allowed",
		},
		{
			name: "final_state without expect",
			scenario: "name: x\ndescription: d\ndefinitions: [defs.yaml]\nsteps: [{op: create, as: a, doctype: Note}]\n" +
				"assertions: [{type: final_state, doc: a}]\n",
			wantErr: "expect is required",
		},
		{
			name: "unknown assertion",
			scenario: "name: x\ndescription: d\ndefinitions: [defs.yaml]\nsteps: [{op: create, as: a, doctype: Note}]\n" +
				"assertions: [{type: trace_magic}]\n",
			wantErr: `unknown assertion type "trace_magic"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.scenario))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
