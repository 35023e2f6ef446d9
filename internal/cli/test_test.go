package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyHarnessScenario copies the harness invoice scenario and its
// definitions into a temp directory and returns the directory.
func copyHarnessScenario(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"invoice_defs.yaml", "invoice_approval.yaml"} {
		data, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "scenarios", name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	}
	return dir
}

func runTestCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"test"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := runTestCommand(t, "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := runTestCommand(t, t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := runTestCommand(t, t.TempDir(), "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
}

func TestTestCommandRunsScenario(t *testing.T) {
	dir := copyHarnessScenario(t)

	out, err := runTestCommand(t, dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "\u2713 invoice_approval")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandGolden(t *testing.T) {
	dir := copyHarnessScenario(t)

	// The harness golden file is the CLI golden format too.
	golden, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "golden", "invoice_approval.golden"))
	require.NoError(t, err)
	goldenPath := filepath.Join(dir, "golden", "invoice_approval.golden")
	require.NoError(t, os.MkdirAll(filepath.Dir(goldenPath), 0755))
	require.NoError(t, os.WriteFile(goldenPath, golden, 0644))

	out, err := runTestCommand(t, dir)
	require.NoError(t, err, out)

	require.NoError(t, os.WriteFile(goldenPath, []byte("{}"), 0644))
	out, err = runTestCommand(t, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")

	out, err = runTestCommand(t, dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")
	updated, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Equal(t, string(golden), string(updated))
}

func TestTestCommandFailingScenarioJSON(t *testing.T) {
	dir := copyHarnessScenario(t)
	bad := `
name: bad_expectation
description: expects an error that does not happen
definitions: [invoice_defs.yaml]
steps:
  - {op: create, doctype: Customer, data: {customer_name: Acme}, expect_error: CONFLICT}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(bad), 0644))

	out, err := runTestCommand(t, dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TEST_FAILED", resp.Error.Code)
}

func TestFindScenarioFilesSkipsDefinitions(t *testing.T) {
	dir := copyHarnessScenario(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "invoice_approval.yaml")}, files)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	dir := copyHarnessScenario(t)
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "other.yaml"), []byte("steps: []\n"), 0644))

	files, err := findScenarioFiles(dir, "invoice_*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "invoice_approval.yaml")}, files)

	files, err = findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "invoice_approval.golden"),
		goldenFilePath(filepath.Join("scenarios", "approval.yaml"), "invoice_approval"))
}
