package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_InvoiceApproval(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/invoice_approval.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshotRender_OmitsEmptyFields(t *testing.T) {
	result := NewResult()
	result.addTrace(TraceEvent{Op: OpDelete, Doc: "acme", Error: "REFERENTIAL_INTEGRITY_ERROR"})

	out, err := Snapshot("one_step", result).Render()
	require.NoError(t, err)
	assert.Equal(t, `{
  "emails": 0,
  "notifications": 0,
  "scenario_name": "one_step",
  "trace": [
    {
      "doc": "acme",
      "error": "REFERENTIAL_INTEGRITY_ERROR",
      "op": "delete",
      "seq": 1
    }
  ]
}`, string(out))
}
