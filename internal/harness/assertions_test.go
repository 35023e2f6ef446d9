package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/value"
)

var sampleTrace = []TraceEvent{
	{Seq: 1, Op: OpCreate, Doc: "inv", Name: "INV-0001", Status: "draft", Version: 1},
	{Seq: 2, Op: OpUpdate, Doc: "inv", Error: "VALIDATION_ERROR"},
	{Seq: 3, Op: OpTransition, Doc: "inv", Name: "INV-0001", Status: "draft", Version: 2, State: "Approved"},
	{Seq: 4, Op: OpSubmit, Doc: "inv", Name: "INV-0001", Status: "submitted", Version: 3},
}

func TestAssertTraceContains(t *testing.T) {
	assert.NoError(t, assertTraceContains(sampleTrace, Assertion{Op: OpSubmit}))
	assert.NoError(t, assertTraceContains(sampleTrace, Assertion{Op: OpSubmit, Doc: "inv"}))

	err := assertTraceContains(sampleTrace, Assertion{Op: OpSubmit, Doc: "other"})
	require.Error(t, err)
	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, AssertTraceContains, assertErr.Type)
	assert.Equal(t, "submit on other", assertErr.Expected)
	assert.Equal(t, "not found in trace", assertErr.Actual)
	assert.Contains(t, err.Error(), "[2] update inv -> VALIDATION_ERROR")
}

func TestAssertTraceOrder(t *testing.T) {
	assert.NoError(t, assertTraceOrder(sampleTrace, Assertion{Ops: []string{OpCreate, OpTransition, OpSubmit}}))

	err := assertTraceOrder(sampleTrace, Assertion{Ops: []string{OpSubmit, OpCreate}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "submit (pos 4) should be before create (pos 1)")

	err = assertTraceOrder(sampleTrace, Assertion{Ops: []string{OpCreate, OpCancel}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing op: cancel")
}

func TestAssertTraceCount(t *testing.T) {
	assert.NoError(t, assertTraceCount(sampleTrace, Assertion{Op: OpUpdate, Count: 1}))
	assert.NoError(t, assertTraceCount(sampleTrace, Assertion{Op: OpDelete, Count: 0}))

	err := assertTraceCount(sampleTrace, Assertion{Op: OpUpdate, Count: 2})
	require.Error(t, err)
	assertErr := err.(*AssertionError)
	assert.Equal(t, "2 occurrences of update", assertErr.Expected)
	assert.Equal(t, "1 occurrences", assertErr.Actual)
}

func TestAssertMessageCount(t *testing.T) {
	assert.NoError(t, assertMessageCount(AssertEmails, 2, 2))
	err := assertMessageCount(AssertNotifications, 0, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 1 notifications")
}

func TestSubsetMismatch(t *testing.T) {
	actual := value.Object{
		"name": value.String("INV-0001"),
		"data": value.Object{
			"qty":    value.Int(2),
			"status": value.String("approved"),
		},
	}

	tests := []struct {
		name     string
		expected value.Object
		wantPath string
	}{
		{"empty", value.Object{}, ""},
		{"top level match", value.Object{"name": value.String("INV-0001")}, ""},
		{"nested subset", value.Object{"data": value.Object{"qty": value.Int(2)}}, ""},
		{"nested mismatch", value.Object{"data": value.Object{"qty": value.Int(3)}}, "data.qty"},
		{"missing key", value.Object{"data": value.Object{"customer": value.String("Acme")}}, "data.customer"},
		{"absent null", value.Object{"data": value.Object{"customer": value.Null{}}}, ""},
		{"object against scalar", value.Object{"name": value.Object{"x": value.Int(1)}}, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, bad := subsetMismatch(actual, tt.expected, "")
			assert.Equal(t, tt.wantPath != "", bad)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestDocumentView(t *testing.T) {
	doc := &model.Document{
		Name:          "INV-0001",
		Doctype:       "Invoice",
		DocStatus:     model.Submitted,
		VersionNumber: 3,
	}
	view := documentView(doc)
	assert.Equal(t, value.String("submitted"), view["doc_status"])
	assert.Equal(t, value.Int(3), view["version_number"])
	assert.Equal(t, value.Int(0), view["hook_failures"])
	assert.Equal(t, value.Object{}, view["data"])
}

func TestRender(t *testing.T) {
	assert.Equal(t, "(missing)", render(nil))
	assert.Equal(t, `"two"`, render(value.String("two")))
	assert.Equal(t, `{"a":1}`, render(value.Object{"a": value.Int(1)}))
}
