package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_UnwrapsWrappedErrors(t *testing.T) {
	base := New(KindIntegrity, "hash mismatch")
	wrapped := fmt.Errorf("read version: %w", base)

	assert.Equal(t, KindIntegrity, KindOf(wrapped))
	assert.True(t, IsIntegrity(wrapped))
	assert.False(t, IsValidation(wrapped))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestError_MessageIncludesIssuesAndDocument(t *testing.T) {
	err := NewValidation("Invoice", []Issue{
		{Field: "total", Message: "is required", Code: "V101"},
		{Field: "qty", Message: "expected integer"},
	})
	err.DocumentID = "doc-1"

	msg := err.Error()
	assert.Contains(t, msg, "VALIDATION_ERROR")
	assert.Contains(t, msg, "[V101] total: is required")
	assert.Contains(t, msg, "qty: expected integer")
	assert.Contains(t, msg, "document=doc-1")
}

func TestError_TraceNotInMessage(t *testing.T) {
	err := New(KindHookExecution, "hook failed")
	err.Trace = "line 1: division by zero"
	assert.NotContains(t, err.Error(), "division")
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindConflict, cause, "write %s", "x")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "CONFLICT: write x", err.Error())
}

func TestWithDetail(t *testing.T) {
	err := New(KindReferential, "linked").WithDetail("incoming", "3")
	assert.Equal(t, "3", err.Details["incoming"])
}

func TestAs(t *testing.T) {
	e, ok := As(fmt.Errorf("x: %w", NewNotFound("document", "abc")))
	require.True(t, ok)
	assert.Equal(t, KindNotFound, e.Kind)
	assert.Equal(t, `document "abc" not found`, e.Message)
}
