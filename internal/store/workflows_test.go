package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/model"
)

func testWorkflow(name string) *model.Workflow {
	return &model.Workflow{
		Name:     name,
		Doctype:  "Invoice",
		IsActive: true,
		States: []model.State{
			{Name: "Draft", IsInitial: true},
			{Name: "Approved", IsFinal: true, IsSuccess: true},
		},
		Transitions: []model.Transition{{
			Label: "Approve", From: "Draft", To: "Approved",
			AllowedRoles: []string{"manager"},
			Actions:      []model.Action{{Type: model.ActionSetField, Field: "level", Value: json.Number("2")}},
		}},
	}
}

func TestWorkflows_OneActivePerDoctype(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := testWorkflow("Approval v1")
	require.NoError(t, s.PutWorkflow(ctx, first, testNow))
	second := testWorkflow("Approval v2")
	require.NoError(t, s.PutWorkflow(ctx, second, testNow))

	active, err := s.ActiveWorkflow(ctx, "Invoice")
	require.NoError(t, err)
	assert.Equal(t, "Approval v2", active.Name)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, json.Number("2"), active.Transitions[0].Actions[0].Value)

	old, err := s.GetWorkflow(ctx, "Approval v1")
	require.NoError(t, err)
	assert.False(t, old.IsActive)

	_, err = s.ActiveWorkflow(ctx, "Customer")
	assert.True(t, errs.IsNotFound(err))
}

func TestWorkflowState_Upsert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedDoctype(t, s, "Invoice")
	createTestDocument(t, s, "i1", "Invoice", "INV-1", nil)

	_, err := s.GetWorkflowState(ctx, "i1")
	assert.True(t, errs.IsNotFound(err))

	st := model.DocumentWorkflowState{DocumentID: "i1", Workflow: "Approval", CurrentState: "Draft", ChangedBy: "alice", ChangedAt: testNow}
	require.NoError(t, s.PutWorkflowState(ctx, st))
	st.CurrentState = "Approved"
	st.ChangedAt = testNow.Add(time.Hour)
	require.NoError(t, s.PutWorkflowState(ctx, st))

	got, err := s.GetWorkflowState(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, st, *got)
}
