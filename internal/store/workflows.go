package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/model"
)

// workflowManaged are the definition keys owned by table columns.
var workflowManaged = []string{"id"}

// PutWorkflow inserts or replaces a workflow by name. Storing an active
// workflow deactivates the other workflows of its doctype, so at most one
// is active at a time. On return wf.ID is set.
func (s *Store) PutWorkflow(ctx context.Context, wf *model.Workflow, now time.Time) error {
	def, _, err := marshalDefinition(wf, workflowManaged...)
	if err != nil {
		return fmt.Errorf("put workflow %s: %w", wf.Name, err)
	}
	if wf.IsActive {
		_, err := s.q.ExecContext(ctx, `
			UPDATE workflows SET is_active = 0, updated_at = ?
			WHERE doctype = ? AND name != ? AND is_active = 1
		`, formatTime(now), wf.Doctype, wf.Name)
		if err != nil {
			return fmt.Errorf("deactivate workflows of %s: %w", wf.Doctype, err)
		}
	}
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO workflows (name, doctype, is_active, definition, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			doctype = excluded.doctype,
			is_active = excluded.is_active,
			definition = excluded.definition,
			updated_at = excluded.updated_at
		RETURNING id
	`, wf.Name, wf.Doctype, boolInt(wf.IsActive), def, formatTime(now), formatTime(now)).Scan(&wf.ID)
	if err != nil {
		return fmt.Errorf("put workflow %s: %w", wf.Name, err)
	}
	return nil
}

// GetWorkflow returns a workflow by name.
func (s *Store) GetWorkflow(ctx context.Context, name string) (*model.Workflow, error) {
	wf, err := scanWorkflow(s.r.QueryRowContext(ctx,
		`SELECT id, is_active, definition FROM workflows WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound("workflow", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", name, err)
	}
	return wf, nil
}

// ActiveWorkflow returns the active workflow of a doctype.
func (s *Store) ActiveWorkflow(ctx context.Context, doctype string) (*model.Workflow, error) {
	wf, err := scanWorkflow(s.r.QueryRowContext(ctx, `
		SELECT id, is_active, definition FROM workflows
		WHERE doctype = ? AND is_active = 1
		ORDER BY id DESC LIMIT 1
	`, doctype))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound("active workflow for doctype", doctype)
	}
	if err != nil {
		return nil, fmt.Errorf("active workflow of %s: %w", doctype, err)
	}
	return wf, nil
}

// GetWorkflowState returns where a document is in its workflow.
func (s *Store) GetWorkflowState(ctx context.Context, documentID string) (*model.DocumentWorkflowState, error) {
	var (
		st        model.DocumentWorkflowState
		changedAt string
	)
	err := s.r.QueryRowContext(ctx, `
		SELECT document_id, workflow, current_state, changed_by, changed_at
		FROM document_workflow_states WHERE document_id = ?
	`, documentID).Scan(&st.DocumentID, &st.Workflow, &st.CurrentState, &st.ChangedBy, &changedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound("workflow state for document", documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow state %s: %w", documentID, err)
	}
	if st.ChangedAt, err = parseTime(changedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

// PutWorkflowState records a document's current workflow state.
func (s *Store) PutWorkflowState(ctx context.Context, st model.DocumentWorkflowState) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO document_workflow_states (document_id, workflow, current_state, changed_by, changed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (document_id) DO UPDATE SET
			workflow = excluded.workflow,
			current_state = excluded.current_state,
			changed_by = excluded.changed_by,
			changed_at = excluded.changed_at
	`, st.DocumentID, st.Workflow, st.CurrentState, st.ChangedBy, formatTime(st.ChangedAt))
	if err != nil {
		return fmt.Errorf("put workflow state %s: %w", st.DocumentID, err)
	}
	return nil
}

func scanWorkflow(row rowScanner) (*model.Workflow, error) {
	var (
		id     int64
		active bool
		def    string
		wf     model.Workflow
	)
	if err := row.Scan(&id, &active, &def); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(def), &wf); err != nil {
		return nil, fmt.Errorf("decode workflow %d: %w", id, err)
	}
	wf.ID = id
	wf.IsActive = active
	return &wf, nil
}
