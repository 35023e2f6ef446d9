package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/queryir"
	"github.com/roach88/doctype/internal/querysql"
	"github.com/roach88/doctype/internal/value"
)

var documentColumns = []string{
	"id", "doctype", "name", "data", "doc_status", "parent_id", "amended_from",
	"version_number", "is_deleted", "deleted_by", "deleted_at",
	"created_by", "created_at", "updated_by", "updated_at",
	"submitted_by", "submitted_at", "hook_failures",
}

var (
	selectDocument = "SELECT " + strings.Join(documentColumns, ", ") + " FROM documents"
	listCompiler   = querysql.NewSQLCompiler("d." + strings.Join(documentColumns, ", d."))
	idCompiler     = querysql.NewSQLCompiler("d.id")
)

// InsertDocument writes a new document row. A name already used within
// the doctype is a conflict.
func (s *Store) InsertDocument(ctx context.Context, doc *model.Document) error {
	data, err := marshalData(doc.Data)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	failures, err := marshalHookFailures(doc.HookFailures)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO documents
		(id, doctype, name, data, doc_status, parent_id, amended_from,
		 version_number, is_deleted, deleted_by, deleted_at,
		 created_by, created_at, updated_by, updated_at,
		 submitted_by, submitted_at, hook_failures)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		doc.ID, doc.Doctype, doc.Name, data, int(doc.DocStatus),
		nullString(doc.ParentID), nullString(doc.AmendedFrom),
		doc.VersionNumber, boolInt(doc.IsDeleted), nullString(doc.DeletedBy), nullTime(doc.DeletedAt),
		doc.CreatedBy, formatTime(doc.CreatedAt), doc.UpdatedBy, formatTime(doc.UpdatedAt),
		nullString(doc.SubmittedBy), nullTime(doc.SubmittedAt), failures,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.New(errs.KindConflict, "document name %q already exists", doc.Name).
				WithDocument(doc.Doctype, doc.ID)
		}
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return nil
}

// UpdateDocument rewrites every mutable column of an existing document.
func (s *Store) UpdateDocument(ctx context.Context, doc *model.Document) error {
	data, err := marshalData(doc.Data)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	failures, err := marshalHookFailures(doc.HookFailures)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE documents SET
			name = ?, data = ?, doc_status = ?, parent_id = ?, amended_from = ?,
			version_number = ?, is_deleted = ?, deleted_by = ?, deleted_at = ?,
			updated_by = ?, updated_at = ?, submitted_by = ?, submitted_at = ?,
			hook_failures = ?
		WHERE id = ?
	`,
		doc.Name, data, int(doc.DocStatus), nullString(doc.ParentID), nullString(doc.AmendedFrom),
		doc.VersionNumber, boolInt(doc.IsDeleted), nullString(doc.DeletedBy), nullTime(doc.DeletedAt),
		doc.UpdatedBy, formatTime(doc.UpdatedAt), nullString(doc.SubmittedBy), nullTime(doc.SubmittedAt),
		failures, doc.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.New(errs.KindConflict, "document name %q already exists", doc.Name).
				WithDocument(doc.Doctype, doc.ID)
		}
		return fmt.Errorf("update document %s: %w", doc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document %s: %w", doc.ID, err)
	}
	if n == 0 {
		return errs.NewNotFound("document", doc.ID)
	}
	return nil
}

// SetHookFailures replaces the recorded hook failures of a document
// without touching its data or timestamps.
func (s *Store) SetHookFailures(ctx context.Context, id string, failures []model.HookFailure) error {
	text, err := marshalHookFailures(failures)
	if err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx, `UPDATE documents SET hook_failures = ? WHERE id = ?`, text, id); err != nil {
		return fmt.Errorf("set hook failures %s: %w", id, err)
	}
	return nil
}

// GetDocument returns a document by id, deleted or not.
func (s *Store) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	doc, err := scanDocument(s.r.QueryRowContext(ctx, selectDocument+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound("document", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// GetDocumentByName returns a document by its name within a doctype.
func (s *Store) GetDocumentByName(ctx context.Context, doctype, name string) (*model.Document, error) {
	doc, err := scanDocument(s.r.QueryRowContext(ctx,
		selectDocument+" WHERE doctype = ? AND name = ?", doctype, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound("document", doctype+"/"+name)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s/%s: %w", doctype, name, err)
	}
	return doc, nil
}

// ListDocuments returns the documents matching sel in deterministic order.
func (s *Store) ListDocuments(ctx context.Context, sel queryir.Select) ([]*model.Document, error) {
	query, params, err := listCompiler.Compile(sel)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "invalid filter")
	}
	rows, err := s.r.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	return collectDocuments(rows)
}

// FindByField returns the ids of live documents of doctype whose data
// field equals v, for unique checks.
func (s *Store) FindByField(ctx context.Context, doctype, field string, v value.Value) ([]string, error) {
	query, params, err := idCompiler.Compile(queryir.Select{
		Doctype: doctype,
		Filter:  queryir.Equals{Field: "data." + field, Value: v},
	})
	if err != nil {
		return nil, fmt.Errorf("find by field %s: %w", field, err)
	}
	rows, err := s.r.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("find by field %s: %w", field, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

// CountLive returns the number of documents of doctype that are not
// soft-deleted.
func (s *Store) CountLive(ctx context.Context, doctype string) (int, error) {
	var n int
	err := s.r.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE doctype = ? AND is_deleted = 0`, doctype,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents %s: %w", doctype, err)
	}
	return n, nil
}

// Children returns the live documents whose parent is parentID, oldest
// first.
func (s *Store) Children(ctx context.Context, parentID string) ([]*model.Document, error) {
	rows, err := s.r.QueryContext(ctx, selectDocument+`
		WHERE parent_id = ? AND is_deleted = 0
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("query children of %s: %w", parentID, err)
	}
	return collectDocuments(rows)
}

func collectDocuments(rows *sql.Rows) ([]*model.Document, error) {
	defer rows.Close()

	docs := []*model.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		doc                               model.Document
		data, createdAt, updatedAt, hooks string
		status                            int
		parentID, amendedFrom             sql.NullString
		deletedBy, deletedAt              sql.NullString
		submittedBy, submittedAt          sql.NullString
	)
	err := row.Scan(
		&doc.ID, &doc.Doctype, &doc.Name, &data, &status, &parentID, &amendedFrom,
		&doc.VersionNumber, &doc.IsDeleted, &deletedBy, &deletedAt,
		&doc.CreatedBy, &createdAt, &doc.UpdatedBy, &updatedAt,
		&submittedBy, &submittedAt, &hooks,
	)
	if err != nil {
		return nil, err
	}

	doc.DocStatus = model.DocStatus(status)
	doc.ParentID = parentID.String
	doc.AmendedFrom = amendedFrom.String
	doc.DeletedBy = deletedBy.String
	doc.SubmittedBy = submittedBy.String

	if doc.Data, err = unmarshalData(data); err != nil {
		return nil, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	if doc.HookFailures, err = unmarshalHookFailures(hooks); err != nil {
		return nil, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	if doc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if doc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if doc.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, err
	}
	if doc.SubmittedAt, err = parseNullTime(submittedAt); err != nil {
		return nil, err
	}
	return &doc, nil
}
