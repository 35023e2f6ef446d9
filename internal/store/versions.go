package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/doctype/internal/errs"
)

// VersionRecord is a document_versions row as stored. Snapshot and
// Changes are canonical JSON text; they are parsed and verified by the
// version package, never here.
type VersionRecord struct {
	DocumentID    string
	Number        int64
	Snapshot      string
	Changes       string
	ChangedBy     string
	ChangedAt     time.Time
	Comment       string
	IntegrityHash string
}

const selectVersion = `
	SELECT document_id, version_number, data_snapshot, changes, changed_by, changed_at, comment, integrity_hash
	FROM document_versions`

// InsertVersion appends a version row. Rows are immutable: a second row
// with the same number is a conflict.
func (s *Store) InsertVersion(ctx context.Context, rec VersionRecord) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO document_versions
		(document_id, version_number, data_snapshot, changes, changed_by, changed_at, comment, integrity_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.DocumentID, rec.Number, rec.Snapshot, rec.Changes,
		rec.ChangedBy, formatTime(rec.ChangedAt), rec.Comment, rec.IntegrityHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.New(errs.KindConflict, "version %d already exists", rec.Number).
				WithDocument("", rec.DocumentID)
		}
		return fmt.Errorf("insert version %s@%d: %w", rec.DocumentID, rec.Number, err)
	}
	return nil
}

// LatestVersionNumber returns the highest version number of a document,
// 0 when it has none.
func (s *Store) LatestVersionNumber(ctx context.Context, documentID string) (int64, error) {
	var n int64
	err := s.r.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) FROM document_versions WHERE document_id = ?`,
		documentID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("latest version of %s: %w", documentID, err)
	}
	return n, nil
}

// GetVersion returns one version row.
func (s *Store) GetVersion(ctx context.Context, documentID string, number int64) (*VersionRecord, error) {
	rec, err := scanVersion(s.r.QueryRowContext(ctx,
		selectVersion+` WHERE document_id = ? AND version_number = ?`, documentID, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound("version", fmt.Sprintf("%s@%d", documentID, number))
	}
	if err != nil {
		return nil, fmt.Errorf("get version %s@%d: %w", documentID, number, err)
	}
	return rec, nil
}

// ListVersions returns every version row of a document, newest first.
func (s *Store) ListVersions(ctx context.Context, documentID string) ([]VersionRecord, error) {
	rows, err := s.r.QueryContext(ctx,
		selectVersion+` WHERE document_id = ? ORDER BY version_number DESC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query versions of %s: %w", documentID, err)
	}
	defer rows.Close()

	recs := []VersionRecord{}
	for rows.Next() {
		rec, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return recs, nil
}

// DeleteVersionsBelow removes the versions numbered lower than keepFrom
// and returns how many were deleted.
func (s *Store) DeleteVersionsBelow(ctx context.Context, documentID string, keepFrom int64) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM document_versions WHERE document_id = ? AND version_number < ?`,
		documentID, keepFrom)
	if err != nil {
		return 0, fmt.Errorf("prune versions of %s: %w", documentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune versions of %s: %w", documentID, err)
	}
	return n, nil
}

func scanVersion(row rowScanner) (*VersionRecord, error) {
	var (
		rec       VersionRecord
		changedAt string
	)
	err := row.Scan(&rec.DocumentID, &rec.Number, &rec.Snapshot, &rec.Changes,
		&rec.ChangedBy, &changedAt, &rec.Comment, &rec.IntegrityHash)
	if err != nil {
		return nil, err
	}
	if rec.ChangedAt, err = parseTime(changedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
