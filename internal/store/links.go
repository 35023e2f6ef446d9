package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/doctype/internal/model"
)

// SetLink points a single-link field at targetID. An empty target removes
// the edge.
func (s *Store) SetLink(ctx context.Context, sourceID, field, targetID string, now time.Time) error {
	if targetID == "" {
		if _, err := s.q.ExecContext(ctx,
			`DELETE FROM document_links WHERE source_id = ? AND field = ?`, sourceID, field); err != nil {
			return fmt.Errorf("clear link %s.%s: %w", sourceID, field, err)
		}
		return nil
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO document_links (source_id, field, target_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (source_id, field) DO UPDATE SET target_id = excluded.target_id, created_at = excluded.created_at
		WHERE target_id != excluded.target_id
	`, sourceID, field, targetID, formatTime(now))
	if err != nil {
		return fmt.Errorf("set link %s.%s: %w", sourceID, field, err)
	}
	return nil
}

// SetLinks replaces the ordered targets of a multi-link field.
func (s *Store) SetLinks(ctx context.Context, sourceID, field string, targetIDs []string, now time.Time) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM document_link_multiple WHERE source_id = ? AND field = ?`, sourceID, field); err != nil {
		return fmt.Errorf("clear links %s.%s: %w", sourceID, field, err)
	}
	for i, target := range targetIDs {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO document_link_multiple (source_id, field, position, target_id, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, sourceID, field, i, target, formatTime(now))
		if err != nil {
			return fmt.Errorf("set links %s.%s[%d]: %w", sourceID, field, i, err)
		}
	}
	return nil
}

// Links returns the outgoing edges of a document ordered by field and
// position. Single links have position 0.
func (s *Store) Links(ctx context.Context, sourceID string) ([]model.Link, error) {
	rows, err := s.r.QueryContext(ctx, `
		SELECT source_id, field, target_id, 0 AS position, created_at FROM document_links WHERE source_id = ?
		UNION ALL
		SELECT source_id, field, target_id, position, created_at FROM document_link_multiple WHERE source_id = ?
		ORDER BY field ASC, position ASC
	`, sourceID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query links of %s: %w", sourceID, err)
	}
	return collectLinks(rows)
}

// IncomingLinks returns the edges pointing at targetID from documents that
// are not soft-deleted.
func (s *Store) IncomingLinks(ctx context.Context, targetID string) ([]model.Link, error) {
	rows, err := s.r.QueryContext(ctx, `
		SELECT l.source_id, l.field, l.target_id, 0 AS position, l.created_at
		FROM document_links l JOIN documents d ON d.id = l.source_id
		WHERE l.target_id = ? AND d.is_deleted = 0
		UNION ALL
		SELECT m.source_id, m.field, m.target_id, m.position, m.created_at
		FROM document_link_multiple m JOIN documents d ON d.id = m.source_id
		WHERE m.target_id = ? AND d.is_deleted = 0
		ORDER BY 1 ASC, 2 ASC, 4 ASC
	`, targetID, targetID)
	if err != nil {
		return nil, fmt.Errorf("query links to %s: %w", targetID, err)
	}
	return collectLinks(rows)
}

func collectLinks(rows *sql.Rows) ([]model.Link, error) {
	defer rows.Close()

	links := []model.Link{}
	for rows.Next() {
		var (
			l       model.Link
			created string
		)
		if err := rows.Scan(&l.SourceID, &l.Field, &l.TargetID, &l.Position, &created); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		t, err := parseTime(created)
		if err != nil {
			return nil, err
		}
		l.Created = t
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}
