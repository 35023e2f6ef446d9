package store

import (
	"context"
	"fmt"
)

// NextInSeries increments and returns the counter of a naming series,
// creating it at 1. Run inside the transaction that inserts the document:
// a rollback releases the number.
func (s *Store) NextInSeries(ctx context.Context, doctype, prefix string) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO naming_series (doctype, prefix, current) VALUES (?, ?, 1)
		ON CONFLICT (doctype, prefix) DO UPDATE SET current = current + 1
		RETURNING current
	`, doctype, prefix).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next in series %s/%s: %w", doctype, prefix, err)
	}
	return n, nil
}

// CurrentInSeries returns the last allocated counter, 0 if none.
func (s *Store) CurrentInSeries(ctx context.Context, doctype, prefix string) (int64, error) {
	var n int64
	err := s.r.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(current), 0) FROM naming_series WHERE doctype = ? AND prefix = ?
	`, doctype, prefix).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("current in series %s/%s: %w", doctype, prefix, err)
	}
	return n, nil
}
