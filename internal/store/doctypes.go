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
	"github.com/roach88/doctype/internal/value"
)

// doctypeManaged are the definition keys owned by table columns.
var doctypeManaged = []string{"is_active", "version", "created_at", "updated_at"}

// PutDoctype inserts or redefines a doctype. The version starts at 1 and
// is incremented only when the definition actually changes; redefining an
// identical definition is a no-op that reports changed=false.
//
// Redefinition reactivates a disabled doctype. On return dt carries the
// stored version and timestamps.
func (s *Store) PutDoctype(ctx context.Context, dt *model.Doctype, now time.Time) (bool, error) {
	def, obj, err := marshalDefinition(dt.Definition(), doctypeManaged...)
	if err != nil {
		return false, fmt.Errorf("put doctype %s: %w", dt.Name, err)
	}
	hash, err := value.DefinitionHash(obj)
	if err != nil {
		return false, fmt.Errorf("put doctype %s: %w", dt.Name, err)
	}

	var (
		oldHash   string
		version   int64
		active    bool
		createdAt string
	)
	err = s.q.QueryRowContext(ctx,
		`SELECT definition_hash, version, is_active, created_at FROM doctypes WHERE name = ?`,
		dt.Name,
	).Scan(&oldHash, &version, &active, &createdAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.q.ExecContext(ctx, `
			INSERT INTO doctypes (name, slug, definition, definition_hash, version, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, 1, 1, ?, ?)
		`, dt.Name, dt.Slug, def, hash, formatTime(now), formatTime(now))
		if err != nil {
			if isUniqueViolation(err) {
				return false, errs.New(errs.KindConflict, "doctype slug %q is already taken", dt.Slug)
			}
			return false, fmt.Errorf("insert doctype %s: %w", dt.Name, err)
		}
		dt.Version, dt.IsActive = 1, true
		dt.CreatedAt, dt.UpdatedAt = now.UTC(), now.UTC()
		return true, nil

	case err != nil:
		return false, fmt.Errorf("read doctype %s: %w", dt.Name, err)
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return false, err
	}
	if oldHash == hash && active {
		stored, err := s.GetDoctype(ctx, dt.Name)
		if err != nil {
			return false, err
		}
		*dt = *stored
		return false, nil
	}

	if oldHash != hash {
		version++
	}
	_, err = s.q.ExecContext(ctx, `
		UPDATE doctypes
		SET slug = ?, definition = ?, definition_hash = ?, version = ?, is_active = 1, updated_at = ?
		WHERE name = ?
	`, dt.Slug, def, hash, version, formatTime(now), dt.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return false, errs.New(errs.KindConflict, "doctype slug %q is already taken", dt.Slug)
		}
		return false, fmt.Errorf("update doctype %s: %w", dt.Name, err)
	}
	dt.Version, dt.IsActive = version, true
	dt.CreatedAt, dt.UpdatedAt = created, now.UTC()
	return true, nil
}

// GetDoctype returns the named doctype, active or not.
func (s *Store) GetDoctype(ctx context.Context, name string) (*model.Doctype, error) {
	row := s.r.QueryRowContext(ctx, `
		SELECT definition, version, is_active, created_at, updated_at
		FROM doctypes WHERE name = ?
	`, name)
	dt, err := scanDoctype(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound("doctype", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get doctype %s: %w", name, err)
	}
	return dt, nil
}

// ListDoctypes returns every doctype ordered by name.
func (s *Store) ListDoctypes(ctx context.Context) ([]*model.Doctype, error) {
	rows, err := s.r.QueryContext(ctx, `
		SELECT definition, version, is_active, created_at, updated_at
		FROM doctypes ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query doctypes: %w", err)
	}
	defer rows.Close()

	doctypes := []*model.Doctype{}
	for rows.Next() {
		dt, err := scanDoctype(rows)
		if err != nil {
			return nil, err
		}
		doctypes = append(doctypes, dt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate doctypes: %w", err)
	}
	return doctypes, nil
}

// SetDoctypeActive enables or disables a doctype. Doctypes are never
// physically removed.
func (s *Store) SetDoctypeActive(ctx context.Context, name string, active bool, now time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE doctypes SET is_active = ?, updated_at = ? WHERE name = ?`,
		boolInt(active), formatTime(now), name)
	if err != nil {
		return fmt.Errorf("set doctype %s active: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set doctype %s active: %w", name, err)
	}
	if n == 0 {
		return errs.NewNotFound("doctype", name)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoctype(row rowScanner) (*model.Doctype, error) {
	var (
		def                  string
		version              int64
		active               bool
		createdAt, updatedAt string
	)
	if err := row.Scan(&def, &version, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var dt model.Doctype
	if err := json.Unmarshal([]byte(def), &dt); err != nil {
		return nil, fmt.Errorf("decode doctype definition: %w", err)
	}
	var err error
	if dt.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if dt.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	dt.Version = version
	dt.IsActive = active
	return &dt, nil
}
