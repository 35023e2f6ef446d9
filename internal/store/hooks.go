package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/doctype/internal/model"
)

// hookManaged are the definition keys owned by table columns.
var hookManaged = []string{"id"}

// PutHook inserts or replaces a hook, keyed by (doctype, name). An empty
// name is derived from the hook type, action and order. On return h.ID and
// h.Name are set.
func (s *Store) PutHook(ctx context.Context, h *model.Hook) error {
	if h.Name == "" {
		h.Name = fmt.Sprintf("%s-%s-%d", h.Type, h.Action, h.Order)
	}
	def, _, err := marshalDefinition(h, hookManaged...)
	if err != nil {
		return fmt.Errorf("put hook %s: %w", h.Name, err)
	}
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO hooks (name, doctype, hook_type, action_type, sort_order, is_active, definition)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (doctype, name) DO UPDATE SET
			hook_type = excluded.hook_type,
			action_type = excluded.action_type,
			sort_order = excluded.sort_order,
			is_active = excluded.is_active,
			definition = excluded.definition
		RETURNING id
	`, h.Name, h.Doctype, string(h.Type), string(h.Action), h.Order, boolInt(h.IsActive), def).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("put hook %s: %w", h.Name, err)
	}
	return nil
}

// ListHooks returns the active hooks of a doctype for one hook type in
// dispatch order: ascending order, ties by id.
func (s *Store) ListHooks(ctx context.Context, doctype string, hookType model.HookType) ([]model.Hook, error) {
	return s.queryHooks(ctx, `
		SELECT id, definition FROM hooks
		WHERE doctype = ? AND hook_type = ? AND is_active = 1
		ORDER BY sort_order ASC, id ASC
	`, doctype, string(hookType))
}

// AllHooks returns every hook of a doctype, active or not.
func (s *Store) AllHooks(ctx context.Context, doctype string) ([]model.Hook, error) {
	return s.queryHooks(ctx, `
		SELECT id, definition FROM hooks WHERE doctype = ?
		ORDER BY hook_type ASC, sort_order ASC, id ASC
	`, doctype)
}

func (s *Store) queryHooks(ctx context.Context, query string, args ...any) ([]model.Hook, error) {
	rows, err := s.r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query hooks: %w", err)
	}
	defer rows.Close()

	hooks := []model.Hook{}
	for rows.Next() {
		var (
			id  int64
			def string
			h   model.Hook
		)
		if err := rows.Scan(&id, &def); err != nil {
			return nil, fmt.Errorf("scan hook: %w", err)
		}
		if err := json.Unmarshal([]byte(def), &h); err != nil {
			return nil, fmt.Errorf("decode hook %d: %w", id, err)
		}
		h.ID = id
		hooks = append(hooks, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hooks: %w", err)
	}
	return hooks, nil
}
