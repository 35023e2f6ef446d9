package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/value"
)

var testNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedDoctype stores a minimal doctype with the given fields.
func seedDoctype(t *testing.T, s *Store, name string, fields ...model.Field) *model.Doctype {
	t.Helper()
	if len(fields) == 0 {
		fields = []model.Field{{Name: "title", Type: model.FieldString}}
	}
	dt := &model.Doctype{Name: name, Slug: slug(name), Fields: fields, IsActive: true}
	if _, err := s.PutDoctype(context.Background(), dt, testNow); err != nil {
		t.Fatalf("PutDoctype(%s) failed: %v", name, err)
	}
	return dt
}

// createTestDocument inserts a draft document with the given data.
func createTestDocument(t *testing.T, s *Store, id, doctype, name string, data value.Object) *model.Document {
	t.Helper()
	doc := &model.Document{
		ID:        id,
		Doctype:   doctype,
		Name:      name,
		Data:      data,
		CreatedBy: "alice",
		CreatedAt: testNow,
		UpdatedBy: "alice",
		UpdatedAt: testNow,
	}
	if err := s.InsertDocument(context.Background(), doc); err != nil {
		t.Fatalf("InsertDocument(%s) failed: %v", id, err)
	}
	return doc
}

func slug(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		case c == ' ':
			out = append(out, '-')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
