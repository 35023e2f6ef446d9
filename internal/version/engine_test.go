package version

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/notify"
	"github.com/roach88/doctype/internal/store"
	"github.com/roach88/doctype/internal/value"
)

var (
	t0    = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	alice = model.Actor{ID: "alice"}
)

type fixture struct {
	st    *store.Store
	eng   *Engine
	audit *notify.Recorder
	doc   *model.Document
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "versions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	dt := &model.Doctype{Name: "Note", Slug: "note", Fields: []model.Field{{Name: "title", Type: model.FieldString}}}
	_, err = st.PutDoctype(ctx, dt, t0)
	require.NoError(t, err)

	doc := &model.Document{
		ID: "doc-1", Doctype: "Note", Name: "doc-1",
		Data:      value.Object{},
		CreatedBy: "alice", CreatedAt: t0, UpdatedBy: "alice", UpdatedAt: t0,
	}
	require.NoError(t, st.InsertDocument(ctx, doc))

	rec := notify.NewRecorder()
	return &fixture{st: st, eng: New(WithAuditSink(rec)), audit: rec, doc: doc}
}

// write replaces the document data and snapshots it.
func (f *fixture) write(t *testing.T, data value.Object, comment string) *model.Version {
	t.Helper()
	f.doc.Data = data
	v, err := f.eng.Snapshot(context.Background(), f.st, f.doc, alice, comment, t0.Add(time.Duration(f.doc.VersionNumber)*time.Minute))
	require.NoError(t, err)
	return v
}

func TestSnapshot_NumbersAndChanges(t *testing.T) {
	f := newFixture(t)

	v1 := f.write(t, value.Object{"a": value.Int(1), "b": value.Int(2)}, "created")
	v2 := f.write(t, value.Object{"b": value.Int(3), "c": value.Int(4)}, "")

	assert.Equal(t, int64(1), v1.Number)
	assert.Equal(t, int64(2), v2.Number)
	assert.Equal(t, int64(2), f.doc.VersionNumber)
	assert.Len(t, v1.Changes.Added, 2)
	assert.Equal(t, value.Object{"c": value.Int(4)}, v2.Changes.Added)
	assert.Equal(t, value.Object{"a": value.Int(1)}, v2.Changes.Removed)
	assert.Equal(t, model.Modification{Old: value.Int(2), New: value.Int(3)}, v2.Changes.Modified["b"])
	assert.Equal(t, value.MustVersionHash("doc-1", 2, v2.Snapshot), v2.IntegrityHash)
}

func TestSnapshot_IsolatedFromLaterEdits(t *testing.T) {
	f := newFixture(t)
	f.write(t, value.Object{"title": value.String("first")}, "")
	f.doc.Data["title"] = value.String("mutated in memory")

	v, err := f.eng.Get(context.Background(), f.st, alice, "doc-1", 1)
	require.NoError(t, err)
	assert.Equal(t, value.String("first"), v.Snapshot["title"])
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	f.write(t, value.Object{"title": value.String("one")}, "first")
	f.write(t, value.Object{"title": value.String("two")}, "second")
	ctx := context.Background()

	v, err := f.eng.Get(ctx, f.st, alice, "doc-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "first", v.Comment)
	assert.Equal(t, "alice", v.ChangedBy)
	assert.True(t, v.ChangedAt.Equal(t0))

	list, err := f.eng.List(ctx, f.st, alice, "doc-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].Number)
	assert.Equal(t, int64(1), list[1].Number)

	_, err = f.eng.Get(ctx, f.st, alice, "doc-1", 9)
	assert.True(t, errs.IsNotFound(err))
}

func TestTamperDetection(t *testing.T) {
	f := newFixture(t)
	f.write(t, value.Object{"amount": value.Int(100)}, "")
	f.write(t, value.Object{"amount": value.Int(150)}, "")
	ctx := context.Background()

	_, err := f.st.DB().ExecContext(ctx,
		`UPDATE document_versions SET data_snapshot = '{"amount":999}' WHERE document_id = ? AND version_number = 1`, "doc-1")
	require.NoError(t, err)

	v, err := f.eng.Get(ctx, f.st, alice, "doc-1", 1)
	assert.Nil(t, v)
	require.Error(t, err)
	assert.True(t, errs.IsIntegrity(err))

	_, err = f.eng.List(ctx, f.st, alice, "doc-1")
	assert.True(t, errs.IsIntegrity(err))

	_, err = f.eng.Get(ctx, f.st, alice, "doc-1", 2)
	assert.NoError(t, err, "untouched versions still verify")

	events := f.audit.Events()
	require.Len(t, events, 2)
	assert.Equal(t, notify.EventIntegrityFail, events[0].Type)
	assert.Equal(t, notify.SeverityCritical, events[0].Severity)
	assert.Equal(t, "alice", events[0].Actor)
	assert.Equal(t, "1", events[0].Metadata["version_number"])
}

func TestTamperDetection_UnparsableSnapshot(t *testing.T) {
	f := newFixture(t)
	f.write(t, value.Object{"amount": value.Int(100)}, "")
	ctx := context.Background()

	_, err := f.st.DB().ExecContext(ctx, `UPDATE document_versions SET data_snapshot = '{not json' WHERE document_id = ?`, "doc-1")
	require.NoError(t, err)

	_, err = f.eng.Get(ctx, f.st, alice, "doc-1", 1)
	assert.True(t, errs.IsIntegrity(err))
}

func TestTamperedHistoryBlocksSnapshot(t *testing.T) {
	f := newFixture(t)
	f.write(t, value.Object{"amount": value.Int(100)}, "")
	ctx := context.Background()

	_, err := f.st.DB().ExecContext(ctx, `UPDATE document_versions SET integrity_hash = 'deadbeef' WHERE document_id = ?`, "doc-1")
	require.NoError(t, err)

	f.doc.Data = value.Object{"amount": value.Int(1)}
	_, err = f.eng.Snapshot(ctx, f.st, f.doc, alice, "", t0)
	assert.True(t, errs.IsIntegrity(err))
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	f.write(t, value.Object{"n": value.Int(1)}, "")
	f.write(t, value.Object{"n": value.Int(2)}, "")
	f.write(t, value.Object{"n": value.Int(3)}, "")
	ctx := context.Background()

	_, err := f.st.DB().ExecContext(ctx,
		`UPDATE document_versions SET data_snapshot = '{"n":20}' WHERE document_id = ? AND version_number = 2`, "doc-1")
	require.NoError(t, err)

	checks, err := f.eng.Verify(ctx, f.st, alice, "doc-1")
	require.NoError(t, err)
	require.Len(t, checks, 3)
	assert.True(t, checks[0].Valid)
	assert.False(t, checks[1].Valid)
	assert.Equal(t, int64(2), checks[1].Number)
	assert.NotEmpty(t, checks[1].Reason)
	assert.True(t, checks[2].Valid)
	assert.Len(t, f.audit.Events(), 1)
}

func TestCompare(t *testing.T) {
	f := newFixture(t)
	f.write(t, value.Object{"a": value.Int(1), "b": value.Int(2)}, "")
	f.write(t, value.Object{"a": value.Int(1), "b": value.Int(5)}, "")
	f.write(t, value.Object{"b": value.Int(3), "c": value.Int(4)}, "")

	c, err := f.eng.Compare(context.Background(), f.st, alice, "doc-1", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, value.Object{"c": value.Int(4)}, c.Added)
	assert.Equal(t, value.Object{"a": value.Int(1)}, c.Removed)
	assert.Equal(t, model.Modification{Old: value.Int(2), New: value.Int(3)}, c.Modified["b"])
}

func TestDiffText(t *testing.T) {
	f := newFixture(t)
	f.write(t, value.Object{"a": value.Int(1), "b": value.Int(2)}, "")
	f.write(t, value.Object{"b": value.Int(3), "c": value.Int(4)}, "")
	ctx := context.Background()
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))

	whole, err := f.eng.DiffText(ctx, f.st, alice, "doc-1", 1, 2, "")
	require.NoError(t, err)
	g.Assert(t, "diff_document", []byte(whole))

	field, err := f.eng.DiffText(ctx, f.st, alice, "doc-1", 1, 2, "b")
	require.NoError(t, err)
	g.Assert(t, "diff_field", []byte(field))

	same, err := f.eng.DiffText(ctx, f.st, alice, "doc-1", 2, 2, "")
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	f.write(t, value.Object{"a": value.Int(1)}, "created")
	f.write(t, value.Object{"a": value.Int(1)}, "touched")
	f.write(t, value.Object{"a": value.Int(2), "b": value.Int(1)}, "")

	h, err := f.eng.History(context.Background(), f.st, alice, "doc-1")
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, "1 field added, 1 field modified", h[0].Summary)
	assert.Equal(t, "No changes", h[1].Summary)
	assert.Equal(t, "touched", h[1].Comment)
	assert.Equal(t, "1 field added", h[2].Summary)
}

func TestPrune(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 5; i++ {
		f.write(t, value.Object{"n": value.Int(i)}, "")
	}
	ctx := context.Background()

	n, err := f.eng.Prune(ctx, f.st, alice, "doc-1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	list, err := f.eng.List(ctx, f.st, alice, "doc-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(5), list[0].Number)
	assert.Equal(t, int64(4), list[1].Number)

	events := f.audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventDataRetention, events[0].Type)
	assert.Equal(t, "3", events[0].Metadata["deleted"])

	// numbering continues after a prune
	v := f.write(t, value.Object{"n": value.Int(6)}, "")
	assert.Equal(t, int64(6), v.Number)

	n, err = f.eng.Prune(ctx, f.st, alice, "doc-1", 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.eng.Prune(ctx, f.st, alice, "doc-1", 0)
	assert.True(t, errs.IsValidation(err))
}
