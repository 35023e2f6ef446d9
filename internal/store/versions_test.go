package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doctype/internal/errs"
)

func insertVersions(t *testing.T, s *Store, docID string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		rec := VersionRecord{
			DocumentID:    docID,
			Number:        int64(i),
			Snapshot:      `{"n":` + string(rune('0'+i)) + `}`,
			Changes:       `{"added":{},"modified":{},"removed":{}}`,
			ChangedBy:     "alice",
			ChangedAt:     testNow.Add(time.Duration(i) * time.Minute),
			IntegrityHash: "hash",
		}
		if err := s.InsertVersion(context.Background(), rec); err != nil {
			t.Fatalf("InsertVersion(%d) failed: %v", i, err)
		}
	}
}

func TestVersions_InsertAndRead(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedDoctype(t, s, "Customer")
	createTestDocument(t, s, "c1", "Customer", "ACME", nil)

	n, err := s.LatestVersionNumber(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	insertVersions(t, s, "c1", 3)

	n, err = s.LatestVersionNumber(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	rec, err := s.GetVersion(ctx, "c1", 2)
	require.NoError(t, err)
	assert.Equal(t, `{"n":2}`, rec.Snapshot)
	assert.Equal(t, testNow.Add(2*time.Minute), rec.ChangedAt)

	list, err := s.ListVersions(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, int64(3), list[0].Number)
	assert.Equal(t, int64(1), list[2].Number)

	_, err = s.GetVersion(ctx, "c1", 9)
	assert.True(t, errs.IsNotFound(err))
}

func TestInsertVersion_Immutable(t *testing.T) {
	s := createTestStore(t)
	seedDoctype(t, s, "Customer")
	createTestDocument(t, s, "c1", "Customer", "ACME", nil)
	insertVersions(t, s, "c1", 1)

	err := s.InsertVersion(context.Background(), VersionRecord{
		DocumentID: "c1", Number: 1, Snapshot: "{}", Changes: "{}", ChangedAt: testNow,
	})
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
}

func TestDeleteVersionsBelow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedDoctype(t, s, "Customer")
	createTestDocument(t, s, "c1", "Customer", "ACME", nil)
	insertVersions(t, s, "c1", 5)

	n, err := s.DeleteVersionsBelow(ctx, "c1", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	list, err := s.ListVersions(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(4), list[1].Number)
}
