package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doctype/internal/model"
)

func TestLinks_SingleAndMultiple(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedDoctype(t, s, "Customer")
	seedDoctype(t, s, "Order")
	createTestDocument(t, s, "c1", "Customer", "ACME", nil)
	createTestDocument(t, s, "c2", "Customer", "Globex", nil)
	createTestDocument(t, s, "o1", "Order", "SO-1", nil)

	require.NoError(t, s.SetLink(ctx, "o1", "customer", "c1", testNow))
	require.NoError(t, s.SetLinks(ctx, "o1", "watchers", []string{"c2", "c1"}, testNow))

	links, err := s.Links(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, []model.Link{
		{SourceID: "o1", Field: "customer", TargetID: "c1", Position: 0, Created: testNow},
		{SourceID: "o1", Field: "watchers", TargetID: "c2", Position: 0, Created: testNow},
		{SourceID: "o1", Field: "watchers", TargetID: "c1", Position: 1, Created: testNow},
	}, links)

	// Re-pointing and clearing.
	require.NoError(t, s.SetLink(ctx, "o1", "customer", "c2", testNow))
	require.NoError(t, s.SetLinks(ctx, "o1", "watchers", nil, testNow))
	links, err = s.Links(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "c2", links[0].TargetID)

	require.NoError(t, s.SetLink(ctx, "o1", "customer", "", testNow))
	links, err = s.Links(ctx, "o1")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestIncomingLinks_IgnoresDeletedSources(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedDoctype(t, s, "Customer")
	seedDoctype(t, s, "Order")
	createTestDocument(t, s, "c1", "Customer", "ACME", nil)
	live := createTestDocument(t, s, "o1", "Order", "SO-1", nil)
	gone := createTestDocument(t, s, "o2", "Order", "SO-2", nil)

	require.NoError(t, s.SetLink(ctx, live.ID, "customer", "c1", testNow))
	require.NoError(t, s.SetLinks(ctx, gone.ID, "watchers", []string{"c1"}, testNow))

	in, err := s.IncomingLinks(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, in, 2)

	gone.IsDeleted = true
	require.NoError(t, s.UpdateDocument(ctx, gone))

	in, err = s.IncomingLinks(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "o1", in[0].SourceID)
}

func TestSetLink_TargetMustExist(t *testing.T) {
	s := createTestStore(t)
	seedDoctype(t, s, "Order")
	createTestDocument(t, s, "o1", "Order", "SO-1", nil)

	err := s.SetLink(context.Background(), "o1", "customer", "missing", testNow)
	assert.Error(t, err)
}
