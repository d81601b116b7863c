package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_UpsertOverwritesExistingID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Upsert(ctx, []string{"a"}, [][]float32{{1, 0}}, []map[string]string{{"k": "v1"}}))
	require.NoError(t, m.Upsert(ctx, []string{"a"}, [][]float32{{0, 1}}, []map[string]string{{"k": "v2"}}))

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := m.Get(ctx, []string{"a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v2", got[0].Metadata["k"])
}

func TestMemory_GetWhereMatchesAllFilterKeys(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Upsert(ctx, []string{"a", "b"},
		[][]float32{{1, 0}, {1, 0}},
		[]map[string]string{
			{"project": "x", "topic": "go"},
			{"project": "x", "topic": "rust"},
		}))

	got, err := m.GetWhere(ctx, map[string]string{"project": "x", "topic": "go"}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestMemory_SimilaritySearchRanksByCosine(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Upsert(ctx, []string{"close", "far"},
		[][]float32{{1, 0}, {0, 1}},
		[]map[string]string{{}, {}}))

	results, err := m.SimilaritySearch(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "close", results[0].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestMemory_UpdateLeavesVectorUnchanged(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Upsert(ctx, []string{"a"}, [][]float32{{1, 0}}, []map[string]string{{"k": "v1"}}))
	require.NoError(t, m.Update(ctx, []string{"a"}, []map[string]string{{"k": "v2"}}))

	results, err := m.SimilaritySearch(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "v2", results[0].Metadata["k"])
}

func TestMemory_UpdateUnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Update(ctx, []string{"missing"}, []map[string]string{{"k": "v"}}))
	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
