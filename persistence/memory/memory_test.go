package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne-ai/ragcore/vector"
)

func TestCreateIdempotent(t *testing.T) {
	assert := assert.New(t)

	ctx := context.Background()
	idx := NewIndex()

	created, err := idx.Create(ctx, "docs", 3, vector.DistanceCosine, false)
	require.NoError(t, err)
	assert.True(created)

	created, err = idx.Create(ctx, "docs", 3, vector.DistanceCosine, false)
	require.NoError(t, err)
	assert.False(created)

	ok, err := idx.Exists(ctx, "docs")
	require.NoError(t, err)
	assert.True(ok)
}

func TestCreateResetDropsPoints(t *testing.T) {
	assert := assert.New(t)

	ctx := context.Background()
	idx := NewIndex()

	_, err := idx.Create(ctx, "docs", 2, vector.DistanceCosine, false)
	require.NoError(t, err)

	_, err = idx.InsertMany(ctx, "docs",
		[]vector.Document{{ID: "a", Text: "alpha"}},
		[][]float32{{1, 0}}, 10)
	require.NoError(t, err)

	created, err := idx.Create(ctx, "docs", 2, vector.DistanceCosine, true)
	require.NoError(t, err)
	assert.True(created)

	info, err := idx.Info(ctx, "docs")
	require.NoError(t, err)
	assert.Zero(info.Points)
}

func TestCreateRejectsInvalidSize(t *testing.T) {
	_, err := NewIndex().Create(context.Background(), "docs", 0, vector.DistanceCosine, false)
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestDeleteIdempotent(t *testing.T) {
	assert := assert.New(t)

	ctx := context.Background()
	idx := NewIndex()

	_, err := idx.Create(ctx, "docs", 2, vector.DistanceCosine, false)
	require.NoError(t, err)

	assert.NoError(idx.Delete(ctx, "docs"))
	assert.NoError(idx.Delete(ctx, "docs"))

	ok, err := idx.Exists(ctx, "docs")
	require.NoError(t, err)
	assert.False(ok)
}

func TestInsertManySkipsWrongSizedVectors(t *testing.T) {
	assert := assert.New(t)

	ctx := context.Background()
	idx := NewIndex()

	_, err := idx.Create(ctx, "docs", 2, vector.DistanceCosine, false)
	require.NoError(t, err)

	stats, err := idx.InsertMany(ctx, "docs",
		[]vector.Document{
			{ID: "a", Text: "alpha"},
			{ID: "b", Text: "beta"},
			{ID: "c", Text: "gamma"},
		},
		[][]float32{
			{1, 0},
			{1, 0, 0},
			{0, 1},
		}, 10)
	require.NoError(t, err)

	assert.Equal(3, stats.Attempted)
	assert.Equal(2, stats.Inserted)
	assert.Equal(1, stats.Skipped)

	info, err := idx.Info(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(2, info.Points)
}

func TestInsertManyLengthMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()

	_, err := idx.Create(ctx, "docs", 2, vector.DistanceCosine, false)
	require.NoError(t, err)

	_, err = idx.InsertMany(ctx, "docs",
		[]vector.Document{{ID: "a"}, {ID: "b"}},
		[][]float32{{1, 0}}, 10)
	assert.ErrorIs(t, err, vector.ErrLengthMismatch)
}

func TestInsertManyUnknownCollection(t *testing.T) {
	_, err := NewIndex().InsertMany(context.Background(), "missing",
		[]vector.Document{{ID: "a"}}, [][]float32{{1}}, 10)
	assert.ErrorIs(t, err, vector.ErrCollectionNotFound)
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	assert := assert.New(t)

	ctx := context.Background()
	idx := NewIndex()

	_, err := idx.Create(ctx, "docs", 2, vector.DistanceCosine, false)
	require.NoError(t, err)

	_, err = idx.InsertMany(ctx, "docs",
		[]vector.Document{
			{ID: "x", Text: "points east"},
			{ID: "y", Text: "points north"},
		},
		[][]float32{
			{1, 0},
			{0, 1},
		}, 10)
	require.NoError(t, err)

	docs, err := idx.Search(ctx, "docs", []float32{0, 1}, 1)
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal("y", docs[0].ID)
	assert.InDelta(1.0, docs[0].Score, 1e-9)
}

func TestSearchDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()

	_, err := idx.Create(ctx, "docs", 2, vector.DistanceCosine, false)
	require.NoError(t, err)

	_, err = idx.Search(ctx, "docs", []float32{1, 0, 0}, 5)
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestSearchUnknownCollection(t *testing.T) {
	_, err := NewIndex().Search(context.Background(), "missing", []float32{1}, 5)
	assert.ErrorIs(t, err, vector.ErrCollectionNotFound)
}

func TestHybridSearchBoostsLexicalMatches(t *testing.T) {
	assert := assert.New(t)

	ctx := context.Background()
	idx := NewIndex()

	_, err := idx.Create(ctx, "docs", 2, vector.DistanceCosine, false)
	require.NoError(t, err)

	// Identical vectors, so the ranking is decided by word overlap alone.
	_, err = idx.InsertMany(ctx, "docs",
		[]vector.Document{
			{ID: "match", Text: "rotating backup schedule"},
			{ID: "other", Text: "unrelated release notes"},
		},
		[][]float32{
			{1, 0},
			{1, 0},
		}, 10)
	require.NoError(t, err)

	docs, err := idx.HybridSearch(ctx, "docs", []float32{1, 0}, "backup schedule", 2)
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal("match", docs[0].ID)
	assert.Greater(docs[0].Score, docs[1].Score)
}

func TestDistanceMethods(t *testing.T) {
	assert := assert.New(t)

	assert.InDelta(2.0, dot([]float32{1, 1}, []float32{1, 1}), 1e-9)
	assert.InDelta(0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(1.0, cosine([]float32{2, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(0.5, similarity(vector.DistanceEuclidean, []float32{0, 0}, []float32{1, 0}), 1e-9)
}
