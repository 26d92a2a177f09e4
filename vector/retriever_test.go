package vector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex scripts search responses and records how it was queried.
type fakeIndex struct {
	docs       []Document
	failures   []error
	calls      int
	lastLimit  int
	lastHybrid bool
}

func (f *fakeIndex) Exists(ctx context.Context, name string) (bool, error) { return true, nil }

func (f *fakeIndex) Create(ctx context.Context, name string, embeddingSize int, method DistanceMethod, reset bool) (bool, error) {
	return true, nil
}

func (f *fakeIndex) InsertMany(ctx context.Context, name string, docs []Document, vectors [][]float32, batchSize int) (InsertStats, error) {
	return InsertStats{}, nil
}

func (f *fakeIndex) Delete(ctx context.Context, name string) error { return nil }

func (f *fakeIndex) Search(ctx context.Context, name string, vec []float32, limit int) ([]Document, error) {
	f.lastHybrid = false
	return f.respond(limit)
}

func (f *fakeIndex) HybridSearch(ctx context.Context, name string, vec []float32, queryText string, limit int) ([]Document, error) {
	f.lastHybrid = true
	return f.respond(limit)
}

func (f *fakeIndex) Info(ctx context.Context, name string) (*CollectionInfo, error) {
	return &CollectionInfo{Name: name}, nil
}

func (f *fakeIndex) Close() error { return nil }

func (f *fakeIndex) respond(limit int) ([]Document, error) {
	f.calls++
	f.lastLimit = limit

	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}

	docs := f.docs
	if limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

func fastRetry() RetrieverOption {
	return WithRetry(3, time.Millisecond, 4*time.Millisecond)
}

func TestRetrieveDeduplicatesNormalizedText(t *testing.T) {
	assert := assert.New(t)

	index := &fakeIndex{
		docs: []Document{
			{Text: "Hello World 123", Score: 0.9},
			{Text: "Other content", Score: 0.85},
			{Text: "hello world 456", Score: 0.8},
		},
	}

	result, err := NewRetriever(index).Retrieve(context.Background(), "c", []float32{1}, "", Options{Limit: 5})
	require.NoError(t, err)

	require.Len(t, result.Documents, 2)
	assert.Equal("Hello World 123", result.Documents[0].Text)
	assert.Equal("Other content", result.Documents[1].Text)
	assert.False(result.Fallback)
}

func TestRetrieveAdaptiveThreshold(t *testing.T) {
	// Without an explicit minimum the cutoff self-calibrates to 85% of
	// the best observed score.
	index := &fakeIndex{
		docs: []Document{
			{Text: "best", Score: 1.0},
			{Text: "good", Score: 0.9},
			{Text: "weak", Score: 0.5},
		},
	}

	result, err := NewRetriever(index).Retrieve(context.Background(), "c", []float32{1}, "", Options{Limit: 5})
	require.NoError(t, err)

	require.Len(t, result.Documents, 2)
	assert.Equal(t, "best", result.Documents[0].Text)
	assert.Equal(t, "good", result.Documents[1].Text)
}

func TestRetrieveExplicitZeroMinScoreKeepsUnscored(t *testing.T) {
	index := &fakeIndex{
		docs: []Document{
			{Text: "no signal at all"},
			{Text: "still no signal"},
		},
	}

	zero := 0.0
	result, err := NewRetriever(index).Retrieve(context.Background(), "c", []float32{1}, "", Options{Limit: 5, MinScore: &zero})
	require.NoError(t, err)

	assert.Len(t, result.Documents, 2)
	assert.False(t, result.Fallback)
}

func TestRetrieveCertaintyPreferredOverScore(t *testing.T) {
	index := &fakeIndex{
		docs: []Document{
			{Text: "confident", Certainty: 0.95, Score: 0.1},
			{Text: "scored", Score: 0.9},
		},
	}

	result, err := NewRetriever(index).Retrieve(context.Background(), "c", []float32{1}, "", Options{Limit: 5})
	require.NoError(t, err)

	require.Len(t, result.Documents, 2)
	assert.Equal(t, "confident", result.Documents[0].Text)
	assert.InDelta(t, 0.95, result.Documents[0].Score, 1e-9)
}

func TestRetrieveTieBreaks(t *testing.T) {
	index := &fakeIndex{
		docs: []Document{
			{Text: "older and popular", Score: 0.9, Metadata: map[string]string{"popularity": "10", "date": "2020-01-01"}},
			{Text: "unloved", Score: 0.9, Metadata: map[string]string{"popularity": "1", "date": "2019-01-01"}},
			{Text: "newer and popular", Score: 0.9, Metadata: map[string]string{"popularity": "10", "date": "2021-01-01"}},
		},
	}

	result, err := NewRetriever(index).Retrieve(context.Background(), "c", []float32{1}, "", Options{Limit: 5})
	require.NoError(t, err)

	require.Len(t, result.Documents, 3)
	assert.Equal(t, "older and popular", result.Documents[0].Text)
	assert.Equal(t, "newer and popular", result.Documents[1].Text)
	assert.Equal(t, "unloved", result.Documents[2].Text)
}

func TestRetrieveFallback(t *testing.T) {
	docs := []Document{
		{Text: "first", Score: 0.5},
		{Text: "second", Score: 0.4},
	}

	high := 0.99

	// With fallback enabled an unreachable threshold still yields the
	// raw candidates, flagged as degraded.
	index := &fakeIndex{docs: docs}
	result, err := NewRetriever(index).Retrieve(context.Background(), "c", []float32{1}, "", Options{Limit: 1, MinScore: &high, Fallback: true})
	require.NoError(t, err)

	assert.Len(t, result.Documents, 1)
	assert.True(t, result.Fallback)
	assert.Equal(t, "first", result.Documents[0].Text)

	// With fallback disabled the result is empty and not flagged.
	index = &fakeIndex{docs: docs}
	result, err = NewRetriever(index).Retrieve(context.Background(), "c", []float32{1}, "", Options{Limit: 1, MinScore: &high, Fallback: false})
	require.NoError(t, err)

	assert.Empty(t, result.Documents)
	assert.False(t, result.Fallback)
}

func TestRetrieveEmptyIndex(t *testing.T) {
	index := &fakeIndex{}

	result, err := NewRetriever(index).Retrieve(context.Background(), "c", []float32{1}, "", Options{Limit: 5, Fallback: true})
	require.NoError(t, err)

	assert.Empty(t, result.Documents)
	assert.False(t, result.Fallback)
}

func TestRetrieveOversamples(t *testing.T) {
	index := &fakeIndex{
		docs: []Document{{Text: "only", Score: 0.9}},
	}

	_, err := NewRetriever(index).Retrieve(context.Background(), "c", []float32{1}, "", Options{Limit: 4})
	require.NoError(t, err)

	assert.Equal(t, 4*defaultOversampleFactor, index.lastLimit)
}

func TestRetrieveHybridSelection(t *testing.T) {
	index := &fakeIndex{
		docs: []Document{{Text: "doc", Score: 0.9}},
	}

	retriever := NewRetriever(index)

	_, err := retriever.Retrieve(context.Background(), "c", []float32{1}, "query text", Options{Limit: 1, Hybrid: true})
	require.NoError(t, err)
	assert.True(t, index.lastHybrid)

	// No query text forces the pure vector leg even in hybrid mode.
	_, err = retriever.Retrieve(context.Background(), "c", []float32{1}, "", Options{Limit: 1, Hybrid: true})
	require.NoError(t, err)
	assert.False(t, index.lastHybrid)
}

func TestRetrieveRetriesTransientFailures(t *testing.T) {
	index := &fakeIndex{
		docs: []Document{{Text: "doc", Score: 0.9}},
		failures: []error{
			fmt.Errorf("%w: connection refused", ErrUnavailable),
			fmt.Errorf("%w: connection refused", ErrUnavailable),
		},
	}

	result, err := NewRetriever(index, fastRetry()).Retrieve(context.Background(), "c", []float32{1}, "", Options{Limit: 1})
	require.NoError(t, err)

	assert.Len(t, result.Documents, 1)
	assert.Equal(t, 3, index.calls)
}

func TestRetrieveExhaustsRetries(t *testing.T) {
	index := &fakeIndex{
		failures: []error{
			fmt.Errorf("%w: down", ErrUnavailable),
			fmt.Errorf("%w: down", ErrUnavailable),
			fmt.Errorf("%w: down", ErrUnavailable),
		},
	}

	_, err := NewRetriever(index, fastRetry()).Retrieve(context.Background(), "c", []float32{1}, "", Options{Limit: 1})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, index.calls)
}

func TestRetrieveDoesNotRetryValidationErrors(t *testing.T) {
	index := &fakeIndex{
		failures: []error{ErrCollectionNotFound},
	}

	_, err := NewRetriever(index, fastRetry()).Retrieve(context.Background(), "c", []float32{1}, "", Options{Limit: 1})
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.Equal(t, 1, index.calls)
}

func TestFingerprint(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(Fingerprint("Hello World 123"), Fingerprint("hello world 456"))
	assert.NotEqual(Fingerprint("hello world"), Fingerprint("goodbye world"))
}
