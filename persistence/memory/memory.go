// Package memory provides an in-process vector index using brute-force
// similarity. It backs local deployments and tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/mnemosyne-ai/ragcore/vector"
)

type collection struct {
	embeddingSize int
	method        vector.DistanceMethod
	docs          []vector.Document
	vectors       [][]float32
}

type Index struct {
	mu          sync.RWMutex
	collections map[string]*collection
	log         *zap.Logger
}

func NewIndex() *Index {
	return &Index{
		collections: make(map[string]*collection),
		log: zap.L().With(
			zap.String("index", "memory"),
		),
	}
}

func (idx *Index) Exists(ctx context.Context, name string) (bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	_, ok := idx.collections[name]
	return ok, nil
}

func (idx *Index) Create(ctx context.Context, name string, embeddingSize int, method vector.DistanceMethod, reset bool) (bool, error) {
	if embeddingSize <= 0 {
		return false, fmt.Errorf("%w: embedding size %d", vector.ErrDimensionMismatch, embeddingSize)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if reset {
		delete(idx.collections, name)
	}

	if _, ok := idx.collections[name]; ok {
		return false, nil
	}

	if method == "" {
		method = vector.DistanceCosine
	}

	idx.collections[name] = &collection{
		embeddingSize: embeddingSize,
		method:        method,
	}

	return true, nil
}

// InsertMany stores the whole batch under one lock; batchSize shapes
// network round trips on remote backends and has no effect in-process.
func (idx *Index) InsertMany(ctx context.Context, name string, docs []vector.Document, vectors [][]float32, batchSize int) (vector.InsertStats, error) {
	stats := vector.InsertStats{Attempted: len(docs)}

	if len(docs) != len(vectors) {
		return stats, vector.ErrLengthMismatch
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	c, ok := idx.collections[name]
	if !ok {
		return stats, vector.ErrCollectionNotFound
	}

	for i := range docs {
		if len(vectors[i]) != c.embeddingSize {
			idx.log.Warn("skipping vector with invalid size",
				zap.String("collection", name),
				zap.String("record_id", docs[i].ID),
				zap.Int("expected", c.embeddingSize),
				zap.Int("got", len(vectors[i])),
			)
			stats.Skipped++
			continue
		}

		c.docs = append(c.docs, docs[i])
		c.vectors = append(c.vectors, vectors[i])
		stats.Inserted++
	}

	return stats, nil
}

func (idx *Index) Delete(ctx context.Context, name string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.collections, name)
	return nil
}

func (idx *Index) Search(ctx context.Context, name string, vec []float32, limit int) ([]vector.Document, error) {
	return idx.search(name, vec, nil, limit)
}

func (idx *Index) HybridSearch(ctx context.Context, name string, vec []float32, queryText string, limit int) ([]vector.Document, error) {
	query := vector.Tokenize(queryText)
	return idx.search(name, vec, query, limit)
}

func (idx *Index) search(name string, vec []float32, query vector.TokenSet, limit int) ([]vector.Document, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	c, ok := idx.collections[name]
	if !ok {
		return nil, vector.ErrCollectionNotFound
	}

	if len(vec) != c.embeddingSize {
		return nil, fmt.Errorf("%w: expected %d, got %d",
			vector.ErrDimensionMismatch, c.embeddingSize, len(vec))
	}

	if limit <= 0 {
		limit = 5
	}

	scored := make([]vector.Document, len(c.docs))
	for i := range c.docs {
		score := similarity(c.method, c.vectors[i], vec)
		if query != nil {
			score = vector.HybridScore(score, vector.LexicalScore(query, c.docs[i].Text))
		}

		doc := c.docs[i]
		doc.Score = score
		scored[i] = doc
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if limit > len(scored) {
		limit = len(scored)
	}

	return scored[:limit], nil
}

func (idx *Index) Info(ctx context.Context, name string) (*vector.CollectionInfo, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	c, ok := idx.collections[name]
	if !ok {
		return nil, vector.ErrCollectionNotFound
	}

	return &vector.CollectionInfo{
		Name:           name,
		EmbeddingSize:  c.embeddingSize,
		DistanceMethod: c.method,
		Points:         len(c.docs),
	}, nil
}

func (idx *Index) Close() error { return nil }

// similarity maps every distance method onto a higher-is-better score.
// Euclidean distance converts as 1/(1+d).
func similarity(method vector.DistanceMethod, a, b []float32) float64 {
	switch method {
	case vector.DistanceDotProduct:
		return dot(a, b)
	case vector.DistanceEuclidean:
		return 1 / (1 + euclidean(a, b))
	default:
		return cosine(a, b)
	}
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosine(a, b []float32) float64 {
	var product, normA, normB float64
	for i := range a {
		product += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return product / (math.Sqrt(normA) * math.Sqrt(normB))
}

func euclidean(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
