// Package chromem backs the vector index with an embedded chromem-go
// store, optionally persisted to disk.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/mnemosyne-ai/ragcore/vector"
)

type Index struct {
	db  *chromem.DB
	log *zap.Logger

	// chromem does not expose collection schemas, so sizes observed at
	// creation time are tracked here. Collections reopened from disk get
	// their size pinned on first insert.
	mu    sync.Mutex
	sizes map[string]int
}

func NewIndex(cfg vector.Config) (*Index, error) {
	// chromem computes cosine similarity over normalized vectors; other
	// distance methods are not supported by this backend.
	if cfg.Distance != "" && cfg.Distance != vector.DistanceCosine {
		return nil, fmt.Errorf("chromem backend supports cosine distance only, got %s", cfg.Distance)
	}

	var db *chromem.DB
	if !cfg.Persistent {
		db = chromem.NewDB()
	} else {
		d, err := chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, err
		}

		db = d
	}

	return &Index{
		db:    db,
		sizes: make(map[string]int),
		log: zap.L().With(
			zap.String("index", "chromem"),
		),
	}, nil
}

func (idx *Index) Exists(ctx context.Context, name string) (bool, error) {
	return idx.db.GetCollection(name, noEmbedding) != nil, nil
}

func (idx *Index) Create(ctx context.Context, name string, embeddingSize int, method vector.DistanceMethod, reset bool) (bool, error) {
	if method != "" && method != vector.DistanceCosine {
		return false, fmt.Errorf("chromem backend supports cosine distance only, got %s", method)
	}

	if reset {
		if err := idx.Delete(ctx, name); err != nil {
			return false, err
		}
	}

	if idx.db.GetCollection(name, noEmbedding) != nil {
		return false, nil
	}

	_, err := idx.db.GetOrCreateCollection(name, nil, noEmbedding)
	if err != nil {
		return false, err
	}

	idx.mu.Lock()
	idx.sizes[name] = embeddingSize
	idx.mu.Unlock()

	return true, nil
}

func (idx *Index) InsertMany(ctx context.Context, name string, docs []vector.Document, vectors [][]float32, batchSize int) (vector.InsertStats, error) {
	stats := vector.InsertStats{Attempted: len(docs)}

	if len(docs) != len(vectors) {
		return stats, vector.ErrLengthMismatch
	}

	c := idx.db.GetCollection(name, noEmbedding)
	if c == nil {
		return stats, vector.ErrCollectionNotFound
	}

	size := idx.embeddingSize(name, vectors)

	for i := range docs {
		if len(vectors[i]) != size {
			idx.log.Warn("skipping vector with invalid size",
				zap.String("collection", name),
				zap.String("record_id", docs[i].ID),
				zap.Int("expected", size),
				zap.Int("got", len(vectors[i])),
			)
			stats.Skipped++
			continue
		}

		doc := chromem.Document{
			ID:        docs[i].ID,
			Metadata:  docs[i].Metadata,
			Embedding: vectors[i],
			Content:   docs[i].Text,
		}

		if err := c.AddDocument(ctx, doc); err != nil {
			idx.log.Error("failed to insert record",
				zap.String("collection", name),
				zap.String("record_id", docs[i].ID),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}

		stats.Inserted++
	}

	return stats, nil
}

func (idx *Index) Delete(ctx context.Context, name string) error {
	if idx.db.GetCollection(name, noEmbedding) == nil {
		return nil
	}

	if err := idx.db.DeleteCollection(name); err != nil {
		return err
	}

	idx.mu.Lock()
	delete(idx.sizes, name)
	idx.mu.Unlock()

	return nil
}

func (idx *Index) Search(ctx context.Context, name string, vec []float32, limit int) ([]vector.Document, error) {
	return idx.search(ctx, name, vec, nil, limit)
}

func (idx *Index) HybridSearch(ctx context.Context, name string, vec []float32, queryText string, limit int) ([]vector.Document, error) {
	query := vector.Tokenize(queryText)
	return idx.search(ctx, name, vec, query, limit)
}

func (idx *Index) search(ctx context.Context, name string, vec []float32, query vector.TokenSet, limit int) ([]vector.Document, error) {
	c := idx.db.GetCollection(name, noEmbedding)
	if c == nil {
		return nil, vector.ErrCollectionNotFound
	}

	count := c.Count()
	if count == 0 {
		return []vector.Document{}, nil
	}

	if limit <= 0 {
		limit = 5
	}
	if limit > count {
		limit = count
	}

	results, err := c.QueryEmbedding(ctx, vec, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrUnavailable, err)
	}

	docs := make([]vector.Document, len(results))
	for i, result := range results {
		score := float64(result.Similarity)
		if query != nil {
			score = vector.HybridScore(score, vector.LexicalScore(query, result.Content))
		}

		docs[i] = vector.Document{
			ID:       result.ID,
			Text:     result.Content,
			Score:    score,
			Metadata: result.Metadata,
		}
	}

	if query != nil {
		sort.SliceStable(docs, func(i, j int) bool {
			return docs[i].Score > docs[j].Score
		})
	}

	return docs, nil
}

func (idx *Index) Info(ctx context.Context, name string) (*vector.CollectionInfo, error) {
	c := idx.db.GetCollection(name, noEmbedding)
	if c == nil {
		return nil, vector.ErrCollectionNotFound
	}

	idx.mu.Lock()
	size := idx.sizes[name]
	idx.mu.Unlock()

	return &vector.CollectionInfo{
		Name:           name,
		EmbeddingSize:  size,
		DistanceMethod: vector.DistanceCosine,
		Points:         c.Count(),
	}, nil
}

func (idx *Index) Close() error { return nil }

// embeddingSize returns the pinned size for the collection, pinning it
// from the incoming batch when the collection was reopened from disk.
func (idx *Index) embeddingSize(name string, vectors [][]float32) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if size, ok := idx.sizes[name]; ok && size > 0 {
		return size
	}

	for _, v := range vectors {
		if len(v) > 0 {
			idx.sizes[name] = len(v)
			return len(v)
		}
	}

	return 0
}

// noEmbedding rejects server-side embedding; vectors always arrive
// precomputed from the embedding gateway.
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("server-side embedding is not supported")
}
