package vector

import (
	"context"
	"errors"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
	ErrLengthMismatch     = errors.New("documents and vectors length mismatch")
	ErrUnavailable        = errors.New("vector index unavailable")
)

type DistanceMethod string

const (
	DistanceCosine     DistanceMethod = "cosine"
	DistanceDotProduct DistanceMethod = "dot"
	DistanceEuclidean  DistanceMethod = "euclidean"
)

type Config struct {
	Provider   string         `yaml:"provider"`
	Persistent bool           `yaml:"persistent"`
	Path       string         `yaml:"path"`
	URL        string         `yaml:"url"`
	APIKey     string         `yaml:"api_key"`
	Distance   DistanceMethod `yaml:"distance"`
	BatchSize  int            `yaml:"batch_size"`
}

// Document is the unit stored in and returned by an Index. On retrieval,
// Score carries the backend's raw relevance signal and Certainty its
// confidence signal where the backend distinguishes the two.
type Document struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Score     float64           `json:"score,omitempty"`
	Certainty float64           `json:"certainty,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// CollectionInfo is the structured description of a collection. The
// embedding size and distance method are fixed for the collection's
// lifetime; changing either requires a reset.
type CollectionInfo struct {
	Name           string         `json:"name"`
	EmbeddingSize  int            `json:"embedding_size"`
	DistanceMethod DistanceMethod `json:"distance_method"`
	Points         int            `json:"points"`
}

// InsertStats reports per-batch insertion outcomes so callers can tell
// attempted, skipped and failed records apart.
type InsertStats struct {
	Attempted int `json:"attempted"`
	Inserted  int `json:"inserted"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Index is a named-collection vector store. Implementations must reject
// vectors whose length differs from the collection's embedding size,
// never truncate or pad them.
type Index interface {
	// Exists reports whether the named collection is present.
	Exists(ctx context.Context, name string) (bool, error)

	// Create creates the collection. With reset it deletes any existing
	// collection first; without it an existing collection is left
	// untouched. Returns whether a creation actually occurred.
	Create(ctx context.Context, name string, embeddingSize int, method DistanceMethod, reset bool) (bool, error)

	// InsertMany stores documents with their vectors in fixed-size
	// batches. Wrong-sized vectors are skipped with a warning, not fatal
	// to the batch.
	InsertMany(ctx context.Context, name string, docs []Document, vectors [][]float32, batchSize int) (InsertStats, error)

	// Delete removes the collection. No-op if absent.
	Delete(ctx context.Context, name string) error

	// Search returns up to limit documents ordered by raw similarity.
	Search(ctx context.Context, name string, vec []float32, limit int) ([]Document, error)

	// HybridSearch combines vector similarity with lexical matching
	// against queryText.
	HybridSearch(ctx context.Context, name string, vec []float32, queryText string, limit int) ([]Document, error)

	// Info returns the structured collection description.
	Info(ctx context.Context, name string) (*CollectionInfo, error)

	Close() error
}
