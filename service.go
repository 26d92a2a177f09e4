package ragcore

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mnemosyne-ai/ragcore/chunker"
	"github.com/mnemosyne-ai/ragcore/llm"
	"github.com/mnemosyne-ai/ragcore/llm/prompt"
	"github.com/mnemosyne-ai/ragcore/vector"
)

// Service is the document indexing and retrieval core. Ingestion and
// reset serialize per collection; queries run concurrently against a
// stable collection.
type Service interface {

	// ProcessAndIndex chunks, embeds and indexes raw documents into the
	// project's collection. Per-chunk embedding failures skip the chunk
	// and continue.
	ProcessAndIndex(ctx context.Context, projectID string, docs []RawDocument, opts IndexOptions) (*IndexReport, error)

	// AnswerQuery retrieves grounding chunks for the query and generates
	// an answer. Returns ErrNoMatchingContent when retrieval surfaces
	// nothing; the generator is not invoked in that case.
	AnswerQuery(ctx context.Context, projectID, query string, limit int) (*QueryAnswer, error)

	// Search retrieves ranked chunks without generation.
	Search(ctx context.Context, projectID, query string, limit int) ([]vector.Document, error)

	// ResetCollection drops the project's collection. Idempotent.
	ResetCollection(ctx context.Context, projectID string) error

	// CollectionInfo returns the structured collection description.
	CollectionInfo(ctx context.Context, projectID string) (*vector.CollectionInfo, error)

	Close() error
}

type ServiceMiddleware func(Service) Service

// IndexOptions controls one ProcessAndIndex call. A ChunkSize of zero
// takes the configured default (a chunk size must be positive, so zero is
// never a legal explicit value); a nil OverlapSize takes the default
// while an explicit zero disables overlap. Reset recreates the
// collection before inserting.
type IndexOptions struct {
	ChunkSize   int  `json:"chunk_size,omitempty"`
	OverlapSize *int `json:"overlap_size,omitempty"`
	MaxChunks   int  `json:"max_chunks,omitempty"`
	Reset       bool `json:"reset,omitempty"`
}

var embedNormalizer = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

type service struct {
	cfg      Config
	provider llm.Provider
	index    vector.Index

	splitter  *chunker.Splitter
	retriever *vector.Retriever
	composer  *prompt.Composer

	// one writer at a time per collection
	locks sync.Map

	log *zap.Logger
}

func NewService(cfg Config, provider llm.Provider, index vector.Index) (Service, error) {
	cfg.Index.applyDefaults()

	composer, err := prompt.NewComposer(cfg.Prompts)
	if err != nil {
		return nil, err
	}

	opts := []vector.RetrieverOption{}
	if cfg.Index.OversampleFactor > 0 {
		opts = append(opts, vector.WithOversampleFactor(cfg.Index.OversampleFactor))
	}
	if cfg.Index.RetryAttempts > 0 {
		opts = append(opts, vector.WithRetry(
			cfg.Index.RetryAttempts,
			cfg.Index.RetryBackoff.Duration(),
			cfg.Index.RetryMaxBackoff.Duration(),
		))
	}

	return &service{
		cfg:       cfg,
		provider:  provider,
		index:     index,
		splitter:  chunker.NewSplitter(),
		retriever: vector.NewRetriever(index, opts...),
		composer:  composer,
		log: zap.L().With(
			zap.String("service", "ragcore"),
		),
	}, nil
}

func (svc *service) Close() error {
	return svc.index.Close()
}

func (svc *service) ProcessAndIndex(ctx context.Context, projectID string, docs []RawDocument, opts IndexOptions) (*IndexReport, error) {
	collection, err := CollectionName(projectID)
	if err != nil {
		return nil, err
	}

	log := svc.log.With(
		zap.String("action", "process_and_index"),
		zap.String("collection", collection),
	)

	copts := chunker.Options{
		ChunkSize:   opts.ChunkSize,
		OverlapSize: svc.cfg.Index.OverlapSize,
		MaxChunks:   opts.MaxChunks,
	}
	if copts.ChunkSize <= 0 {
		copts.ChunkSize = svc.cfg.Index.ChunkSize
	}
	if opts.OverlapSize != nil {
		copts.OverlapSize = *opts.OverlapSize
	}

	chunks, processed, err := svc.chunkAll(docs, copts)
	if err != nil {
		return nil, err
	}

	unlock := svc.lockCollection(collection)
	defer unlock()

	created, err := svc.index.Create(ctx, collection, svc.provider.EmbeddingSize(), svc.cfg.Vector.Distance, opts.Reset)
	if err != nil {
		return nil, err
	}
	if created {
		log.Info("collection created",
			zap.Int("embedding_size", svc.provider.EmbeddingSize()),
			zap.Bool("reset", opts.Reset),
		)
	}

	report := &IndexReport{
		ProcessedDocuments: processed,
		AttemptedChunks:    len(chunks),
	}

	records, vectors := svc.embedChunks(ctx, projectID, chunks, report)

	batchSize := svc.cfg.Vector.BatchSize
	if batchSize <= 0 {
		batchSize = svc.cfg.Index.BatchSize
	}

	stats, err := svc.index.InsertMany(ctx, collection, records, vectors, batchSize)
	report.InsertedChunks = stats.Inserted
	report.SkippedChunks += stats.Skipped
	report.FailedChunks += stats.Failed
	if err != nil {
		return report, err
	}

	log.Info("documents indexed",
		zap.Int("documents", report.ProcessedDocuments),
		zap.Int("attempted", report.AttemptedChunks),
		zap.Int("inserted", report.InsertedChunks),
		zap.Int("skipped", report.SkippedChunks),
		zap.Int("failed", report.FailedChunks),
	)

	return report, nil
}

// chunkAll splits every document. Documents with no processable text are
// skipped with a warning; only an entirely empty batch is an error.
func (svc *service) chunkAll(docs []RawDocument, opts chunker.Options) ([]Chunk, int, error) {
	var (
		chunks    []Chunk
		processed int
	)

	for _, doc := range docs {
		segments, err := svc.splitter.Split(doc.Text, opts)
		if err != nil {
			if errors.Is(err, chunker.ErrEmptyInput) {
				svc.log.Warn("skipping document with no processable text",
					zap.String("document_id", doc.ID),
				)
				continue
			}
			return nil, 0, err
		}

		for _, seg := range segments {
			chunks = append(chunks, Chunk{
				Text:             seg.Text,
				Order:            seg.Order,
				Metadata:         doc.Metadata,
				SourceDocumentID: doc.ID,
			})
		}
		processed++
	}

	if processed == 0 {
		return nil, 0, ErrEmptyInput
	}

	return chunks, processed, nil
}

// embedChunks embeds all chunks with bounded concurrency. A failed chunk
// is dropped from the batch, not fatal to it.
func (svc *service) embedChunks(ctx context.Context, projectID string, chunks []Chunk, report *IndexReport) ([]vector.Document, [][]float32) {
	type embedded struct {
		idx int
		vec []float32
		err error
	}

	sem := make(chan struct{}, svc.cfg.Index.EmbedConcurrency)
	results := make(chan embedded, len(chunks))

	for i := range chunks {
		sem <- struct{}{}
		go func(i int) {
			defer func() { <-sem }()

			vec, err := svc.provider.EmbedText(ctx, normalizeForEmbedding(chunks[i].Text), llm.InputDocument)
			results <- embedded{idx: i, vec: vec, err: err}
		}(i)
	}

	vectors := make([][]float32, len(chunks))
	for range chunks {
		r := <-results
		if r.err != nil {
			svc.log.Error("failed to embed chunk",
				zap.String("document_id", chunks[r.idx].SourceDocumentID),
				zap.Int("order", chunks[r.idx].Order),
				zap.Error(r.err),
			)
			report.FailedChunks++
			continue
		}
		vectors[r.idx] = r.vec
	}

	records := make([]vector.Document, 0, len(chunks))
	kept := make([][]float32, 0, len(chunks))
	for i, vec := range vectors {
		if vec == nil {
			continue
		}

		records = append(records, vector.Document{
			ID:       chunks[i].RecordID(projectID),
			Text:     chunks[i].Text,
			Metadata: chunks[i].Metadata,
		})
		kept = append(kept, vec)
	}

	return records, kept
}

func (svc *service) AnswerQuery(ctx context.Context, projectID, query string, limit int) (*QueryAnswer, error) {
	result, err := svc.retrieve(ctx, projectID, query, limit)
	if err != nil {
		return nil, err
	}

	fullPrompt, history, err := svc.composer.Compose(query, result.Documents)
	if err != nil {
		return nil, err
	}

	answer, err := svc.provider.GenerateText(ctx, fullPrompt, history)
	if err != nil {
		return nil, err
	}

	return &QueryAnswer{
		Answer:      answer,
		FullPrompt:  fullPrompt,
		ChatHistory: history,
		Fallback:    result.Fallback,
	}, nil
}

func (svc *service) Search(ctx context.Context, projectID, query string, limit int) ([]vector.Document, error) {
	result, err := svc.retrieve(ctx, projectID, query, limit)
	if err != nil {
		return nil, err
	}

	// An empty result is "no matching content", not a failure.
	return result.Documents, nil
}

func (svc *service) retrieve(ctx context.Context, projectID, query string, limit int) (*vector.Result, error) {
	collection, err := CollectionName(projectID)
	if err != nil {
		return nil, err
	}

	vec, err := svc.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	return svc.retriever.Retrieve(ctx, collection, vec, query, vector.Options{
		Limit:    limit,
		MinScore: svc.cfg.Index.MinScore,
		Hybrid:   true,
		Fallback: true,
	})
}

// embedQuery retries transient embedding failures on the query path;
// ingestion-time embedding stays fail-fast per chunk.
func (svc *service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	backoff := 200 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		vec, err := svc.provider.EmbedText(ctx, query, llm.InputQuery)
		if err == nil {
			return vec, nil
		}

		if !errors.Is(err, llm.ErrEmbeddingUnavailable) {
			return nil, err
		}

		lastErr = err
		if attempt == 3 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, lastErr
}

func (svc *service) ResetCollection(ctx context.Context, projectID string) error {
	collection, err := CollectionName(projectID)
	if err != nil {
		return err
	}

	unlock := svc.lockCollection(collection)
	defer unlock()

	return svc.index.Delete(ctx, collection)
}

func (svc *service) CollectionInfo(ctx context.Context, projectID string) (*vector.CollectionInfo, error) {
	collection, err := CollectionName(projectID)
	if err != nil {
		return nil, err
	}

	return svc.index.Info(ctx, collection)
}

func (svc *service) lockCollection(name string) func() {
	mu, _ := svc.locks.LoadOrStore(name, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	lock.Lock()
	return lock.Unlock
}

// normalizeForEmbedding strips symbols and lowercases chunk text before
// embedding. The stored chunk text is left untouched.
func normalizeForEmbedding(text string) string {
	return strings.TrimSpace(embedNormalizer.ReplaceAllString(strings.ToLower(text), ""))
}
