// Package qdrant backs the vector index with a Qdrant server over its
// REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mnemosyne-ai/ragcore/vector"
)

const defaultTimeout = 15 * time.Second

type Index struct {
	url    string
	apiKey string
	client *http.Client
	log    *zap.Logger
}

func NewIndex(cfg vector.Config) *Index {
	return &Index{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: defaultTimeout},
		log: zap.L().With(
			zap.String("index", "qdrant"),
		),
	}
}

func (idx *Index) Exists(ctx context.Context, name string) (bool, error) {
	var resp struct {
		Result struct {
			Exists bool `json:"exists"`
		} `json:"result"`
	}

	err := idx.do(ctx, http.MethodGet, fmt.Sprintf("/collections/%s/exists", name), nil, &resp)
	if err != nil {
		return false, err
	}

	return resp.Result.Exists, nil
}

func (idx *Index) Create(ctx context.Context, name string, embeddingSize int, method vector.DistanceMethod, reset bool) (bool, error) {
	if reset {
		if err := idx.Delete(ctx, name); err != nil {
			return false, err
		}
	} else {
		exists, err := idx.Exists(ctx, name)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     embeddingSize,
			"distance": distanceName(method),
		},
	}

	err := idx.do(ctx, http.MethodPut, "/collections/"+name, body, nil)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (idx *Index) InsertMany(ctx context.Context, name string, docs []vector.Document, vectors [][]float32, batchSize int) (vector.InsertStats, error) {
	stats := vector.InsertStats{Attempted: len(docs)}

	if len(docs) != len(vectors) {
		return stats, vector.ErrLengthMismatch
	}

	info, err := idx.Info(ctx, name)
	if err != nil {
		return stats, err
	}

	if batchSize <= 0 {
		batchSize = 50
	}

	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}

		points := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			if len(vectors[i]) != info.EmbeddingSize {
				idx.log.Warn("skipping vector with invalid size",
					zap.String("collection", name),
					zap.String("record_id", docs[i].ID),
					zap.Int("expected", info.EmbeddingSize),
					zap.Int("got", len(vectors[i])),
				)
				stats.Skipped++
				continue
			}

			points = append(points, map[string]any{
				"id":     docs[i].ID,
				"vector": vectors[i],
				"payload": map[string]any{
					"text":     docs[i].Text,
					"metadata": docs[i].Metadata,
				},
			})
		}

		if len(points) == 0 {
			continue
		}

		body := map[string]any{"points": points}
		err := idx.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", name), body, nil)
		if err != nil {
			// Earlier batches already landed; report and stop.
			stats.Failed += len(points)
			idx.log.Error("batch insert failed",
				zap.String("collection", name),
				zap.Int("batch_start", start),
				zap.Error(err),
			)
			return stats, err
		}

		stats.Inserted += len(points)
	}

	return stats, nil
}

func (idx *Index) Delete(ctx context.Context, name string) error {
	err := idx.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (idx *Index) Search(ctx context.Context, name string, vec []float32, limit int) ([]vector.Document, error) {
	return idx.search(ctx, name, vec, nil, limit)
}

// HybridSearch over-fetches the vector leg and re-scores it with the
// lexical signal; Qdrant's native sparse-vector hybrid needs a separate
// sparse model, which this deployment does not index.
func (idx *Index) HybridSearch(ctx context.Context, name string, vec []float32, queryText string, limit int) ([]vector.Document, error) {
	query := vector.Tokenize(queryText)

	docs, err := idx.search(ctx, name, vec, query, limit)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Score > docs[j].Score
	})

	return docs, nil
}

func (idx *Index) search(ctx context.Context, name string, vec []float32, query vector.TokenSet, limit int) ([]vector.Document, error) {
	if limit <= 0 {
		limit = 5
	}

	body := map[string]any{
		"vector":       vec,
		"limit":        limit,
		"with_payload": true,
	}

	var resp struct {
		Result []struct {
			ID      any             `json:"id"`
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}

	err := idx.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", name), body, &resp)
	if err != nil {
		return nil, err
	}

	docs := make([]vector.Document, 0, len(resp.Result))
	for _, r := range resp.Result {
		var payload struct {
			Text     string            `json:"text"`
			Metadata map[string]string `json:"metadata"`
		}
		if len(r.Payload) > 0 {
			if err := json.Unmarshal(r.Payload, &payload); err != nil {
				idx.log.Warn("unreadable payload", zap.Error(err))
				continue
			}
		}

		score := r.Score
		if query != nil {
			score = vector.HybridScore(score, vector.LexicalScore(query, payload.Text))
		}

		docs = append(docs, vector.Document{
			ID:       fmt.Sprintf("%v", r.ID),
			Text:     payload.Text,
			Score:    score,
			Metadata: payload.Metadata,
		})
	}

	return docs, nil
}

func (idx *Index) Info(ctx context.Context, name string) (*vector.CollectionInfo, error) {
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	err := idx.do(ctx, http.MethodGet, "/collections/"+name, nil, &resp)
	if err != nil {
		return nil, err
	}

	return &vector.CollectionInfo{
		Name:           name,
		EmbeddingSize:  resp.Result.Config.Params.Vectors.Size,
		DistanceMethod: methodName(resp.Result.Config.Params.Vectors.Distance),
		Points:         resp.Result.PointsCount,
	}, nil
}

func (idx *Index) Close() error { return nil }

func (idx *Index) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, idx.url+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if idx.apiKey != "" {
		req.Header.Set("api-key", idx.apiKey)
	}

	resp, err := idx.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", vector.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", vector.ErrCollectionNotFound, path)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: %s", vector.ErrUnavailable, method, path, resp.Status)
	case resp.StatusCode >= 300:
		return fmt.Errorf("qdrant %s %s failed: %s", method, path, resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}

	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, vector.ErrCollectionNotFound)
}

func distanceName(method vector.DistanceMethod) string {
	switch method {
	case vector.DistanceDotProduct:
		return "Dot"
	case vector.DistanceEuclidean:
		return "Euclid"
	default:
		return "Cosine"
	}
}

func methodName(distance string) vector.DistanceMethod {
	switch distance {
	case "Dot":
		return vector.DistanceDotProduct
	case "Euclid":
		return vector.DistanceEuclidean
	default:
		return vector.DistanceCosine
	}
}
