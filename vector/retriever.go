package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultOversampleFactor = 5
	minOversampleFactor     = 3
	defaultMaxAttempts      = 3
	defaultInitialBackoff   = 200 * time.Millisecond
	defaultMaxBackoff       = 5 * time.Second

	// adaptiveScoreRatio scales the best observed score into the
	// effective threshold when the caller supplies no minimum.
	adaptiveScoreRatio = 0.85

	// defaultMinScore applies when no minimum is supplied and no
	// candidate carries a score at all.
	defaultMinScore = 0.8
)

// Options controls a single Retrieve call. A nil MinScore selects the
// adaptive threshold; an explicit zero disables filtering entirely, which
// is the only way candidates without any relevance signal survive.
type Options struct {
	Limit    int
	MinScore *float64
	Hybrid   bool
	Fallback bool
}

// Result distinguishes a ranked result set from a degraded one: Fallback
// is true only when the threshold filtered everything out and the raw
// over-fetched candidates were returned instead.
type Result struct {
	Documents []Document `json:"documents"`
	Fallback  bool       `json:"fallback"`
}

// Retriever runs hybrid retrieval over any Index: over-fetch, retry on
// transient failures, score, deduplicate, rank and fall back.
type Retriever struct {
	index Index
	log   *zap.Logger

	oversampleFactor int
	maxAttempts      int
	initialBackoff   time.Duration
	maxBackoff       time.Duration
}

type RetrieverOption func(*Retriever)

func WithOversampleFactor(factor int) RetrieverOption {
	return func(r *Retriever) {
		if factor >= minOversampleFactor {
			r.oversampleFactor = factor
		}
	}
}

func WithRetry(attempts int, initial, max time.Duration) RetrieverOption {
	return func(r *Retriever) {
		if attempts > 0 {
			r.maxAttempts = attempts
		}
		if initial > 0 {
			r.initialBackoff = initial
		}
		if max > 0 {
			r.maxBackoff = max
		}
	}
}

func NewRetriever(index Index, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		index: index,
		log: zap.L().With(
			zap.String("component", "retriever"),
		),
		oversampleFactor: defaultOversampleFactor,
		maxAttempts:      defaultMaxAttempts,
		initialBackoff:   defaultInitialBackoff,
		maxBackoff:       defaultMaxBackoff,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Retrieve executes the retrieval pipeline against the named collection.
// An empty collection yields an empty result, not an error, regardless
// of the fallback setting.
func (r *Retriever) Retrieve(ctx context.Context, name string, vec []float32, queryText string, opts Options) (*Result, error) {
	log := r.log.With(
		zap.String("collection", name),
	)

	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	candidates, err := r.query(ctx, name, vec, queryText, limit*r.oversampleFactor, opts.Hybrid)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return &Result{Documents: []Document{}}, nil
	}

	threshold := adaptiveThreshold(candidates)
	if opts.MinScore != nil {
		threshold = *opts.MinScore
	}

	ranked := rank(dedupe(candidates, threshold))
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	if len(ranked) == 0 && opts.Fallback {
		log.Warn("no candidates above threshold, returning fallback matches",
			zap.Float64("threshold", threshold),
		)

		fallback := candidates
		if len(fallback) > limit {
			fallback = fallback[:limit]
		}

		docs := make([]Document, len(fallback))
		for i, c := range fallback {
			c.Score = relevance(c)
			docs[i] = c
		}

		return &Result{Documents: docs, Fallback: true}, nil
	}

	return &Result{Documents: ranked}, nil
}

// query over-fetches candidates, retrying transient failures with
// doubling capped backoff. Validation and not-found errors are not
// retried.
func (r *Retriever) query(ctx context.Context, name string, vec []float32, queryText string, limit int, hybrid bool) ([]Document, error) {
	backoff := r.initialBackoff

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		var (
			docs []Document
			err  error
		)

		if hybrid && queryText != "" {
			docs, err = r.index.HybridSearch(ctx, name, vec, queryText, limit)
		} else {
			docs, err = r.index.Search(ctx, name, vec, limit)
		}

		if err == nil {
			return docs, nil
		}

		if !IsTransient(err) {
			return nil, err
		}

		lastErr = err
		if attempt == r.maxAttempts {
			break
		}

		r.log.Warn("retrying search after transient failure",
			zap.String("collection", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}

	return nil, lastErr
}

// IsTransient reports whether err is a retriable backend failure, as
// opposed to a validation or not-found error.
func IsTransient(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// relevance reads whichever signal the backend provided; candidates
// without any signal score zero and survive only a zero threshold.
func relevance(doc Document) float64 {
	if doc.Certainty > 0 {
		return doc.Certainty
	}
	return doc.Score
}

func adaptiveThreshold(candidates []Document) float64 {
	best := 0.0
	for _, c := range candidates {
		if s := relevance(c); s > best {
			best = s
		}
	}
	if best == 0 {
		return defaultMinScore
	}
	return best * adaptiveScoreRatio
}

// Fingerprint hashes the normalized text of a candidate: lowercased with
// digits stripped, so casing and numbering variants collapse to one entry.
func Fingerprint(text string) string {
	normalized := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(text)))

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

func dedupe(candidates []Document, threshold float64) []Document {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]Document, 0, len(candidates))

	for _, c := range candidates {
		score := relevance(c)
		if score < threshold {
			continue
		}

		hash := Fingerprint(c.Text)
		if _, ok := seen[hash]; ok {
			continue
		}
		seen[hash] = struct{}{}

		c.Score = score
		unique = append(unique, c)
	}

	return unique
}

// rank sorts by descending score, then descending popularity, then
// ascending date. Popularity and date are optional metadata tie-breaks;
// absent values rank as popularity 0 and the epoch date.
func rank(docs []Document) []Document {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}

		pi, pj := popularity(docs[i]), popularity(docs[j])
		if pi != pj {
			return pi > pj
		}

		return date(docs[i]) < date(docs[j])
	})

	return docs
}

func popularity(doc Document) int {
	v, ok := doc.Metadata["popularity"]
	if !ok {
		return 0
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}

	return n
}

func date(doc Document) string {
	v, ok := doc.Metadata["date"]
	if !ok || v == "" {
		return "1970-01-01"
	}
	return v
}
