package ragcore

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mnemosyne-ai/ragcore/chunker"
	"github.com/mnemosyne-ai/ragcore/llm"
	"github.com/mnemosyne-ai/ragcore/llm/prompt"
	"github.com/mnemosyne-ai/ragcore/vector"
)

var (
	ErrInvalidProjectID = errors.New("invalid project ID")

	// Re-exported sentinels so transport callers can discriminate
	// without importing the leaf packages.
	ErrEmptyInput        = chunker.ErrEmptyInput
	ErrNoMatchingContent = llm.ErrNoMatchingContent
)

// chunkNamespace seeds deterministic chunk record IDs so reprocessing a
// document maps onto the same IDs it produced before.
var chunkNamespace = uuid.MustParse("8e9cbf0d-2f43-4a31-9f3b-6a1d24c7e58a")

type Config struct {
	LLM     llm.Config       `yaml:"llm"`
	Vector  vector.Config    `yaml:"vector"`
	Index   IndexDefaults    `yaml:"index"`
	Prompts prompt.Templates `yaml:"prompts"`
}

// defaultQueryMinScore is the fixed retrieval threshold applied when the
// configuration leaves min_score unset. Candidates below it only surface
// as flagged fallback results.
const defaultQueryMinScore = 0.75

// IndexDefaults are the ingestion and retrieval knobs applied when a
// request leaves them unset.
type IndexDefaults struct {
	ChunkSize        int `yaml:"chunk_size"`
	OverlapSize      int `yaml:"overlap_size"`
	BatchSize        int `yaml:"batch_size"`
	EmbedConcurrency int `yaml:"embed_concurrency"`

	// MinScore is the retrieval score threshold, 0.75 unless set. An
	// explicit zero disables filtering; a negative value selects the
	// adaptive threshold derived from the best candidate score.
	MinScore *float64 `yaml:"min_score,omitempty"`

	OversampleFactor int      `yaml:"oversample_factor"`
	RetryAttempts    int      `yaml:"retry_attempts"`
	RetryBackoff     Duration `yaml:"retry_backoff"`
	RetryMaxBackoff  Duration `yaml:"retry_max_backoff"`
}

func (d *IndexDefaults) applyDefaults() {
	if d.ChunkSize <= 0 {
		d.ChunkSize = 500
	}
	if d.OverlapSize < 0 || d.OverlapSize >= d.ChunkSize {
		d.OverlapSize = d.ChunkSize / 10
	}
	if d.BatchSize <= 0 {
		d.BatchSize = 50
	}
	if d.EmbedConcurrency <= 0 {
		d.EmbedConcurrency = 8
	}
	if d.MinScore == nil {
		minScore := defaultQueryMinScore
		d.MinScore = &minScore
	} else if *d.MinScore < 0 {
		d.MinScore = nil
	}
}

// RawDocument is ingestion input. It is owned by the caller and not
// retained after indexing.
type RawDocument struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunk is a bounded segment of document text. Order is 1-based and
// strictly increasing within a document.
type Chunk struct {
	Text             string            `json:"text"`
	Order            int               `json:"order"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	SourceDocumentID string            `json:"source_document_id"`
}

// RecordID derives the stable vector record ID for this chunk within a
// project. Reprocessing deletes and reinserts under the same IDs.
func (c Chunk) RecordID(projectID string) string {
	name := projectID + "/" + c.SourceDocumentID + "/" + strconv.Itoa(c.Order)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// IndexReport summarizes one ProcessAndIndex call.
type IndexReport struct {
	ProcessedDocuments int `json:"processed_documents"`
	AttemptedChunks    int `json:"attempted_chunks"`
	InsertedChunks     int `json:"inserted_chunks"`
	SkippedChunks      int `json:"skipped_chunks"`
	FailedChunks       int `json:"failed_chunks"`
}

// QueryAnswer carries a generated answer with the prompt and chat
// history that produced it. Fallback marks answers grounded in degraded
// (below-threshold) retrieval.
type QueryAnswer struct {
	Answer      string        `json:"answer"`
	FullPrompt  string        `json:"full_prompt"`
	ChatHistory []llm.Message `json:"chat_history"`
	Fallback    bool          `json:"fallback"`
}

// CollectionName derives the collection for a project. The mapping is
// deterministic so every caller addressing the same project hits the
// same collection.
func CollectionName(projectID string) (string, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return "", ErrInvalidProjectID
	}

	var b strings.Builder
	b.WriteString("collection_")
	for _, r := range projectID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return b.String(), nil
}

type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	str := d.Duration().String()
	return json.Marshal(str)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() ([]byte, error) {
	str := d.Duration().String()
	return yaml.Marshal(str)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}
