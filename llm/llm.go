// Package llm defines the embedding and generation capabilities the
// retrieval pipeline consumes, with providers selected at startup.
package llm

import (
	"context"
	"errors"
)

var (
	ErrInvalidEmbeddingSize = errors.New("embedding size mismatch")
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")
	ErrGenerationFailed     = errors.New("text generation failed")
	ErrUnknownProvider      = errors.New("unknown LLM provider")

	// ErrNoMatchingContent signals that no answer is derivable because
	// retrieval surfaced nothing. It is a sentinel, not a backend failure.
	ErrNoMatchingContent = errors.New("no matching content")
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// InputType tells the embedding backend whether the text is corpus
// material or a search query. Some backends embed the two differently.
type InputType string

const (
	InputDocument InputType = "document"
	InputQuery    InputType = "query"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Embedder converts text into fixed-length vectors. Implementations
// truncate over-long input to their configured maximum, never reject it,
// and must return exactly EmbeddingSize components or fail with
// ErrInvalidEmbeddingSize. They do not retry transient failures.
type Embedder interface {
	EmbedText(ctx context.Context, text string, inputType InputType) ([]float32, error)
	EmbeddingSize() int
}

// Generator produces text from a prompt and a chat history. An empty or
// malformed model response fails with ErrGenerationFailed; no retry is
// defined at this layer.
type Generator interface {
	GenerateText(ctx context.Context, prompt string, history []Message) (string, error)
}

// Provider bundles the two capabilities one backend offers.
type Provider interface {
	Embedder
	Generator
}

type Config struct {
	Provider           string  `yaml:"provider"`
	APIKeyEnv          string  `yaml:"api_key_env"`
	BaseURL            string  `yaml:"base_url"`
	EmbeddingModel     string  `yaml:"embedding_model"`
	EmbeddingSize      int     `yaml:"embedding_size"`
	GenerationModel    string  `yaml:"generation_model"`
	MaxInputCharacters int     `yaml:"max_input_characters"`
	MaxOutputTokens    int     `yaml:"max_output_tokens"`
	Temperature        float32 `yaml:"temperature"`
}

// Truncate enforces the input character limit. Truncation, not
// rejection, is the degradation policy for over-long text.
func Truncate(text string, maxCharacters int) string {
	if maxCharacters <= 0 {
		return text
	}

	runes := []rune(text)
	if len(runes) <= maxCharacters {
		return text
	}

	return string(runes[:maxCharacters])
}
