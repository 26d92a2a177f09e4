// Package cohere implements the llm capabilities on the Cohere REST API.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mnemosyne-ai/ragcore/llm"
)

const (
	defaultBaseURL         = "https://api.cohere.com/v1"
	defaultEmbeddingModel  = "embed-english-v3.0"
	defaultEmbeddingSize   = 1024
	defaultGenerationModel = "command-r"
	defaultMaxInputChars   = 1000
	defaultMaxOutputTokens = 2000
	defaultTemperature     = 0.1
	defaultTimeout         = 30 * time.Second
)

// Cohere embeds documents and queries differently; these are the API's
// input_type values for the two roles.
const (
	inputTypeDocument = "search_document"
	inputTypeQuery    = "search_query"
)

type Provider struct {
	baseURL string
	apiKey  string
	cfg     llm.Config
	client  *http.Client
	log     *zap.Logger
}

func NewProvider(cfg llm.Config, apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("missing Cohere API key")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaultEmbeddingModel
	}
	if cfg.EmbeddingSize <= 0 {
		cfg.EmbeddingSize = defaultEmbeddingSize
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = defaultGenerationModel
	}
	if cfg.MaxInputCharacters <= 0 {
		cfg.MaxInputCharacters = defaultMaxInputChars
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultMaxOutputTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}

	return &Provider{
		baseURL: cfg.BaseURL,
		apiKey:  apiKey,
		cfg:     cfg,
		client:  &http.Client{Timeout: defaultTimeout},
		log: zap.L().With(
			zap.String("provider", "cohere"),
		),
	}, nil
}

func (p *Provider) EmbeddingSize() int {
	return p.cfg.EmbeddingSize
}

func (p *Provider) EmbedText(ctx context.Context, text string, inputType llm.InputType) ([]float32, error) {
	text = llm.Truncate(text, p.cfg.MaxInputCharacters)

	apiInputType := inputTypeDocument
	if inputType == llm.InputQuery {
		apiInputType = inputTypeQuery
	}

	req := map[string]any{
		"model":      p.cfg.EmbeddingModel,
		"texts":      []string{text},
		"input_type": apiInputType,
	}

	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := p.postJSON(ctx, "/embed", req, &resp); err != nil {
		if isTransient(err) {
			return nil, fmt.Errorf("%w: %v", llm.ErrEmbeddingUnavailable, err)
		}
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: empty embeddings response", llm.ErrEmbeddingUnavailable)
	}

	vec := resp.Embeddings[0]
	if len(vec) != p.cfg.EmbeddingSize {
		p.log.Error("embedding size mismatch",
			zap.Int("expected", p.cfg.EmbeddingSize),
			zap.Int("got", len(vec)),
		)
		return nil, fmt.Errorf("%w: expected %d, got %d",
			llm.ErrInvalidEmbeddingSize, p.cfg.EmbeddingSize, len(vec))
	}

	return vec, nil
}

func (p *Provider) GenerateText(ctx context.Context, prompt string, history []llm.Message) (string, error) {
	chatHistory := make([]map[string]string, 0, len(history))
	for _, m := range history {
		chatHistory = append(chatHistory, map[string]string{
			"role":    cohereRole(m.Role),
			"message": m.Content,
		})
	}

	req := map[string]any{
		"model":        p.cfg.GenerationModel,
		"message":      prompt,
		"chat_history": chatHistory,
		"max_tokens":   p.cfg.MaxOutputTokens,
		"temperature":  p.cfg.Temperature,
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := p.postJSON(ctx, "/chat", req, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrGenerationFailed, err)
	}

	if resp.Text == "" {
		return "", fmt.Errorf("%w: empty chat response", llm.ErrGenerationFailed)
	}

	return resp.Text, nil
}

func cohereRole(role llm.Role) string {
	switch role {
	case llm.RoleSystem:
		return "SYSTEM"
	case llm.RoleAssistant:
		return "CHATBOT"
	default:
		return "USER"
	}
}

type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("cohere request failed: %s", e.status)
}

func (p *Provider) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode, status: resp.Status}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}

	return nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.code == http.StatusTooManyRequests || statusErr.code >= 500
	}

	return false
}
