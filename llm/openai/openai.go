// Package openai implements the llm capabilities on the OpenAI API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mnemosyne-ai/ragcore/llm"
)

const (
	defaultEmbeddingModel  = "text-embedding-3-small"
	defaultEmbeddingSize   = 1536
	defaultGenerationModel = "gpt-4o-mini"
	defaultMaxInputChars   = 1000
	defaultMaxOutputTokens = 2000
	defaultTemperature     = 0.1
)

type Provider struct {
	client *openai.Client
	cfg    llm.Config
	log    *zap.Logger
}

func NewProvider(cfg llm.Config, apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("missing OpenAI API key")
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

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		log: zap.L().With(
			zap.String("provider", "openai"),
		),
	}, nil
}

func (p *Provider) EmbeddingSize() int {
	return p.cfg.EmbeddingSize
}

// EmbedText embeds a single text. OpenAI does not distinguish document
// and query inputs, so inputType only affects logging here.
func (p *Provider) EmbedText(ctx context.Context, text string, inputType llm.InputType) ([]float32, error) {
	text = llm.Truncate(text, p.cfg.MaxInputCharacters)

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.cfg.EmbeddingModel),
		Input: []string{text},
	})
	if err != nil {
		if isTransient(err) {
			return nil, fmt.Errorf("%w: %v", llm.ErrEmbeddingUnavailable, err)
		}
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty embeddings response", llm.ErrEmbeddingUnavailable)
	}

	vec := resp.Data[0].Embedding
	if len(vec) != p.cfg.EmbeddingSize {
		p.log.Error("embedding size mismatch",
			zap.String("input_type", string(inputType)),
			zap.Int("expected", p.cfg.EmbeddingSize),
			zap.Int("got", len(vec)),
		)
		return nil, fmt.Errorf("%w: expected %d, got %d",
			llm.ErrInvalidEmbeddingSize, p.cfg.EmbeddingSize, len(vec))
	}

	return vec, nil
}

func (p *Provider) GenerateText(ctx context.Context, prompt string, history []llm.Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.cfg.GenerationModel,
		Messages:    messages,
		MaxTokens:   p.cfg.MaxOutputTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrGenerationFailed, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty completion response", llm.ErrGenerationFailed)
	}

	return resp.Choices[0].Message.Content, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	return false
}
