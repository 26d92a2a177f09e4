// Package factory selects an LLM provider from configuration.
package factory

import (
	"fmt"
	"os"
	"strings"

	"github.com/mnemosyne-ai/ragcore/llm"
	"github.com/mnemosyne-ai/ragcore/llm/cohere"
	"github.com/mnemosyne-ai/ragcore/llm/openai"
)

const (
	ProviderOpenAI = "OPENAI"
	ProviderCohere = "COHERE"
)

// NewProvider builds the configured provider, resolving the API key from
// the environment.
func NewProvider(cfg llm.Config) (llm.Provider, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = defaultKeyEnv(cfg.Provider)
	}

	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}

	switch strings.ToUpper(cfg.Provider) {
	case ProviderOpenAI:
		return openai.NewProvider(cfg, apiKey)
	case ProviderCohere:
		return cohere.NewProvider(cfg, apiKey)
	default:
		return nil, fmt.Errorf("%w: %s", llm.ErrUnknownProvider, cfg.Provider)
	}
}

func defaultKeyEnv(provider string) string {
	switch strings.ToUpper(provider) {
	case ProviderCohere:
		return "COHERE_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}
