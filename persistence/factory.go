// Package persistence selects a vector index backend from configuration.
package persistence

import (
	"fmt"
	"strings"

	"github.com/mnemosyne-ai/ragcore/persistence/chromem"
	"github.com/mnemosyne-ai/ragcore/persistence/memory"
	"github.com/mnemosyne-ai/ragcore/persistence/qdrant"
	"github.com/mnemosyne-ai/ragcore/vector"
)

const (
	ProviderMemory  = "MEMORY"
	ProviderChromem = "CHROMEM"
	ProviderQdrant  = "QDRANT"
)

// NewIndex builds the configured backend. One backend is active per
// deployment.
func NewIndex(cfg vector.Config) (vector.Index, error) {
	switch strings.ToUpper(cfg.Provider) {
	case ProviderMemory, "":
		return memory.NewIndex(), nil
	case ProviderChromem:
		return chromem.NewIndex(cfg)
	case ProviderQdrant:
		if cfg.URL == "" {
			return nil, fmt.Errorf("qdrant backend requires a url")
		}
		return qdrant.NewIndex(cfg), nil
	default:
		return nil, fmt.Errorf("unknown vector index provider: %s", cfg.Provider)
	}
}
