package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert := assert.New(t)

	tokens := Tokenize("The operator's guide, 2nd edition!")
	assert.Contains(tokens, "operator's")
	assert.Contains(tokens, "guide")
	assert.Contains(tokens, "edition")
	assert.NotContains(tokens, "2nd")

	assert.Empty(Tokenize("12 34 !!"))
}

func TestLexicalScore(t *testing.T) {
	assert := assert.New(t)

	query := Tokenize("backup schedule")

	assert.InDelta(1.0, LexicalScore(query, "backup schedule"), 1e-9)
	assert.InDelta(0.0, LexicalScore(query, "unrelated text"), 1e-9)
	assert.Zero(LexicalScore(nil, "anything"))
	assert.Zero(LexicalScore(query, ""))

	partial := LexicalScore(query, "the backup ran")
	assert.Greater(partial, 0.0)
	assert.Less(partial, 1.0)
}

func TestHybridScore(t *testing.T) {
	assert := assert.New(t)

	assert.InDelta(1.0, HybridScore(1, 1), 1e-9)
	assert.InDelta(0.7, HybridScore(1, 0), 1e-9)
	assert.InDelta(0.3, HybridScore(0, 1), 1e-9)
}
