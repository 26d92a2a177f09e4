package vector

import (
	"math"
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// TokenSet lowercases and tokenizes text into its set of distinct words.
type TokenSet map[string]struct{}

func Tokenize(text string) TokenSet {
	tokens := wordPattern.FindAllString(strings.ToLower(text), -1)
	set := make(TokenSet, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// LexicalScore is the Ochiai coefficient between the query token set and
// the text's token set: |A∩B| / sqrt(|A||B|). Used as the lexical leg of
// hybrid search on backends without native hybrid support.
func LexicalScore(query TokenSet, text string) float64 {
	if len(query) == 0 {
		return 0
	}

	words := Tokenize(text)
	if len(words) == 0 {
		return 0
	}

	inter := 0
	for t := range words {
		if _, ok := query[t]; ok {
			inter++
		}
	}

	return float64(inter) / math.Sqrt(float64(len(query))*float64(len(words)))
}

// HybridScore blends the vector and lexical relevance signals. The
// vector signal dominates; the lexical leg nudges ties toward literal
// matches.
func HybridScore(vectorScore, lexicalScore float64) float64 {
	return 0.7*vectorScore + 0.3*lexicalScore
}
