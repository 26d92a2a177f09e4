// Package chunker splits raw document text into overlapping segments,
// preferring semantic boundaries over hard character cuts.
package chunker

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyInput reports a document with no processable text after
	// normalization.
	ErrEmptyInput = errors.New("no processable text in input")

	ErrInvalidOptions = errors.New("overlap size must be non-negative and smaller than chunk size")
)

var (
	paragraphSplitter  = regexp.MustCompile(`\n\s*\n`)
	sentenceSplitter   = regexp.MustCompile(`(?U)([^.!?]+[.!?]+\s*)`)
	whitespaceCollapse = regexp.MustCompile(`\s+`)
)

// Options controls one Split call. OverlapSize must be smaller than
// ChunkSize; MaxChunks of zero means unlimited.
type Options struct {
	ChunkSize   int
	OverlapSize int
	MaxChunks   int
}

// Segment is one produced chunk. Order is 1-based and strictly
// increasing in document order.
type Segment struct {
	Text  string
	Order int
}

type Splitter struct{}

func NewSplitter() *Splitter { return &Splitter{} }

// Split normalizes the text (internal whitespace runs collapse to single
// spaces) and cuts it into segments of at most ChunkSize characters,
// each carrying the trailing OverlapSize characters of its predecessor.
// Boundary preference: paragraph, then sentence, then word, then a hard
// rune cut.
func (s *Splitter) Split(text string, opts Options) ([]Segment, error) {
	if opts.ChunkSize <= 0 || opts.OverlapSize < 0 || opts.OverlapSize >= opts.ChunkSize {
		return nil, ErrInvalidOptions
	}

	paragraphs := paragraphSplitter.Split(text, -1)

	pieces := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = normalize(p)
		if p == "" {
			continue
		}
		pieces = append(pieces, p)
	}

	if len(pieces) == 0 {
		return nil, ErrEmptyInput
	}

	var segments []Segment
	carry := ""
	for _, piece := range pieces {
		carry = s.splitPiece(piece, carry, opts, &segments)
		if opts.MaxChunks > 0 && len(segments) >= opts.MaxChunks {
			break
		}
	}
	flush(carry, &segments)

	if opts.MaxChunks > 0 && len(segments) > opts.MaxChunks {
		segments = segments[:opts.MaxChunks]
	}

	for i := range segments {
		segments[i].Order = i + 1
	}

	return segments, nil
}

// splitPiece accumulates sentences (and, for oversized sentences, words)
// into the running buffer, emitting a segment whenever adding the next
// unit would exceed ChunkSize. It returns the unflushed remainder.
func (s *Splitter) splitPiece(piece, buf string, opts Options, segments *[]Segment) string {
	units := sentences(piece)

	for _, unit := range units {
		if len([]rune(unit)) > opts.ChunkSize {
			for _, word := range wordCuts(unit, opts.ChunkSize) {
				buf = s.append(buf, word, opts, segments)
			}
			continue
		}
		buf = s.append(buf, unit, opts, segments)
	}

	return buf
}

func (s *Splitter) append(buf, unit string, opts Options, segments *[]Segment) string {
	candidate := unit
	if buf != "" {
		candidate = buf + " " + unit
	}

	if len([]rune(candidate)) <= opts.ChunkSize {
		return candidate
	}

	flush(buf, segments)
	return overlapTail(buf, opts.OverlapSize, unit, opts.ChunkSize)
}

// overlapTail prefixes the next buffer with the trailing overlap of the
// emitted one, dropping the overlap when it would not leave room for the
// unit itself.
func overlapTail(emitted string, overlap int, unit string, chunkSize int) string {
	if overlap == 0 || emitted == "" {
		return unit
	}

	runes := []rune(emitted)
	if len(runes) > overlap {
		runes = runes[len(runes)-overlap:]
	}

	next := strings.TrimLeft(string(runes), " ") + " " + unit
	if len([]rune(next)) > chunkSize {
		return unit
	}

	return next
}

func flush(buf string, segments *[]Segment) {
	buf = strings.TrimSpace(buf)
	if buf == "" {
		return
	}
	*segments = append(*segments, Segment{Text: buf})
}

func sentences(piece string) []string {
	found := sentenceSplitter.FindAllString(piece, -1)
	if len(found) == 0 {
		return []string{piece}
	}

	// The splitter is anchored to terminal punctuation; re-attach any
	// trailing text without one.
	consumed := 0
	for _, f := range found {
		consumed += len(f)
	}
	if consumed < len(piece) {
		if rest := strings.TrimSpace(piece[consumed:]); rest != "" {
			found = append(found, rest)
		}
	}

	for i := range found {
		found[i] = strings.TrimSpace(found[i])
	}

	return found
}

// wordCuts splits an oversized sentence at word boundaries, hard-cutting
// any single word longer than the chunk size.
func wordCuts(sentence string, chunkSize int) []string {
	words := strings.Fields(sentence)

	var cuts []string
	for _, w := range words {
		runes := []rune(w)
		for len(runes) > chunkSize {
			cuts = append(cuts, string(runes[:chunkSize]))
			runes = runes[chunkSize:]
		}
		if len(runes) > 0 {
			cuts = append(cuts, string(runes))
		}
	}

	return cuts
}

func normalize(text string) string {
	return strings.TrimSpace(whitespaceCollapse.ReplaceAllString(text, " "))
}
