// Package chunker splits long document text into overlapping, sentence-aligned passages.
package chunker

import (
	"strings"
	"unicode"
)

// Params are the chunking tunables. All sizes are in characters; as a rough
// guide one token is about 4 characters, so the default target of 1000
// characters is roughly 250 tokens.
type Params struct {
	// MinSourceLen is the minimum source length worth chunking at all.
	MinSourceLen int
	// TargetSize is the preferred chunk size; a chunk closes once it reaches it.
	TargetSize int
	// MaxSize is the hard ceiling; adding a sentence never pushes a chunk past it.
	MaxSize int
	// Overlap bounds how many trailing characters of a closed chunk seed the next one.
	Overlap int
	// MinIntent is the minimum document intent score for chunking to run.
	MinIntent float64
}

// DefaultParams returns the default chunking parameters.
func DefaultParams() Params {
	return Params{
		MinSourceLen: 1500,
		TargetSize:   1000,
		MaxSize:      1600,
		Overlap:      200,
		MinIntent:    0.5,
	}
}

// minSentenceLen filters out fragments that are too short to stand as sentences.
const minSentenceLen = 10

// Chunker deterministically splits text into overlapping passages respecting
// sentence boundaries. The same input and parameters always produce the same
// ordered list of passages.
type Chunker struct {
	params Params
}

// New creates a chunker with the given parameters; zero values fall back to defaults.
func New(params Params) *Chunker {
	def := DefaultParams()
	if params.MinSourceLen <= 0 {
		params.MinSourceLen = def.MinSourceLen
	}
	if params.TargetSize <= 0 {
		params.TargetSize = def.TargetSize
	}
	if params.MaxSize <= params.TargetSize {
		params.MaxSize = def.MaxSize
		if params.MaxSize <= params.TargetSize {
			params.MaxSize = params.TargetSize + params.TargetSize/2
		}
	}
	if params.Overlap < 0 {
		params.Overlap = def.Overlap
	}
	if params.MinIntent <= 0 {
		params.MinIntent = def.MinIntent
	}
	return &Chunker{params: params}
}

// Params returns the effective chunking parameters.
func (c *Chunker) Params() Params {
	return c.params
}

// Eligible reports whether a document qualifies for chunking: the text must
// exceed the minimum source length and the intent score must exceed the
// minimum. Ineligible documents stay searchable at whole-document granularity.
func (c *Chunker) Eligible(text string, intentScore float64) bool {
	return len(strings.TrimSpace(text)) > c.params.MinSourceLen && intentScore > c.params.MinIntent
}

// Chunk splits text into ordered passage texts. Chunk index equals list
// position. Empty or whitespace-only input yields nil; text with no detectable
// sentence boundaries yields a single (possibly truncated) chunk.
func (c *Chunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		if len(text) > c.params.MaxSize {
			text = text[:c.params.MaxSize]
		}
		return []string{text}
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, sentence := range sentences {
		added := len(sentence)
		if currentLen > 0 {
			added++ // joining space
		}
		if currentLen > 0 && currentLen+added > c.params.MaxSize {
			if !c.isPureOverlap(current, chunks) {
				chunks = append(chunks, strings.Join(current, " "))
			}
			current, currentLen = c.seedOverlap(current)
			// A seed the sentence cannot share a chunk with is dropped, so the
			// hard ceiling holds for seeded chunks too.
			if currentLen > 0 && currentLen+1+len(sentence) > c.params.MaxSize {
				current, currentLen = nil, 0
			}
		}
		current = append(current, sentence)
		if currentLen > 0 {
			currentLen++
		}
		currentLen += len(sentence)

		if currentLen >= c.params.TargetSize {
			if !c.isPureOverlap(current, chunks) {
				chunks = append(chunks, strings.Join(current, " "))
			}
			current, currentLen = c.seedOverlap(current)
		}
	}

	// Flush the remainder unless it is pure overlap already emitted.
	if currentLen > 0 && !c.isPureOverlap(current, chunks) {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

// seedOverlap returns the trailing one-to-two sentences of a closed chunk,
// bounded by the overlap size, to seed the next chunk for context continuity.
func (c *Chunker) seedOverlap(closed []string) ([]string, int) {
	if c.params.Overlap <= 0 || len(closed) == 0 {
		return nil, 0
	}
	var seed []string
	seedLen := 0
	for i := len(closed) - 1; i >= 0 && len(seed) < 2; i-- {
		s := closed[i]
		added := len(s)
		if seedLen > 0 {
			added++
		}
		if seedLen+added > c.params.Overlap {
			break
		}
		seed = append([]string{s}, seed...)
		seedLen += added
	}
	return seed, seedLen
}

// isPureOverlap reports whether the pending sentences are exactly the overlap
// seed of the last emitted chunk, i.e. they carry no new content.
func (c *Chunker) isPureOverlap(pending []string, chunks []string) bool {
	if len(chunks) == 0 {
		return false
	}
	return strings.HasSuffix(chunks[len(chunks)-1], strings.Join(pending, " "))
}

// splitSentences splits text on sentence terminators (. ! ?) followed by
// whitespace and a capital letter. Boundaries that would produce a fragment
// below minSentenceLen are ignored, so short abbreviations do not split.
// Returns nil when no boundary is found.
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		// Consume any run of terminators (e.g. "?!", "...").
		end := i
		for end+1 < len(runes) && isTerminator(runes[end+1]) {
			end++
		}
		if end+1 >= len(runes) {
			break
		}
		if !unicode.IsSpace(runes[end+1]) {
			i = end
			continue
		}
		// Peek past the whitespace for a capital letter or digit.
		next := end + 1
		for next < len(runes) && unicode.IsSpace(runes[next]) {
			next++
		}
		if next >= len(runes) || !(unicode.IsUpper(runes[next]) || unicode.IsDigit(runes[next])) {
			i = end
			continue
		}
		candidate := strings.TrimSpace(string(runes[start : end+1]))
		if len(candidate) < minSentenceLen {
			i = end
			continue
		}
		sentences = append(sentences, candidate)
		start = next
		i = next - 1
	}

	if len(sentences) == 0 {
		return nil
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
